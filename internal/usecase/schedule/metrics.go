package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pulsefeed/internal/pkg/config"
)

// Metrics provides Prometheus metrics for the tick loop, embedding the
// shared ConfigMetrics for config fallback observability.
type Metrics struct {
	*config.ConfigMetrics

	TicksTotal             prometheus.Counter
	TaskRunsTotal          *prometheus.CounterVec
	TaskDurationSeconds    *prometheus.HistogramVec
	StuckTasksClearedTotal prometheus.Counter
	TasksInFlight          prometheus.Gauge
	QueueDrainedTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ConfigMetrics: config.NewConfigMetrics("scheduler"),

		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler tick loop iterations.",
		}),

		TaskRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_task_runs_total",
			Help: "Total scheduled task runs by task name and outcome (success, failure).",
		}, []string{"task", "status"}),

		TaskDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "Duration of scheduled task execution in seconds.",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		}, []string{"task"}),

		StuckTasksClearedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_stuck_tasks_cleared_total",
			Help: "Total tasks force-cleared after exceeding the stuck threshold.",
		}),

		TasksInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_tasks_in_flight",
			Help: "Number of scheduled or ad hoc tasks currently executing.",
		}),

		QueueDrainedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_queue_drained_total",
			Help: "Total ad hoc task_queue items dequeued and executed, by outcome.",
		}, []string{"status"}),
	}
}

// MustRegister exists for API parity with worker.WorkerMetrics; promauto
// already registers every metric above at construction time.
func (m *Metrics) MustRegister() {}
