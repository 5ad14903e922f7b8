package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pulsefeed/internal/pkg/config"
)

// Metrics provides Prometheus metrics for one orchestrator cycle,
// embedding the shared ConfigMetrics for config fallback observability.
type Metrics struct {
	*config.ConfigMetrics

	CyclesTotal           *prometheus.CounterVec
	CycleDurationSeconds  prometheus.Histogram
	SourcesProcessed      prometheus.Histogram
	ItemsIngestedTotal    prometheus.Counter
	ItemsDuplicatedTotal  prometheus.Counter
	ArticlesAnalyzedTotal prometheus.Counter
	AICallsTotal          prometheus.Counter
	CycleErrorsTotal      prometheus.Counter
	DigestsPublishedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		ConfigMetrics: config.NewConfigMetrics("orchestrator"),

		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_cycles_total",
			Help: "Total orchestrator cycles run, by outcome (success, error).",
		}, []string{"status"}),

		CycleDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_cycle_duration_seconds",
			Help:    "Duration of one full orchestrator cycle.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		SourcesProcessed: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_sources_processed",
			Help:    "Number of sources processed per cycle.",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),

		ItemsIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_items_ingested_total",
			Help: "Total feed items seen across all cycles.",
		}),

		ItemsDuplicatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_items_duplicated_total",
			Help: "Total feed items dropped as duplicates.",
		}),

		ArticlesAnalyzedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_articles_analyzed_total",
			Help: "Total articles that completed AI analysis and category mapping.",
		}),

		AICallsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_ai_calls_total",
			Help: "Total AI calls issued by the orchestrator (analysis and digest summaries).",
		}),

		CycleErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_cycle_errors_total",
			Help: "Total per-item errors recorded during a cycle (non-fatal to the cycle itself).",
		}),

		DigestsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_digests_published_total",
			Help: "Total digest publish attempts, by adapter outcome (success, error).",
		}, []string{"status"}),
	}
}

// MustRegister exists for API parity with worker.WorkerMetrics; promauto
// already registers every metric above at construction time.
func (m *Metrics) MustRegister() {}
