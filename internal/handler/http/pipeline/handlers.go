package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/handler/http/respond"
	"pulsefeed/internal/infra/db"
	"pulsefeed/internal/repository"
)

var (
	errMissingQuery = errors.New("missing required query parameter: q")
	errUnknownTask  = errors.New("unknown task name")
)

// Handlers bundles every repository the pipeline endpoints read or write.
// Register builds the chi sub-router; fields are exported so cmd/api's
// composition root can assemble it from the same repos cmd/worker uses.
type Handlers struct {
	Articles   repository.ArticleRepository
	Categories repository.CategoryRepository
	Schedules  repository.ScheduleRepository
	Queue      repository.TaskQueueRepository
	Migrations *db.Manager
	Logger     *slog.Logger
}

// Register mounts every pipeline endpoint onto a fresh chi.Router.
func (h Handlers) Register() chi.Router { //nolint:ireturn // chi's idiom returns the interface
	r := chi.NewRouter()
	r.Post("/process/run", h.processRun)
	r.Get("/feed", h.feed)
	r.Get("/search", h.search)
	r.Get("/categories", h.categories)
	r.Get("/migrations/status", h.migrationsStatus)
	r.Post("/migrations/run", h.migrationsRun)
	r.Get("/schedule/settings", h.scheduleList)
	r.Put("/schedule/settings/{task}", h.scheduleUpdate)
	return r
}

// processRun enqueues an ad hoc news_digest cycle for the Scheduler's
// drainQueue loop to pick up, per spec.md §6's "trigger one cycle".
func (h Handlers) processRun(w http.ResponseWriter, r *http.Request) {
	item, err := h.Queue.Enqueue(r.Context(), string(entity.TaskNewsDigest))
	if err != nil {
		h.logger().Error("enqueue process/run task", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, TaskHandleDTO{
		ID:       item.ID,
		TaskName: item.TaskName,
		Status:   string(item.Status),
	})
}

// feed serves the filtered article stream: category, limit, offset,
// since_hours, hide_ads.
func (h Handlers) feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.ArticleFeedFilters{
		Category:   optionalString(q, "category"),
		SinceHours: optionalInt(q, "since_hours"),
		HideAds:    q.Get("hide_ads") == "true",
		Limit:      intOrDefault(q, "limit", 50),
		Offset:     intOrDefault(q, "offset", 0),
	}

	rows, err := h.Articles.ListFeed(r.Context(), filters)
	if err != nil {
		h.logger().Error("list feed", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	total, err := h.Articles.CountFeed(r.Context(), filters)
	if err != nil {
		h.logger().Error("count feed", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"articles": feedDTOs(rows),
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

// search serves full-text search over title+summary+content, per
// spec.md §6: q, category, since_hours, sort.
func (h Handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keywords := strings.Fields(q.Get("q"))
	if len(keywords) == 0 {
		respond.Error(w, http.StatusBadRequest, errMissingQuery)
		return
	}

	sort := q.Get("sort")
	if sort == "" {
		sort = "relevance"
	}
	filters := repository.ArticleSearchFilters{
		Category:   optionalString(q, "category"),
		SinceHours: optionalInt(q, "since_hours"),
		Sort:       sort,
	}

	articles, err := h.Articles.Search(r.Context(), keywords, filters)
	if err != nil {
		h.logger().Error("search articles", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"articles": searchDTOs(articles)})
}

// categories serves the taxonomy with per-category article counts.
func (h Handlers) categories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Categories.ListWithCounts(r.Context())
	if err != nil {
		h.logger().Error("list categories", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"categories": categoryDTOs(rows)})
}

// migrationsStatus reports every known migration and whether it has been
// applied, the degraded-mode diagnostic spec.md §4.10 names.
func (h Handlers) migrationsStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.Migrations.Status(r.Context())
	if err != nil {
		h.logger().Error("migration status", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]MigrationStatusDTO, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatusDTO{
			Version: s.Version, Name: s.Name, Applied: s.Applied, AppliedAt: s.AppliedAt,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"migrations": out})
}

// migrationsRun lets an operator retry migrations after the service
// started in degraded mode, without restarting the process.
func (h Handlers) migrationsRun(w http.ResponseWriter, r *http.Request) {
	if err := h.Migrations.Run(r.Context()); err != nil {
		h.logger().Error("migration run", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h Handlers) scheduleList(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Schedules.List(r.Context())
	if err != nil {
		h.logger().Error("list schedule settings", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]ScheduleSettingDTO, 0, len(settings))
	for _, s := range settings {
		out = append(out, scheduleDTO(s))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"settings": out})
}

// scheduleUpdate is a read-modify-write over the existing row: LastRun,
// NextRun, and IsRunning stay whatever the Scheduler last wrote, since
// this endpoint only lets an operator change cadence, not task state.
func (h Handlers) scheduleUpdate(w http.ResponseWriter, r *http.Request) {
	taskName := chi.URLParam(r, "task")
	existing, err := h.Schedules.Get(r.Context(), taskName)
	if err != nil {
		respond.Error(w, http.StatusNotFound, errUnknownTask)
		return
	}

	var req ScheduleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	existing.Enabled = req.Enabled
	existing.ScheduleType = entity.ScheduleType(req.ScheduleType)
	existing.Hour = req.Hour
	existing.Minute = req.Minute
	existing.Timezone = req.Timezone

	if err := existing.Validate(); err != nil {
		respond.Error(w, http.StatusBadRequest, err)
		return
	}

	if err := h.Schedules.Upsert(r.Context(), existing); err != nil {
		h.logger().Error("upsert schedule setting", slog.Any("error", err))
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, scheduleDTO(existing))
}

func (h Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func optionalString(q interface{ Get(string) string }, key string) *string {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

func optionalInt(q interface{ Get(string) string }, key string) *int {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func intOrDefault(q interface{ Get(string) string }, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
