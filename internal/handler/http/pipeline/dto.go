// Package pipeline serves the pipeline-control endpoints spec.md §6 names
// beyond plain article/source CRUD: triggering a cycle, the read-side feed
// and search, the category taxonomy, migration status, and schedule
// settings. It is mounted as its own go-chi/chi/v5 sub-router so path
// params like {task} don't need hand-rolled prefix parsing.
package pipeline

import (
	"time"

	"pulsefeed/internal/domain/entity"
	"pulsefeed/internal/repository"
)

// ArticleDTO is the feed/search JSON shape for one article.
type ArticleDTO struct {
	ID              int64     `json:"id"`
	SourceID        int64     `json:"source_id"`
	SourceName      string    `json:"source_name,omitempty"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Summary         string    `json:"summary"`
	PublishedAt     time.Time `json:"published_at"`
	IsAdvertisement bool      `json:"is_advertisement"`
}

func articleDTO(a *entity.Article, sourceName string) ArticleDTO {
	return ArticleDTO{
		ID:              a.ID,
		SourceID:        a.SourceID,
		SourceName:      sourceName,
		Title:           a.Title,
		URL:             a.URL,
		Summary:         a.Summary,
		PublishedAt:     a.PublishedAt,
		IsAdvertisement: a.IsAdvertisement,
	}
}

func feedDTOs(rows []repository.ArticleWithSource) []ArticleDTO {
	out := make([]ArticleDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, articleDTO(row.Article, row.SourceName))
	}
	return out
}

func searchDTOs(articles []*entity.Article) []ArticleDTO {
	out := make([]ArticleDTO, 0, len(articles))
	for _, a := range articles {
		out = append(out, articleDTO(a, ""))
	}
	return out
}

// CategoryDTO is the GET /categories JSON shape.
type CategoryDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Count       int64  `json:"article_count"`
}

func categoryDTOs(rows []repository.CategoryWithCount) []CategoryDTO {
	out := make([]CategoryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategoryDTO{
			ID:          row.Category.ID,
			Name:        row.Category.Name,
			DisplayName: row.Category.DisplayName,
			Color:       row.Category.Color,
			Count:       row.Count,
		})
	}
	return out
}

// ScheduleSettingDTO is the GET/PUT /schedule/settings JSON shape.
type ScheduleSettingDTO struct {
	TaskName     string     `json:"task_name"`
	Enabled      bool       `json:"enabled"`
	ScheduleType string     `json:"schedule_type"`
	Hour         int        `json:"hour"`
	Minute       int        `json:"minute"`
	Timezone     string     `json:"timezone"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	IsRunning    bool       `json:"is_running"`
}

func scheduleDTO(s *entity.ScheduleSetting) ScheduleSettingDTO {
	return ScheduleSettingDTO{
		TaskName:     s.TaskName,
		Enabled:      s.Enabled,
		ScheduleType: string(s.ScheduleType),
		Hour:         s.Hour,
		Minute:       s.Minute,
		Timezone:     s.Timezone,
		LastRun:      s.LastRun,
		NextRun:      s.NextRun,
		IsRunning:    s.IsRunning,
	}
}

// ScheduleUpdateRequest is the PUT /schedule/settings/{task} body. Only
// the fields an operator would reasonably want to change are accepted;
// LastRun/NextRun/IsRunning stay Scheduler-owned.
type ScheduleUpdateRequest struct {
	Enabled      bool   `json:"enabled"`
	ScheduleType string `json:"schedule_type"`
	Hour         int    `json:"hour"`
	Minute       int    `json:"minute"`
	Timezone     string `json:"timezone"`
}

// MigrationStatusDTO is one row of GET /migrations/status.
type MigrationStatusDTO struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// TaskHandleDTO is POST /process/run's response: a handle the caller can
// poll for completion via the task_queue row it created.
type TaskHandleDTO struct {
	ID       int64  `json:"id"`
	TaskName string `json:"task_name"`
	Status   string `json:"status"`
}
