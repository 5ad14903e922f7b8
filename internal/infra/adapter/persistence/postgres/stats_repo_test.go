package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"pulsefeed/internal/domain/entity"
	pg "pulsefeed/internal/infra/adapter/persistence/postgres"
)

func TestStatsRepo_RecordProcessingStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processing_stats")).WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewStatsRepo(db)
	s := &entity.ProcessingStats{Date: time.Now(), SourcesProcessed: 3, ItemsIngested: 10, Duration: 2 * time.Second}
	if err := repo.RecordProcessingStats(context.Background(), s); err != nil {
		t.Fatalf("RecordProcessingStats: %v", err)
	}
}

func TestStatsRepo_GetProcessingStats_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnError(sql.ErrNoRows)

	repo := pg.NewStatsRepo(db)
	got, err := repo.GetProcessingStats(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("GetProcessingStats: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestStatsRepo_RecordAIUsage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ai_usage_tracking")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	repo := pg.NewStatsRepo(db)
	u := &entity.AIUsageTracking{CallKind: "summarize", Domain: "example.com", Succeeded: true, Latency: 500 * time.Millisecond}
	if err := repo.RecordAIUsage(context.Background(), u); err != nil {
		t.Fatalf("RecordAIUsage: %v", err)
	}
	if u.ID != 4 {
		t.Fatalf("expected ID 4, got %d", u.ID)
	}
}
