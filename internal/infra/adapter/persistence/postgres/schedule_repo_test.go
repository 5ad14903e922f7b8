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

var scheduleSettingCols = []string{
	"id", "task_name", "enabled", "schedule_type", "hour", "minute", "weekdays", "timezone",
	"last_run", "next_run", "is_running", "task_config",
}

func TestScheduleRepo_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WithArgs(string(entity.TaskNewsDigest)).
		WillReturnRows(sqlmock.NewRows(scheduleSettingCols).AddRow(
			int64(1), string(entity.TaskNewsDigest), true, "daily", 7, 0, "{}", "UTC",
			nil, nil, false, []byte("{}"),
		))

	repo := pg.NewScheduleRepo(db)
	got, err := repo.Get(context.Background(), string(entity.TaskNewsDigest))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TaskName != string(entity.TaskNewsDigest) || got.ScheduleType != entity.ScheduleDaily {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestScheduleRepo_MarkRunning_ClaimsWhenNotRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("is_running = FALSE")).WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewScheduleRepo(db)
	claimed, err := repo.MarkRunning(context.Background(), "news_digest", time.Now())
	if err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if !claimed {
		t.Fatal("expected claimed=true")
	}
}

func TestScheduleRepo_MarkRunning_AlreadyRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("is_running = FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := pg.NewScheduleRepo(db)
	claimed, err := repo.MarkRunning(context.Background(), "news_digest", time.Now())
	if err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if claimed {
		t.Fatal("expected claimed=false when already running")
	}
}

func TestScheduleRepo_ForceClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_settings SET is_running = FALSE WHERE task_name")).
		WithArgs("news_digest").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := pg.NewScheduleRepo(db)
	if err := repo.ForceClear(context.Background(), "news_digest"); err != nil {
		t.Fatalf("ForceClear: %v", err)
	}
}

func TestDailySummaryRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO daily_summaries")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	repo := pg.NewDailySummaryRepo(db)
	s := &entity.DailySummary{Date: time.Now(), Category: "tech", SummaryText: "digest", ArticlesCount: 5}
	if err := repo.Upsert(context.Background(), s); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.ID != 3 {
		t.Fatalf("expected ID 3, got %d", s.ID)
	}
}

func TestDailySummaryRepo_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnError(sql.ErrNoRows)

	repo := pg.NewDailySummaryRepo(db)
	got, err := repo.Get(context.Background(), time.Now(), "tech")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
