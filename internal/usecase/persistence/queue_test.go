package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestQueue_Submit_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := New(db, DefaultConfig())
	err = q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE articles SET title = $1", "x")
		return err
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_Submit_RollsBackOnUnitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	wantErr := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articles").WillReturnError(wantErr)
	mock.ExpectRollback()

	q := New(db, DefaultConfig())
	err = q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE articles SET title = $1", "x")
		return err
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_Submit_RetriesOnDeadlockThenSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articles").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := New(db, DefaultConfig())
	start := time.Now()
	err = q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE articles SET title = $1", "x")
		return err
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if time.Since(start) < deadlockInitialDelay {
		t.Fatal("expected retry to wait at least the initial backoff")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_Submit_GivesUpAfterMaxDeadlockAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	for i := 0; i < defaultDeadlockMax; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles").WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()
	}

	q := New(db, DefaultConfig())
	err = q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE articles SET title = $1", "x")
		return err
	})
	if err == nil {
		t.Fatal("expected error after exhausting deadlock retries")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_Submit_SerializesWritesToSameShard(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE articles").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	q := New(db, DefaultConfig())
	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "UPDATE articles SET title = $1", "x")
				return err
			})
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestQueue_Submit_RejectsAfterClose(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	q := New(db, DefaultConfig())
	q.Close()

	err = q.Submit(context.Background(), "articles", func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_Read_RunsAgainstSharedDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM articles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	q := New(db, DefaultConfig())
	var gotID int64
	err = q.Read(context.Background(), func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT id FROM articles WHERE id = $1", 1).Scan(&gotID)
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotID != 1 {
		t.Fatalf("expected id 1, got %d", gotID)
	}
}

func TestQueue_AfterWrite_SignalsBackpressureAtHighWater(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	q := New(db, Config{ReadPoolSize: 1, HighWaterMark: 2, LowWaterMark: 1})
	q.writeDepth = 2
	q.afterWrite()
	if !q.ShouldPauseIngestion() {
		t.Fatal("expected ingestion to pause once depth crosses high water mark")
	}

	q.writeDepth = 1
	q.afterWrite()
	if q.ShouldPauseIngestion() {
		t.Fatal("expected ingestion to resume once depth falls to low water mark")
	}
}

func TestIsDeadlock(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("pq: deadlock detected"), true},
		{errors.New("ERROR: 40P01"), true},
		{errors.New("canceling statement due to lock timeout"), true},
		{errors.New("55P03"), true},
		{errors.New("syntax error"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := isDeadlock(c.err); got != c.want {
			t.Errorf("isDeadlock(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
