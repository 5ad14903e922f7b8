package db_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/infra/db"
)

func TestManager_Run_AppliesPendingMigration(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE widgets")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied := false
	migrations := []db.Migration{
		{
			Version: 1,
			Name:    "widgets",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				applied = true
				_, err := tx.ExecContext(ctx, `CREATE TABLE widgets (id SERIAL PRIMARY KEY)`)
				return err
			},
		},
	}

	mgr := db.NewManager(conn, migrations)
	require.NoError(t, mgr.Run(context.Background()))
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Run_SkipsAlreadyApplied(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), time.Now()))

	called := false
	migrations := []db.Migration{
		{
			Version: 1,
			Name:    "widgets",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				called = true
				return nil
			},
		},
	}

	mgr := db.NewManager(conn, migrations)
	require.NoError(t, mgr.Run(context.Background()))
	assert.False(t, called, "already-applied migration must not rerun Up")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Run_IsNeededFalseRecordsWithoutReapplying(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 1))

	upCalled := false
	migrations := []db.Migration{
		{
			Version:  1,
			Name:     "widgets",
			IsNeeded: func(ctx context.Context, conn *sql.DB) (bool, error) { return false, nil },
			Up: func(ctx context.Context, tx *sql.Tx) error {
				upCalled = true
				return nil
			},
		},
	}

	mgr := db.NewManager(conn, migrations)
	require.NoError(t, mgr.Run(context.Background()))
	assert.False(t, upCalled, "IsNeeded=false must heal the row without running Up")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Run_HaltsOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectRollback()

	migrations := []db.Migration{
		{
			Version: 1,
			Name:    "broken",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				return errors.New("ddl failed")
			},
		},
	}

	mgr := db.NewManager(conn, migrations)
	err = mgr.Run(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Status_ReportsUnappliedAndApplied(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), time.Now()))

	migrations := []db.Migration{
		{Version: 1, Name: "widgets"},
		{Version: 2, Name: "gadgets"},
	}
	mgr := db.NewManager(conn, migrations)
	status, err := mgr.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}
