// Package db provides C10's Migration Manager: a fixed, monotonically
// versioned sequence of idempotent-DDL migrations tracked in
// schema_migrations, each able to probe whether it still needs to run.
package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Migration is one schema change. IsNeeded lets the manager heal a
// database that is missing only some of a migration's objects (created
// by hand, or left over from a failed partial apply) without erroring
// on CREATE ... IF NOT EXISTS statements that already succeeded.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
	// IsNeeded reports whether Up still has work to do. A migration
	// manager that only consulted schema_migrations could not tell a
	// genuinely-applied migration from one this process crashed halfway
	// through recording.
	IsNeeded func(ctx context.Context, db *sql.DB) (bool, error)
}

// MigrationStatus is one row of GET /migrations/status.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Manager applies Migrations in version order and records outcomes in
// schema_migrations. A failed migration halts further applies but does
// not panic: the caller decides whether the process still starts in
// degraded mode (spec.md §4.10's stated failure policy).
type Manager struct {
	db         *sql.DB
	migrations []Migration
}

func NewManager(db *sql.DB, migrations []Migration) *Manager {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Manager{db: db, migrations: sorted}
}

func (m *Manager) ensureTrackingTable(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Manager) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Run applies every pending migration in order. It stops at the first
// failure and returns that error; migrations before it remain applied,
// migrations after it remain pending. The caller is expected to start
// the application anyway and surface this error through /migrations/status.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.ensureTrackingTable(ctx); err != nil {
		return fmt.Errorf("migrations: ensure tracking table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("migrations: load applied versions: %w", err)
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		if mig.IsNeeded != nil {
			needed, err := mig.IsNeeded(ctx, m.db)
			if err != nil {
				return fmt.Errorf("migrations: version %d (%s): IsNeeded probe: %w", mig.Version, mig.Name, err)
			}
			if !needed {
				slog.Info("migration objects already present, recording without reapplying",
					slog.Int("version", mig.Version), slog.String("name", mig.Name))
				if err := m.record(ctx, mig); err != nil {
					return err
				}
				continue
			}
		}

		if err := m.applyOne(ctx, mig); err != nil {
			return fmt.Errorf("migrations: version %d (%s): %w", mig.Version, mig.Name, err)
		}
		slog.Info("migration applied", slog.Int("version", mig.Version), slog.String("name", mig.Name))
	}
	return nil
}

func (m *Manager) applyOne(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := mig.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("up: %w", err)
	}

	checksum := checksumOf(mig.Name)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		mig.Version, mig.Name, checksum,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// record marks a migration applied without running Up, used when
// IsNeeded reports the schema objects already exist.
func (m *Manager) record(ctx context.Context, mig Migration) error {
	checksum := checksumOf(mig.Name)
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3) ON CONFLICT (version) DO NOTHING`,
		mig.Version, mig.Name, checksum,
	)
	if err != nil {
		return fmt.Errorf("migrations: record version %d: %w", mig.Version, err)
	}
	return nil
}

// Status reports every known migration's applied state, for
// GET /migrations/status. It tolerates schema_migrations not existing
// yet (a database that has never run the manager) by treating that as
// "nothing applied" rather than erroring.
func (m *Manager) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		applied = map[int]time.Time{}
	}

	out := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			s.Applied = true
			atCopy := at
			s.AppliedAt = &atCopy
		}
		out = append(out, s)
	}
	return out, nil
}

func checksumOf(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}
