package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistoryStore records runs and device outcomes in a local SQLite file.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// Config holds history store configuration.
type Config struct {
	Path string
}

// NewHistoryStore creates a new history store instance.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &HistoryStore{
		path: cfg.Path,
	}, nil
}

// Init opens the database and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single orchestrator process owns the file; one connection keeps
	// the per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginRun records the start of a run.
func (s *HistoryStore) BeginRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, status, tool_version, dry_run, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.ToolVersion,
		run.DryRun,
		run.StartedAt.UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun records the terminal status and final counters of a run.
func (s *HistoryStore) FinishRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, done = ?, failed = ?, skipped = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		run.Status,
		time.Now().UTC(),
		run.Done,
		run.Failed,
		run.Skipped,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// RecordDevice appends one device outcome to a run.
func (s *HistoryStore) RecordDevice(ctx context.Context, outcome *DeviceOutcome) error {
	query := `
		INSERT INTO device_outcomes (run_id, device, outcome, reason, target, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		outcome.RunID,
		outcome.Device,
		outcome.Outcome,
		outcome.Reason,
		outcome.Target,
		outcome.DurationMS,
		time.Now().UTC(),
	)

	if err != nil {
		return fmt.Errorf("failed to record device outcome: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get outcome ID: %w", err)
	}

	outcome.ID = id
	return nil
}

// GetRun retrieves a run by ID.
func (s *HistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, status, tool_version, dry_run, started_at, completed_at, done, failed, skipped
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Status,
		&run.ToolVersion,
		&run.DryRun,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Done,
		&run.Failed,
		&run.Skipped,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// RecentRuns lists the most recent runs, newest first.
func (s *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, status, tool_version, dry_run, started_at, completed_at, done, failed, skipped
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.ToolVersion,
			&run.DryRun,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Done,
			&run.Failed,
			&run.Skipped,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeviceOutcomes lists the outcomes recorded for a run, oldest first.
func (s *HistoryStore) DeviceOutcomes(ctx context.Context, runID string) ([]*DeviceOutcome, error) {
	query := `
		SELECT id, run_id, device, outcome, reason, target, duration_ms, created_at
		FROM device_outcomes
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*DeviceOutcome{}
	for rows.Next() {
		o := &DeviceOutcome{}
		err := rows.Scan(
			&o.ID,
			&o.RunID,
			&o.Device,
			&o.Outcome,
			&o.Reason,
			&o.Target,
			&o.DurationMS,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device outcomes: %w", err)
	}

	return outcomes, nil
}

// LastSuccess returns the most recent successful outcome for a device,
// or nil when the device has never completed an update.
func (s *HistoryStore) LastSuccess(ctx context.Context, device string) (*DeviceOutcome, error) {
	query := `
		SELECT id, run_id, device, outcome, reason, target, duration_ms, created_at
		FROM device_outcomes
		WHERE device = ? AND outcome = 'done'
		ORDER BY created_at DESC
		LIMIT 1
	`

	o := &DeviceOutcome{}
	err := s.db.QueryRowContext(ctx, query, device).Scan(
		&o.ID,
		&o.RunID,
		&o.Device,
		&o.Outcome,
		&o.Reason,
		&o.Target,
		&o.DurationMS,
		&o.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last success: %w", err)
	}

	return o, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *HistoryStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
