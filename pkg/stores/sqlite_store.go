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

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; pooling beyond one
	// connection would scatter the schema across empty databases.
	if s.path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
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

// CreateMergeRun inserts a new run record.
func (s *SQLiteStore) CreateMergeRun(ctx context.Context, run *MergeRun) error {
	query := `
		INSERT INTO merge_runs (id, policy, list_diff, current_path, expected_path,
			current_digest, expected_digest, result_digest, changed, status,
			started_at, completed_at, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Policy,
		run.ListDiff,
		run.CurrentPath,
		run.ExpectedPath,
		run.CurrentDigest,
		run.ExpectedDigest,
		run.ResultDigest,
		run.Changed,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create merge run: %w", err)
	}

	return nil
}

// GetMergeRun retrieves a run by ID.
func (s *SQLiteStore) GetMergeRun(ctx context.Context, id string) (*MergeRun, error) {
	query := `
		SELECT id, policy, list_diff, current_path, expected_path,
			current_digest, expected_digest, result_digest, changed, status,
			started_at, completed_at, error, created_at, updated_at
		FROM merge_runs
		WHERE id = ?
	`

	run := &MergeRun{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Policy,
		&run.ListDiff,
		&run.CurrentPath,
		&run.ExpectedPath,
		&run.CurrentDigest,
		&run.ExpectedDigest,
		&run.ResultDigest,
		&run.Changed,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("merge run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merge run: %w", err)
	}

	return run, nil
}

// ListMergeRuns lists runs newest first, with pagination.
func (s *SQLiteStore) ListMergeRuns(ctx context.Context, limit, offset int) ([]*MergeRun, error) {
	query := `
		SELECT id, policy, list_diff, current_path, expected_path,
			current_digest, expected_digest, result_digest, changed, status,
			started_at, completed_at, error, created_at, updated_at
		FROM merge_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge runs: %w", err)
	}
	defer rows.Close()

	runs := []*MergeRun{}
	for rows.Next() {
		run := &MergeRun{}
		err := rows.Scan(
			&run.ID,
			&run.Policy,
			&run.ListDiff,
			&run.CurrentPath,
			&run.ExpectedPath,
			&run.CurrentDigest,
			&run.ExpectedDigest,
			&run.ResultDigest,
			&run.Changed,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate merge runs: %w", err)
	}

	return runs, nil
}

// CompleteMergeRun marks a run completed with its result digest and
// whether the merge changed anything.
func (s *SQLiteStore) CompleteMergeRun(ctx context.Context, id, resultDigest string, changed bool) error {
	query := `
		UPDATE merge_runs
		SET status = ?, result_digest = ?, changed = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, RunStatusCompleted, resultDigest, changed, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete merge run: %w", err)
	}

	return requireRowAffected(result, id)
}

// FailMergeRun marks a run failed with an error message.
func (s *SQLiteStore) FailMergeRun(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE merge_runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, RunStatusFailed, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to fail merge run: %w", err)
	}

	return requireRowAffected(result, id)
}

func requireRowAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("merge run not found: %s", id)
	}
	return nil
}
