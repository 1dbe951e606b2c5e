package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a recorded merge run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MergeRun is the persisted record of one merge invocation: which
// documents went in, under what policy, and what came out.
type MergeRun struct {
	ID             string     `json:"id"`
	Policy         string     `json:"policy"`
	ListDiff       string     `json:"list_diff"`
	CurrentPath    string     `json:"current_path"`
	ExpectedPath   string     `json:"expected_path"`
	CurrentDigest  string     `json:"current_digest"`
	ExpectedDigest string     `json:"expected_digest"`
	ResultDigest   *string    `json:"result_digest,omitempty"`
	Changed        bool       `json:"changed"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Store is the persistence interface for merge-run history.
type Store interface {
	// Init opens the underlying database.
	Init(ctx context.Context) error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// CreateMergeRun inserts a new run record.
	CreateMergeRun(ctx context.Context, run *MergeRun) error

	// GetMergeRun retrieves a run by ID.
	GetMergeRun(ctx context.Context, id string) (*MergeRun, error)

	// ListMergeRuns lists runs newest first, with pagination.
	ListMergeRuns(ctx context.Context, limit, offset int) ([]*MergeRun, error)

	// CompleteMergeRun marks a run completed with its result digest and
	// whether the merge changed anything.
	CompleteMergeRun(ctx context.Context, id, resultDigest string, changed bool) error

	// FailMergeRun marks a run failed with an error message.
	FailMergeRun(ctx context.Context, id, errMsg string) error
}
