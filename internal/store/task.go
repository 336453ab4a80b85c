package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
)

// TaskUpdate describes the mutable fields applied during a status transition.
// Nil fields are left untouched.
type TaskUpdate struct {
	Status      domain.TaskStatus
	CurrentStep *string
	Result      []byte
	Error       *string
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// It handles domain validation internally.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ApplyUpdate writes a status transition, bumping UpdatedAt.
	// Returns ErrTaskNotFound if the task does not exist.
	ApplyUpdate(ctx context.Context, id uuid.UUID, update TaskUpdate) error

	// FindActiveByOwner retrieves all pending/processing tasks for the owner,
	// newest first. Returns an empty slice if none match.
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// FindRecentByOwner retrieves tasks for the owner regardless of status,
	// newest first, bounded by limit.
	FindRecentByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error)

	// FindStuck retrieves every pending/processing task created before the
	// given cutoff, the candidates for the reclamation sweep.
	FindStuck(ctx context.Context, createdBefore time.Time) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
