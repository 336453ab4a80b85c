package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
)

// QueueStore defines the interface for extraction queue persistence.
type QueueStore interface {
	// CreateExclusive inserts a new queue item, enforcing that at most one
	// pending/processing item exists per (owner, URL). The check and the
	// insert are a single atomic operation in the store; callers must not
	// split them. Returns ErrDuplicateQueueItem when an in-flight item
	// already exists.
	CreateExclusive(ctx context.Context, item *domain.QueueItem) error

	// GetByID retrieves a queue item by its unique ID.
	// Returns ErrQueueItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error)

	// FindInFlight retrieves the pending/processing item for the given owner
	// and URL, if any. Returns ErrQueueItemNotFound when none exists.
	FindInFlight(ctx context.Context, ownerID uuid.UUID, url string) (*domain.QueueItem, error)

	// FindByOwner retrieves the owner's full queue snapshot, ordered by
	// priority descending then creation time ascending.
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error)

	// UpdateStatus writes a status change, bumping UpdatedAt.
	// Returns ErrQueueItemNotFound if the item does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error

	// FindStuck retrieves every pending/processing item created before the
	// given cutoff, the candidates for the reclamation sweep.
	FindStuck(ctx context.Context, createdBefore time.Time) ([]*domain.QueueItem, error)

	// NextPending claims up to limit pending items in dispatch order
	// (priority descending, creation time ascending), marking them
	// processing in the same statement so two workers cannot claim the
	// same item.
	NextPending(ctx context.Context, limit int) ([]*domain.QueueItem, error)

	// WithTx returns a new QueueStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) QueueStore
}
