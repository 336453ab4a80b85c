package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/platform/logger"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// PostgresQueueStore implements the store.QueueStore interface using PostgreSQL.
//
// The at-most-one-in-flight-item-per-(owner, URL) invariant is enforced by a
// partial unique index (see the queue_items migration), so the dedup check
// and the insert are one atomic statement rather than a read followed by a
// write.
type PostgresQueueStore struct {
	db store.DBTX
}

// NewPostgresQueueStore creates a new PostgresQueueStore.
func NewPostgresQueueStore(db store.DBTX) *PostgresQueueStore {
	return &PostgresQueueStore{db: db}
}

var _ store.QueueStore = (*PostgresQueueStore)(nil)

const queueItemColumns = `id, owner_id, url, priority, status, seed_data, created_at, updated_at`

// CreateExclusive inserts a new queue item; the partial unique index turns a
// concurrent duplicate into a unique violation, which is surfaced as
// store.ErrDuplicateQueueItem.
func (s *PostgresQueueStore) CreateExclusive(ctx context.Context, item *domain.QueueItem) error {
	log := logger.FromContext(ctx)

	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO queue_items (id, owner_id, url, priority, status, seed_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.OwnerID,
		item.URL,
		item.Priority,
		item.Status,
		nullableBytes(item.SeedData),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrDuplicateQueueItem, err)
		}
		log.Error("failed to save queue item",
			"item_id", item.ID,
			"owner_id", item.OwnerID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a queue item by its unique ID.
func (s *PostgresQueueStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = $1`

	item, err := scanQueueItem(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrQueueItemNotFound
		}
		return nil, MapError(err)
	}

	return item, nil
}

// FindInFlight retrieves the pending/processing item for the owner and URL.
func (s *PostgresQueueStore) FindInFlight(ctx context.Context, ownerID uuid.UUID, url string) (*domain.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE owner_id = $1 AND url = $2 AND status IN ($3, $4)
		LIMIT 1
	`

	item, err := scanQueueItem(s.db.QueryRowContext(ctx, query,
		ownerID, url, domain.TaskStatusPending, domain.TaskStatusProcessing))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrQueueItemNotFound
		}
		return nil, MapError(err)
	}

	return item, nil
}

// FindByOwner retrieves the owner's queue snapshot ordered by priority
// descending then creation time ascending.
func (s *PostgresQueueStore) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE owner_id = $1
		ORDER BY priority DESC, created_at ASC
	`

	return s.queryQueueItems(ctx, query, ownerID)
}

// UpdateStatus writes a status change, bumping updated_at.
func (s *PostgresQueueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	log := logger.FromContext(ctx)

	query := `UPDATE queue_items SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update queue item status",
			"item_id", id,
			"status", status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "queue item"); err != nil {
		return store.ErrQueueItemNotFound
	}

	return nil
}

// FindStuck retrieves every pending/processing item created before the cutoff.
func (s *PostgresQueueStore) FindStuck(ctx context.Context, createdBefore time.Time) ([]*domain.QueueItem, error) {
	query := `
		SELECT ` + queueItemColumns + `
		FROM queue_items
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at ASC
	`

	return s.queryQueueItems(ctx, query,
		domain.TaskStatusPending, domain.TaskStatusProcessing, createdBefore)
}

// NextPending claims up to limit pending items in dispatch order, marking
// them processing in the same statement. FOR UPDATE SKIP LOCKED keeps two
// workers from claiming the same rows.
func (s *PostgresQueueStore) NextPending(ctx context.Context, limit int) ([]*domain.QueueItem, error) {
	query := `
		UPDATE queue_items
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM queue_items
			WHERE status = $3
			ORDER BY priority DESC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueItemColumns + `
	`

	return s.queryQueueItems(ctx, query,
		domain.TaskStatusProcessing, time.Now().UTC(), domain.TaskStatusPending, limit)
}

// WithTx returns a new QueueStore instance that uses the provided transaction.
func (s *PostgresQueueStore) WithTx(tx *sql.Tx) store.QueueStore {
	return &PostgresQueueStore{db: tx}
}

// queryQueueItems runs a query returning queue item rows and scans them.
func (s *PostgresQueueStore) queryQueueItems(ctx context.Context, query string, args ...any) ([]*domain.QueueItem, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query queue items", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			log.Error("failed to scan queue item row", "error", err)
			return nil, MapError(err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating queue item rows", "error", err)
		return nil, MapError(err)
	}

	return items, nil
}

// scanQueueItem maps one queue item row onto a domain.QueueItem.
func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var (
		item     domain.QueueItem
		seedData []byte
	)

	if err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.URL,
		&item.Priority,
		&item.Status,
		&seedData,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	item.SeedData = seedData

	return &item, nil
}
