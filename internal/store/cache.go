package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
)

// CacheStore defines the interface for memoized-result persistence.
type CacheStore interface {
	// Get retrieves the entry for the given key, expired or not.
	// Returns ErrCacheEntryNotFound if no entry exists.
	Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error)

	// GetMany retrieves entries for several kinds sharing the same subject,
	// owner and params in one round trip. Kinds with no entry are simply
	// absent from the result.
	GetMany(ctx context.Context, subjectID, ownerID uuid.UUID, kinds []domain.TaskKind, paramsHash string) (map[domain.TaskKind]*domain.CacheEntry, error)

	// Upsert creates or replaces the entry for its key.
	Upsert(ctx context.Context, entry *domain.CacheEntry) error

	// DeleteBySubject removes every entry scoped to the subject/owner pair,
	// across all kinds and params. Returns the number of entries removed.
	DeleteBySubject(ctx context.Context, subjectID, ownerID uuid.UUID) (int64, error)

	// WithTx returns a new CacheStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) CacheStore
}
