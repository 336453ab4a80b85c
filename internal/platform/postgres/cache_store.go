package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/platform/logger"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// PostgresCacheStore implements the store.CacheStore interface using PostgreSQL.
type PostgresCacheStore struct {
	db store.DBTX
}

// NewPostgresCacheStore creates a new PostgresCacheStore.
func NewPostgresCacheStore(db store.DBTX) *PostgresCacheStore {
	return &PostgresCacheStore{db: db}
}

var _ store.CacheStore = (*PostgresCacheStore)(nil)

// Get retrieves the entry for the given key, expired or not.
func (s *PostgresCacheStore) Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error) {
	query := `
		SELECT kind, subject_id, owner_id, params_hash, payload, computed_at, expires_at
		FROM cache_entries
		WHERE kind = $1 AND subject_id = $2 AND owner_id = $3 AND params_hash = $4
	`

	row := s.db.QueryRowContext(ctx, query, key.Kind, key.SubjectID, key.OwnerID, key.ParamsHash)

	entry, err := scanCacheEntry(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrCacheEntryNotFound
		}
		return nil, MapError(err)
	}

	return entry, nil
}

// GetMany retrieves entries for several kinds in one round trip.
func (s *PostgresCacheStore) GetMany(ctx context.Context, subjectID, ownerID uuid.UUID, kinds []domain.TaskKind, paramsHash string) (map[domain.TaskKind]*domain.CacheEntry, error) {
	log := logger.FromContext(ctx)

	entries := make(map[domain.TaskKind]*domain.CacheEntry, len(kinds))
	if len(kinds) == 0 {
		return entries, nil
	}

	kindStrings := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrings[i] = string(k)
	}

	query := `
		SELECT kind, subject_id, owner_id, params_hash, payload, computed_at, expires_at
		FROM cache_entries
		WHERE subject_id = $1 AND owner_id = $2 AND params_hash = $3 AND kind = ANY($4)
	`

	rows, err := s.db.QueryContext(ctx, query, subjectID, ownerID, paramsHash, kindStrings)
	if err != nil {
		log.Error("failed to query cache entries",
			"subject_id", subjectID,
			"owner_id", ownerID,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		entry, err := scanCacheEntry(rows)
		if err != nil {
			log.Error("failed to scan cache entry row", "error", err)
			return nil, MapError(err)
		}
		entries[entry.Key.Kind] = entry
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating cache entry rows", "error", err)
		return nil, MapError(err)
	}

	return entries, nil
}

// Upsert creates or replaces the entry for its key.
func (s *PostgresCacheStore) Upsert(ctx context.Context, entry *domain.CacheEntry) error {
	log := logger.FromContext(ctx)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO cache_entries (kind, subject_id, owner_id, params_hash, payload, computed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind, subject_id, owner_id, params_hash)
		DO UPDATE SET payload = EXCLUDED.payload,
		              computed_at = EXCLUDED.computed_at,
		              expires_at = EXCLUDED.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.Key.Kind,
		entry.Key.SubjectID,
		entry.Key.OwnerID,
		entry.Key.ParamsHash,
		[]byte(entry.Payload),
		entry.ComputedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		log.Error("failed to upsert cache entry",
			"kind", entry.Key.Kind,
			"subject_id", entry.Key.SubjectID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// DeleteBySubject removes every entry scoped to the subject/owner pair.
func (s *PostgresCacheStore) DeleteBySubject(ctx context.Context, subjectID, ownerID uuid.UUID) (int64, error) {
	log := logger.FromContext(ctx)

	query := `DELETE FROM cache_entries WHERE subject_id = $1 AND owner_id = $2`

	result, err := s.db.ExecContext(ctx, query, subjectID, ownerID)
	if err != nil {
		log.Error("failed to delete cache entries",
			"subject_id", subjectID,
			"owner_id", ownerID,
			"error", err)
		return 0, MapError(err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return removed, nil
}

// WithTx returns a new CacheStore instance that uses the provided transaction.
func (s *PostgresCacheStore) WithTx(tx *sql.Tx) store.CacheStore {
	return &PostgresCacheStore{db: tx}
}

// scanCacheEntry maps one cache entry row onto a domain.CacheEntry.
func scanCacheEntry(row rowScanner) (*domain.CacheEntry, error) {
	var (
		entry   domain.CacheEntry
		payload []byte
	)

	if err := row.Scan(
		&entry.Key.Kind,
		&entry.Key.SubjectID,
		&entry.Key.OwnerID,
		&entry.Key.ParamsHash,
		&payload,
		&entry.ComputedAt,
		&entry.ExpiresAt,
	); err != nil {
		return nil, err
	}

	entry.Payload = payload

	return &entry, nil
}
