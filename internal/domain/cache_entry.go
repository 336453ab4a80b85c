package domain

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for CacheEntry
var (
	ErrEmptyCacheSubjectID = errors.New("cache entry subject ID cannot be empty")
	ErrEmptyCacheOwnerID   = errors.New("cache entry owner ID cannot be empty")
	ErrEmptyCachePayload   = errors.New("cache entry payload cannot be empty")
)

// CacheKey identifies one memoized computation. Params are normalized into
// ParamsHash so that logically equal parameter sets produce the same key.
type CacheKey struct {
	Kind       TaskKind  `json:"kind"`
	SubjectID  uuid.UUID `json:"subject_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	ParamsHash string    `json:"params_hash"`
}

// NewCacheKey builds a CacheKey with params normalized via sorted-key
// serialization. A nil params map normalizes to an empty hash so that
// "no params" and "empty params" are the same key.
func NewCacheKey(kind TaskKind, subjectID, ownerID uuid.UUID, params map[string]string) CacheKey {
	return CacheKey{
		Kind:       kind,
		SubjectID:  subjectID,
		OwnerID:    ownerID,
		ParamsHash: NormalizeParams(params),
	}
}

// String renders the key in a stable form suitable for map keys and logs.
func (k CacheKey) String() string {
	return string(k.Kind) + ":" + k.SubjectID.String() + ":" + k.OwnerID.String() + ":" + k.ParamsHash
}

// NormalizeParams serializes params deterministically: keys sorted, joined as
// key=value pairs. Returns "" for empty input.
func NormalizeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// CacheEntry is the memoized result of one expensive computation. The
// payload is opaque at this layer.
type CacheEntry struct {
	Key        CacheKey        `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Validate checks if the CacheEntry has valid data.
func (e *CacheEntry) Validate() error {
	if e.Key.SubjectID == uuid.Nil {
		return ErrEmptyCacheSubjectID
	}

	if e.Key.OwnerID == uuid.Nil {
		return ErrEmptyCacheOwnerID
	}

	if !isValidTaskKind(e.Key.Kind) {
		return ErrInvalidTaskKind
	}

	if len(e.Payload) == 0 {
		return ErrEmptyCachePayload
	}

	return nil
}

// ExpiredAt reports whether the entry is stale at the given instant.
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
