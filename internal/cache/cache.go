package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// Default TTLs per kind. Market data moves slowly; match scores and
// negotiation advice depend on the resume, which changes often.
var defaultTTLs = map[domain.TaskKind]time.Duration{
	domain.TaskKindSalaryAnalysis:      7 * 24 * time.Hour,
	domain.TaskKindMatchScore:          24 * time.Hour,
	domain.TaskKindNegotiationStrategy: 24 * time.Hour,
	domain.TaskKindExtraction:          30 * 24 * time.Hour,
}

// fallbackTTL applies to kinds without an explicit policy entry.
const fallbackTTL = time.Hour

// CheckResult is the outcome of a pure cache read. A stale entry is still
// returned with Expired=true so callers can show stale data while
// refreshing.
type CheckResult struct {
	Cached     bool            `json:"cached"`
	Expired    bool            `json:"expired"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ComputedAt time.Time       `json:"computed_at,omitempty"`
	ExpiresAt  time.Time       `json:"expires_at,omitempty"`
}

// Usable reports whether the result carries a fresh payload.
func (r CheckResult) Usable() bool {
	return r.Cached && !r.Expired
}

// State is CheckResult plus the UI-facing generate-button decision.
type State struct {
	CheckResult
	// ShouldShowGenerateButton is derived purely from cache state, never
	// from the in-flight marker, so display logic is not exposed to
	// transient concurrency state.
	ShouldShowGenerateButton bool `json:"should_show_generate_button"`
}

// UnifiedCache memoizes expensive computations in the record store with
// per-kind TTLs and collapses concurrent generation requests per key.
//
// The cache does not execute generation functions. The protocol is:
//
//	result, _ := c.Check(ctx, key)
//	if result.Usable() { return result.Payload }
//	flight, owner := c.BeginGeneration(key)
//	if !owner {
//	        c.WaitForFlight(ctx, flight) // then re-Check
//	} else {
//	        payload, err := generate()
//	        if err != nil { c.ReleaseGeneration(key) } else { c.Save(ctx, key, payload) }
//	}
type UnifiedCache struct {
	store    store.CacheStore
	ttls     map[domain.TaskKind]time.Duration
	inflight *flightRegistry
	logger   *slog.Logger

	// now is injectable for TTL tests.
	now func() time.Time
}

// New creates a UnifiedCache backed by the given store with the default
// TTL policy.
func New(cacheStore store.CacheStore, logger *slog.Logger) *UnifiedCache {
	ttls := make(map[domain.TaskKind]time.Duration, len(defaultTTLs))
	for kind, ttl := range defaultTTLs {
		ttls[kind] = ttl
	}
	return &UnifiedCache{
		store:    cacheStore,
		ttls:     ttls,
		inflight: newFlightRegistry(),
		logger:   logger.With("component", "unified_cache"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the time-to-live applied to entries of the given kind.
func (c *UnifiedCache) TTL(kind domain.TaskKind) time.Duration {
	if ttl, ok := c.ttls[kind]; ok {
		return ttl
	}
	return fallbackTTL
}

// SetTTL overrides the time-to-live for a kind.
func (c *UnifiedCache) SetTTL(kind domain.TaskKind, ttl time.Duration) {
	c.ttls[kind] = ttl
}

// Check is a pure read of the entry for key.
func (c *UnifiedCache) Check(ctx context.Context, key domain.CacheKey) (CheckResult, error) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CheckResult{}, nil
		}
		return CheckResult{}, fmt.Errorf("cache lookup failed: %w", err)
	}

	return CheckResult{
		Cached:     true,
		Expired:    entry.ExpiredAt(c.now()),
		Payload:    entry.Payload,
		ComputedAt: entry.ComputedAt,
		ExpiresAt:  entry.ExpiresAt,
	}, nil
}

// InitialState combines Check with the generate-button decision: the button
// shows when no usable cached payload exists.
func (c *UnifiedCache) InitialState(ctx context.Context, key domain.CacheKey) (State, error) {
	result, err := c.Check(ctx, key)
	if err != nil {
		return State{}, err
	}

	return State{
		CheckResult:              result,
		ShouldShowGenerateButton: !result.Usable(),
	}, nil
}

// Save upserts the entry for key and completes any in-flight generation,
// waking waiters.
func (c *UnifiedCache) Save(ctx context.Context, key domain.CacheKey, payload json.RawMessage) error {
	now := c.now()
	entry := &domain.CacheEntry{
		Key:        key,
		Payload:    payload,
		ComputedAt: now,
		ExpiresAt:  now.Add(c.TTL(key.Kind)),
	}

	if err := c.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("cache save failed: %w", err)
	}

	c.inflight.finish(key.String())

	c.logger.Debug("cache entry saved",
		"kind", key.Kind,
		"subject_id", key.SubjectID,
		"expires_at", entry.ExpiresAt)

	return nil
}

// Preload reports the state for several kinds sharing a subject and owner
// in one store round trip. It never triggers generation.
func (c *UnifiedCache) Preload(ctx context.Context, subjectID, ownerID uuid.UUID, kinds []domain.TaskKind, params map[string]string) (map[domain.TaskKind]State, error) {
	paramsHash := domain.NormalizeParams(params)

	entries, err := c.store.GetMany(ctx, subjectID, ownerID, kinds, paramsHash)
	if err != nil {
		return nil, fmt.Errorf("cache preload failed: %w", err)
	}

	now := c.now()
	states := make(map[domain.TaskKind]State, len(kinds))
	for _, kind := range kinds {
		entry, ok := entries[kind]
		if !ok {
			states[kind] = State{ShouldShowGenerateButton: true}
			continue
		}

		result := CheckResult{
			Cached:     true,
			Expired:    entry.ExpiredAt(now),
			Payload:    entry.Payload,
			ComputedAt: entry.ComputedAt,
			ExpiresAt:  entry.ExpiresAt,
		}
		states[kind] = State{
			CheckResult:              result,
			ShouldShowGenerateButton: !result.Usable(),
		}
	}

	return states, nil
}

// Clear invalidates every entry scoped to the subject/owner pair, across
// kinds and params. Used when underlying source data changes, e.g. a new
// resume upload.
func (c *UnifiedCache) Clear(ctx context.Context, subjectID, ownerID uuid.UUID) (int64, error) {
	removed, err := c.store.DeleteBySubject(ctx, subjectID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("cache clear failed: %w", err)
	}

	c.logger.Debug("cache cleared",
		"subject_id", subjectID,
		"owner_id", ownerID,
		"removed", removed)

	return removed, nil
}

// BeginGeneration claims the in-flight marker for key. Returns true when
// the caller now owns generation and must eventually call Save or
// ReleaseGeneration; false means another generation is in progress, and the
// returned Flight is the one to wait on.
func (c *UnifiedCache) BeginGeneration(key domain.CacheKey) (*Flight, bool) {
	return c.inflight.begin(key.String())
}

// ReleaseGeneration completes the flight for key without saving, waking
// waiters so they can re-check and decide for themselves. The failure path
// counterpart of Save.
func (c *UnifiedCache) ReleaseGeneration(key domain.CacheKey) {
	c.inflight.finish(key.String())
}

// InFlight reports whether a generation is currently claimed for key.
func (c *UnifiedCache) InFlight(key domain.CacheKey) bool {
	return c.inflight.inFlight(key.String())
}

// WaitForFlight blocks until the flight completes or ctx is cancelled.
// After a successful wait the caller re-reads the cache for the outcome.
func (c *UnifiedCache) WaitForFlight(ctx context.Context, flight *Flight) error {
	return flight.wait(ctx)
}
