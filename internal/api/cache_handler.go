package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/cache"
	"github.com/jobdeck/jobdeck-api/internal/domain"
)

// CacheService is the cache surface the cache handler needs.
type CacheService interface {
	InitialState(ctx context.Context, key domain.CacheKey) (cache.State, error)
	Save(ctx context.Context, key domain.CacheKey, payload json.RawMessage) error
	Preload(ctx context.Context, subjectID, ownerID uuid.UUID, kinds []domain.TaskKind, params map[string]string) (map[domain.TaskKind]cache.State, error)
	Clear(ctx context.Context, subjectID, ownerID uuid.UUID) (int64, error)
}

// CacheHandler serves the /api/caches endpoints.
type CacheHandler struct {
	cache CacheService
}

// NewCacheHandler creates a CacheHandler.
func NewCacheHandler(cacheSvc CacheService) *CacheHandler {
	return &CacheHandler{cache: cacheSvc}
}

// Get handles GET /api/caches/{subjectID}/{kind}?param=value...: the initial
// display state for one computation.
func (h *CacheHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	kind, subjectID, ok := h.pathKey(w, r)
	if !ok {
		return
	}

	params := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}

	state, err := h.cache.InitialState(r.Context(), domain.NewCacheKey(kind, subjectID, ownerID, params))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, state)
}

// Save handles POST /api/caches/{subjectID}/{kind}: store a computed result.
func (h *CacheHandler) Save(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	kind, subjectID, ok := h.pathKey(w, r)
	if !ok {
		return
	}

	var req SaveCacheRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	key := domain.NewCacheKey(kind, subjectID, ownerID, req.Params)
	if err := h.cache.Save(r.Context(), key, req.Payload); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Preload handles POST /api/caches/{subjectID}/preload: the batched initial
// state for several kinds of one subject.
func (h *CacheHandler) Preload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	subjectID, err := getPathUUID(r, "subjectID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req PreloadCacheRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	kinds := make([]domain.TaskKind, 0, len(req.Kinds))
	for _, raw := range req.Kinds {
		kind, err := parseTaskKind(raw)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		kinds = append(kinds, kind)
	}

	states, err := h.cache.Preload(r.Context(), subjectID, ownerID, kinds, req.Params)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, states)
}

// Clear handles DELETE /api/caches/{subjectID}: drop every cached
// computation for a subject, across kinds.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	subjectID, err := getPathUUID(r, "subjectID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	removed, err := h.cache.Clear(r.Context(), subjectID, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ClearCacheResponse{Removed: removed})
}

// pathKey parses the {kind} and {subjectID} path parameters.
func (h *CacheHandler) pathKey(w http.ResponseWriter, r *http.Request) (domain.TaskKind, uuid.UUID, bool) {
	kind, err := parseTaskKind(chi.URLParam(r, "kind"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return "", uuid.Nil, false
	}

	subjectID, err := getPathUUID(r, "subjectID")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return "", uuid.Nil, false
	}

	return kind, subjectID, true
}
