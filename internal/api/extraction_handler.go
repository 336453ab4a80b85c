package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/queue"
)

// ExtractionService is the queue surface the extraction handler needs.
type ExtractionService interface {
	Enqueue(ctx context.Context, ownerID uuid.UUID, rawURL string, priority int, seedData json.RawMessage) (*queue.EnqueueResult, error)
	EnqueueBatch(ctx context.Context, ownerID uuid.UUID, urls []string) []queue.BatchResult
	GetUserQueue(ctx context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error)
	GetExtractionStatus(ctx context.Context, itemID, ownerID uuid.UUID) (*domain.QueueItem, error)
}

// ExtractionHandler serves the /api/extractions endpoints.
type ExtractionHandler struct {
	queue ExtractionService
}

// NewExtractionHandler creates an ExtractionHandler.
func NewExtractionHandler(queueSvc ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{queue: queueSvc}
}

// Enqueue handles POST /api/extractions. A fresh item returns 202; a
// deduplicated request returns 200 with the existing item's id.
func (h *ExtractionHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req EnqueueExtractionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.queue.Enqueue(r.Context(), ownerID, req.URL, req.Priority, req.SeedData)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if result.Duplicate {
		shared.RespondWithJSON(w, r, http.StatusOK, DuplicateExtractionResponse{
			Duplicate:  true,
			ExistingID: result.ExistingID,
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, result.Item)
}

// EnqueueBatch handles POST /api/extractions/batch. Individual URL failures
// appear in the per-entry results; the endpoint itself succeeds.
func (h *ExtractionHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req BatchExtractionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	results := h.queue.EnqueueBatch(r.Context(), ownerID, req.URLs)

	entries := make([]BatchEntryResponse, 0, len(results))
	for _, result := range results {
		entry := BatchEntryResponse{URL: result.URL}
		switch {
		case result.Err != nil:
			entry.Error = GetSafeErrorMessage(result.Err)
		case result.Result.Duplicate:
			entry.Duplicate = true
			existingID := result.Result.ExistingID
			entry.ExistingID = &existingID
		default:
			entry.Item = result.Result.Item
		}
		entries = append(entries, entry)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BatchExtractionResponse{Results: entries})
}

// List handles GET /api/extractions: the owner's queue in dispatch order.
func (h *ExtractionHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	items, err := h.queue.GetUserQueue(r.Context(), ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if items == nil {
		items = []*domain.QueueItem{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// Get handles GET /api/extractions/{id}. Items that do not exist or belong
// to another owner both read as 404.
func (h *ExtractionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	itemID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	item, err := h.queue.GetExtractionStatus(r.Context(), itemID, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if item == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Extraction not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, item)
}
