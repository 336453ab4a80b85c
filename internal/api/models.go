package api

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
)

// EnqueueExtractionRequest is the body of POST /api/extractions.
type EnqueueExtractionRequest struct {
	URL      string          `json:"url"      validate:"required,url"`
	Priority int             `json:"priority" validate:"gte=0,lte=100"`
	SeedData json.RawMessage `json:"seed_data,omitempty"`
}

// BatchExtractionRequest is the body of POST /api/extractions/batch.
type BatchExtractionRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=50,dive,required"`
}

// BatchEntryResponse reports one URL's outcome in a batch response.
type BatchEntryResponse struct {
	URL        string            `json:"url"`
	Item       *domain.QueueItem `json:"item,omitempty"`
	Duplicate  bool              `json:"duplicate"`
	ExistingID *uuid.UUID        `json:"existing_id,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// BatchExtractionResponse is the body returned by the batch endpoint.
type BatchExtractionResponse struct {
	Results []BatchEntryResponse `json:"results"`
}

// DuplicateExtractionResponse is returned with 200 when an enqueue
// deduplicated against an in-flight item.
type DuplicateExtractionResponse struct {
	Duplicate  bool      `json:"duplicate"`
	ExistingID uuid.UUID `json:"existing_id"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Kind         string `json:"kind"          validate:"required,oneof=salary_analysis match_score negotiation_strategy extraction"`
	SubjectLabel string `json:"subject_label" validate:"required,max=500"`
}

// TransitionTaskRequest is the body of PATCH /api/tasks/{id}.
type TransitionTaskRequest struct {
	Status      string          `json:"status" validate:"required,oneof=processing completed cached failed"`
	CurrentStep *string         `json:"current_step,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

// SaveCacheRequest is the body of POST /api/caches/{kind}/{subjectID}.
type SaveCacheRequest struct {
	Params  map[string]string `json:"params,omitempty"`
	Payload json.RawMessage   `json:"payload" validate:"required"`
}

// PreloadCacheRequest is the body of POST /api/caches/{subjectID}/preload.
type PreloadCacheRequest struct {
	Kinds  []string          `json:"kinds" validate:"required,min=1,dive,oneof=salary_analysis match_score negotiation_strategy extraction"`
	Params map[string]string `json:"params,omitempty"`
}

// ClearCacheResponse reports how many entries a clear removed.
type ClearCacheResponse struct {
	Removed int64 `json:"removed"`
}
