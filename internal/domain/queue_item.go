package domain

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for QueueItem
var (
	ErrEmptyQueueItemID      = errors.New("queue item ID cannot be empty")
	ErrEmptyQueueItemOwnerID = errors.New("queue item owner ID cannot be empty")
	ErrInvalidQueueItemURL   = errors.New("queue item URL is not a valid http(s) URL")
	ErrInvalidQueueStatus    = errors.New("invalid queue item status")
)

// QueueItem represents one requested job-posting extraction. It is distinct
// from Task because it additionally carries the source URL, which together
// with the owner forms the deduplication key for in-flight work.
type QueueItem struct {
	ID       uuid.UUID  `json:"id"`
	OwnerID  uuid.UUID  `json:"owner_id"`
	URL      string     `json:"url"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`
	// SeedData holds pre-scraped page content supplied at enqueue time so a
	// worker need not re-fetch the source.
	SeedData  json.RawMessage `json:"seed_data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewQueueItem creates a new pending QueueItem for the given owner and URL.
// Returns an error if validation fails.
func NewQueueItem(ownerID uuid.UUID, rawURL string, priority int, seedData json.RawMessage) (*QueueItem, error) {
	now := time.Now().UTC()
	item := &QueueItem{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		URL:       rawURL,
		Priority:  priority,
		Status:    TaskStatusPending,
		SeedData:  seedData,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the QueueItem has valid data.
func (q *QueueItem) Validate() error {
	if q.ID == uuid.Nil {
		return ErrEmptyQueueItemID
	}

	if q.OwnerID == uuid.Nil {
		return ErrEmptyQueueItemOwnerID
	}

	if !isValidExtractionURL(q.URL) {
		return ErrInvalidQueueItemURL
	}

	if !isValidQueueStatus(q.Status) {
		return ErrInvalidQueueStatus
	}

	return nil
}

// isValidQueueStatus checks the queue item status set, which excludes the
// cached state used by tasks.
func isValidQueueStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// isValidExtractionURL reports whether the raw URL is an absolute http or
// https URL with a host.
func isValidExtractionURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
