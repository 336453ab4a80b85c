// Package queue implements the extraction queue service: accepting
// job-posting URLs for background extraction with per-owner deduplication of
// in-flight work.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// Notifier receives a callback after every successful queue mutation.
type Notifier interface {
	QueueChanged(ctx context.Context, item *domain.QueueItem)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, item *domain.QueueItem)

// QueueChanged implements Notifier.
func (f NotifierFunc) QueueChanged(ctx context.Context, item *domain.QueueItem) {
	f(ctx, item)
}

// EnqueueResult reports the outcome of a single enqueue attempt. A duplicate
// is an expected outcome, not an error: the caller gets the id of the item
// already covering the URL.
type EnqueueResult struct {
	Item      *domain.QueueItem `json:"item,omitempty"`
	Duplicate bool              `json:"duplicate"`
	// ExistingID identifies the in-flight item that caused the duplicate.
	ExistingID uuid.UUID `json:"existing_id,omitempty"`
}

// BatchResult pairs one URL from a batch enqueue with its outcome. Exactly
// one of Result and Err is set.
type BatchResult struct {
	URL    string
	Result *EnqueueResult
	Err    error
}

// Queue is the extraction queue service. All state lives in the injected
// store, so a single instance is safe for concurrent use.
type Queue struct {
	items    store.QueueStore
	notifier Notifier
	logger   *slog.Logger
}

// New creates a Queue backed by the given store. The notifier may be nil.
func New(items store.QueueStore, notifier Notifier, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		items:    items,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "queue")),
	}
}

// Enqueue adds a URL to the owner's extraction queue. When the owner already
// has a pending or processing item for the same URL, the result marks the
// request a duplicate and carries the existing item's id; completed or failed
// items never block a re-enqueue.
//
// The duplicate check is enforced by the store at insertion, so two
// concurrent enqueues of the same URL cannot both succeed.
func (q *Queue) Enqueue(ctx context.Context, ownerID uuid.UUID, rawURL string, priority int, seedData json.RawMessage) (*EnqueueResult, error) {
	item, err := domain.NewQueueItem(ownerID, rawURL, priority, seedData)
	if err != nil {
		return nil, fmt.Errorf("invalid queue item: %w", err)
	}

	err = q.items.CreateExclusive(ctx, item)
	if errors.Is(err, store.ErrDuplicateQueueItem) {
		existing, findErr := q.items.FindInFlight(ctx, ownerID, rawURL)
		if findErr != nil {
			if errors.Is(findErr, store.ErrQueueItemNotFound) {
				// The conflicting item finished between our insert and this
				// lookup. Retry once; a second conflict is genuinely racy
				// enough to surface.
				if retryErr := q.items.CreateExclusive(ctx, item); retryErr == nil {
					q.notify(ctx, item)
					return &EnqueueResult{Item: item}, nil
				}
			}
			return nil, fmt.Errorf("failed to resolve duplicate queue item: %w", findErr)
		}

		q.logger.DebugContext(ctx, "duplicate extraction request",
			slog.String("existing_id", existing.ID.String()))

		return &EnqueueResult{Duplicate: true, ExistingID: existing.ID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue extraction: %w", err)
	}

	q.logger.DebugContext(ctx, "extraction enqueued",
		slog.String("item_id", item.ID.String()),
		slog.Int("priority", item.Priority))

	q.notify(ctx, item)
	return &EnqueueResult{Item: item}, nil
}

// EnqueueBatch enqueues every URL with default priority, continuing past
// per-URL failures. The returned slice has one entry per input URL, in input
// order.
func (q *Queue) EnqueueBatch(ctx context.Context, ownerID uuid.UUID, urls []string) []BatchResult {
	results := make([]BatchResult, 0, len(urls))

	for _, rawURL := range urls {
		result, err := q.Enqueue(ctx, ownerID, rawURL, 0, nil)
		if err != nil {
			q.logger.WarnContext(ctx, "batch enqueue entry failed",
				slog.String("url", rawURL),
				slog.String("error", err.Error()))
			results = append(results, BatchResult{URL: rawURL, Err: err})
			continue
		}
		results = append(results, BatchResult{URL: rawURL, Result: result})
	}

	return results
}

// GetUserQueue returns the owner's queue snapshot in dispatch order, priority
// descending then creation time ascending.
func (q *Queue) GetUserQueue(ctx context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error) {
	items, err := q.items.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return items, nil
}

// GetExtractionStatus returns the queue item when it exists and belongs to
// the owner, and nil otherwise. Absence and foreign ownership are
// indistinguishable to the caller.
func (q *Queue) GetExtractionStatus(ctx context.Context, itemID, ownerID uuid.UUID) (*domain.QueueItem, error) {
	item, err := q.items.GetByID(ctx, itemID)
	if errors.Is(err, store.ErrQueueItemNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue item: %w", err)
	}

	if item.OwnerID != ownerID {
		return nil, nil
	}

	return item, nil
}

// UpdateStatus moves a queue item to the given status and announces the
// change. Used by the worker pool as items are claimed and finished.
func (q *Queue) UpdateStatus(ctx context.Context, itemID uuid.UUID, status domain.TaskStatus) (*domain.QueueItem, error) {
	if err := q.items.UpdateStatus(ctx, itemID, status); err != nil {
		return nil, fmt.Errorf("failed to update queue item: %w", err)
	}

	item, err := q.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload queue item: %w", err)
	}

	q.notify(ctx, item)
	return item, nil
}

// notify invokes the change callback when one is configured.
func (q *Queue) notify(ctx context.Context, item *domain.QueueItem) {
	if q.notifier != nil {
		q.notifier.QueueChanged(ctx, item)
	}
}
