// Package service contains the coordination façade tying the task tracker,
// extraction queue, and notification hub together.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/hub"
	"github.com/jobdeck/jobdeck-api/internal/queue"
	"github.com/jobdeck/jobdeck-api/internal/tracker"
)

// Broadcaster is the slice of the notification hub the coordinator drives.
type Broadcaster interface {
	Notify(ownerID uuid.UUID, payload json.RawMessage)
	Owners() []uuid.UUID
	LastKnownHash(ownerID uuid.UUID) (string, bool)
}

// TaskLister is the slice of the tracker the snapshot builder reads from.
type TaskLister interface {
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)
}

// QueueLister is the slice of the queue service the snapshot builder reads from.
type QueueLister interface {
	GetUserQueue(ctx context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error)
}

// OwnerSnapshot is the coordination state returned to waiting clients: the
// owner's active tasks plus their full extraction queue.
type OwnerSnapshot struct {
	ActiveTasks []*domain.Task      `json:"active_tasks"`
	Queue       []*domain.QueueItem `json:"queue"`
}

// changeEvent is the broadcast payload sent when a task or queue item moves.
type changeEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Coordinator wires task and queue mutations into hub broadcasts and serves
// as the hub's snapshot source. It also runs the periodic re-check trigger
// that catches changes whose push notification was lost.
type Coordinator struct {
	tasks  TaskLister
	queue  QueueLister
	logger *slog.Logger

	// broadcaster is attached after construction because the hub itself is
	// built around this coordinator as its snapshot source.
	mu          sync.RWMutex
	broadcaster Broadcaster

	recheckInterval time.Duration
	stopRecheck     chan struct{}
	recheckDone     chan struct{}
	startOnce       sync.Once
	stopOnce        sync.Once
}

// NewCoordinator creates a Coordinator reading from the given services.
func NewCoordinator(tasks TaskLister, queueSvc QueueLister, recheckInterval time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if recheckInterval <= 0 {
		recheckInterval = 30 * time.Second
	}

	return &Coordinator{
		tasks:           tasks,
		queue:           queueSvc,
		logger:          logger.With(slog.String("component", "coordinator")),
		recheckInterval: recheckInterval,
		stopRecheck:     make(chan struct{}),
		recheckDone:     make(chan struct{}),
	}
}

// AttachBroadcaster connects the hub. Until attached, mutations are applied
// but not announced.
func (c *Coordinator) AttachBroadcaster(b Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcaster = b
}

func (c *Coordinator) currentBroadcaster() Broadcaster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broadcaster
}

// Snapshot implements hub.SnapshotSource: it serializes the owner's active
// tasks and queue, and returns a content hash over the serialized form for
// the differential check.
func (c *Coordinator) Snapshot(ctx context.Context, ownerID uuid.UUID) (json.RawMessage, string, error) {
	active, err := c.tasks.ListActive(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build snapshot: %w", err)
	}

	items, err := c.queue.GetUserQueue(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build snapshot: %w", err)
	}

	snapshot := OwnerSnapshot{ActiveTasks: active, Queue: items}
	if snapshot.ActiveTasks == nil {
		snapshot.ActiveTasks = []*domain.Task{}
	}
	if snapshot.Queue == nil {
		snapshot.Queue = []*domain.QueueItem{}
	}

	state, err := json.Marshal(snapshot)
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	return state, hashState(state), nil
}

// TaskChanged implements tracker.Notifier.
func (c *Coordinator) TaskChanged(ctx context.Context, task *domain.Task) {
	c.broadcast(ctx, task.OwnerID, changeEvent{Type: "task", Data: task})
}

// QueueChanged implements queue.Notifier.
func (c *Coordinator) QueueChanged(ctx context.Context, item *domain.QueueItem) {
	c.broadcast(ctx, item.OwnerID, changeEvent{Type: "queue_item", Data: item})
}

func (c *Coordinator) broadcast(ctx context.Context, ownerID uuid.UUID, event changeEvent) {
	b := c.currentBroadcaster()
	if b == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to serialize change event",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return
	}

	b.Notify(ownerID, payload)
}

// StartRecheck launches the periodic re-check trigger: every interval it
// re-hashes the snapshot of each owner with active watchers and broadcasts
// when the hash moved without a push notification. This is the safety net
// behind the event-driven path, not a replacement for it.
func (c *Coordinator) StartRecheck() {
	c.startOnce.Do(func() {
		go c.recheckLoop()
	})
}

// StopRecheck stops the periodic trigger and waits for the loop to exit.
// Safe to call without a prior StartRecheck.
func (c *Coordinator) StopRecheck() {
	c.stopOnce.Do(func() {
		close(c.stopRecheck)
	})
	c.startOnce.Do(func() {
		close(c.recheckDone)
	})
	<-c.recheckDone
}

func (c *Coordinator) recheckLoop() {
	defer close(c.recheckDone)

	ticker := time.NewTicker(c.recheckInterval)
	defer ticker.Stop()

	c.logger.Info("periodic re-check started",
		slog.Duration("interval", c.recheckInterval))

	for {
		select {
		case <-ticker.C:
			c.recheckOnce(context.Background())
		case <-c.stopRecheck:
			c.logger.Info("periodic re-check stopped")
			return
		}
	}
}

// recheckOnce compares the current snapshot hash against the hub's cached
// hash for every watched owner, broadcasting the fresh state on drift.
func (c *Coordinator) recheckOnce(ctx context.Context) {
	b := c.currentBroadcaster()
	if b == nil {
		return
	}

	for _, ownerID := range b.Owners() {
		lastHash, ok := b.LastKnownHash(ownerID)
		if !ok {
			// No baseline: nobody has taken a snapshot since the last
			// broadcast, so there is nothing to diff against.
			continue
		}

		state, currentHash, err := c.Snapshot(ctx, ownerID)
		if err != nil {
			c.logger.WarnContext(ctx, "re-check snapshot failed",
				slog.String("owner_id", ownerID.String()),
				slog.String("error", err.Error()))
			continue
		}

		if currentHash != lastHash {
			c.logger.DebugContext(ctx, "re-check detected drift",
				slog.String("owner_id", ownerID.String()))
			b.Notify(ownerID, state)
		}
	}
}

// hashState returns the FNV-1a content hash of a serialized snapshot.
func hashState(state []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(state)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Interface conformance checks.
var (
	_ hub.SnapshotSource = (*Coordinator)(nil)
	_ tracker.Notifier   = (*Coordinator)(nil)
	_ queue.Notifier     = (*Coordinator)(nil)
)
