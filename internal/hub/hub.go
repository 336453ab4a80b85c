package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by the Hub
var (
	ErrHubClosed = errors.New("notification hub is closed")
)

// Event is one change notification delivered to a watcher.
type Event struct {
	OwnerID uuid.UUID       `json:"owner_id"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// SnapshotSource produces the current coordination state for one owner,
// serialized, together with a content hash used for differential checks.
type SnapshotSource interface {
	Snapshot(ctx context.Context, ownerID uuid.UUID) (json.RawMessage, string, error)
}

// Watcher represents one registered client connection waiting for change
// notifications for a single owner.
type Watcher struct {
	owner uuid.UUID
	ch    chan Event
}

// Events returns the channel change notifications arrive on. The channel is
// closed when the watcher is deregistered.
func (w *Watcher) Events() <-chan Event {
	return w.ch
}

// watcherBuffer is the per-watcher channel buffer. A watcher whose consumer
// falls this far behind is treated as dead and deregistered rather than
// allowed to block broadcasts.
const watcherBuffer = 16

// Hub is an in-memory registry of watchers per owner identity. It supports
// immediate broadcast, long-poll wait, and feeds the streaming transport.
//
// All state is owned by this instance; construct one per process and pass it
// where needed. Nothing here survives a restart, by design: watchers are
// rebuilt as clients reconnect.
type Hub struct {
	mu       sync.Mutex
	watchers map[uuid.UUID][]*Watcher
	// lastHash caches the most recent snapshot hash per owner. Notify
	// invalidates it so the next differential check recomputes from the
	// store instead of trusting a stale value.
	lastHash map[uuid.UUID]string
	closed   bool

	source SnapshotSource
	logger *slog.Logger

	// longPollTimeout bounds WaitForChange when the caller does not
	// override it.
	longPollTimeout time.Duration

	// testHookAfterRegister runs between watcher registration and the
	// differential check in WaitForChange. Tests use it to narrow the
	// missed-wakeup window to zero.
	testHookAfterRegister func()
}

// New creates a Hub reading owner snapshots from source.
func New(source SnapshotSource, longPollTimeout time.Duration, logger *slog.Logger) *Hub {
	if longPollTimeout <= 0 {
		longPollTimeout = 30 * time.Second
	}
	return &Hub{
		watchers:        make(map[uuid.UUID][]*Watcher),
		lastHash:        make(map[uuid.UUID]string),
		source:          source,
		logger:          logger.With("component", "notification_hub"),
		longPollTimeout: longPollTimeout,
	}
}

// Subscribe registers a watcher for the owner and returns it. The caller
// must Unsubscribe when the consuming transport goes away; leaked watchers
// accumulate until a broadcast fails against them.
func (h *Hub) Subscribe(ownerID uuid.UUID) (*Watcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	w := &Watcher{owner: ownerID, ch: make(chan Event, watcherBuffer)}
	h.watchers[ownerID] = append(h.watchers[ownerID], w)

	h.logger.Debug("watcher registered",
		"owner_id", ownerID,
		"watcher_count", len(h.watchers[ownerID]))

	return w, nil
}

// Unsubscribe removes the watcher and closes its channel. Safe to call more
// than once.
func (h *Hub) Unsubscribe(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(w)
}

// removeLocked deletes the watcher from the registry. Callers hold h.mu.
func (h *Hub) removeLocked(w *Watcher) {
	watchers := h.watchers[w.owner]
	for i, candidate := range watchers {
		if candidate == w {
			h.watchers[w.owner] = append(watchers[:i], watchers[i+1:]...)
			close(w.ch)
			break
		}
	}
	if len(h.watchers[w.owner]) == 0 {
		delete(h.watchers, w.owner)
	}
}

// Notify delivers payload to every watcher registered for the owner, then
// invalidates the owner's cached state hash. Delivery to one watcher never
// affects delivery to the others: a watcher that cannot accept the event
// (consumer gone or hopelessly behind) is deregistered, not retried.
//
// Broadcasts for the same owner are delivered in Notify call order; the
// single lock serializes concurrent callers.
func (h *Hub) Notify(ownerID uuid.UUID, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	event := Event{OwnerID: ownerID, Payload: payload, SentAt: time.Now().UTC()}

	// Iterate over a copy: removeLocked mutates the slice.
	watchers := make([]*Watcher, len(h.watchers[ownerID]))
	copy(watchers, h.watchers[ownerID])

	delivered := 0
	for _, w := range watchers {
		select {
		case w.ch <- event:
			delivered++
		default:
			h.logger.Warn("watcher buffer full, deregistering",
				"owner_id", ownerID)
			h.removeLocked(w)
		}
	}

	delete(h.lastHash, ownerID)

	h.logger.Debug("broadcast delivered",
		"owner_id", ownerID,
		"watchers", delivered)
}

// Owners returns every owner that currently has at least one watcher
// registered. The periodic re-check trigger uses this to know whose
// snapshots to poll.
func (h *Hub) Owners() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	owners := make([]uuid.UUID, 0, len(h.watchers))
	for owner := range h.watchers {
		owners = append(owners, owner)
	}
	return owners
}

// WaitResult is the outcome of a long-poll wait.
type WaitResult struct {
	State   json.RawMessage `json:"state"`
	Hash    string          `json:"hash"`
	Changed bool            `json:"changed"`
}

// WaitForChange blocks until the owner's state differs from lastKnownHash,
// a broadcast arrives, or the timeout elapses. It always returns the latest
// snapshot; Changed reports whether it differs from what the caller last saw.
//
// The watcher is registered before the differential check, so a change that
// lands between the caller's snapshot and this call is caught by either the
// check or the watcher; there is no missed-wakeup window.
func (h *Hub) WaitForChange(ctx context.Context, ownerID uuid.UUID, lastKnownHash string, timeout time.Duration) (WaitResult, error) {
	if timeout <= 0 {
		timeout = h.longPollTimeout
	}

	w, err := h.Subscribe(ownerID)
	if err != nil {
		return WaitResult{}, err
	}
	defer h.Unsubscribe(w)

	if h.testHookAfterRegister != nil {
		h.testHookAfterRegister()
	}

	state, hash, err := h.snapshot(ctx, ownerID)
	if err != nil {
		return WaitResult{}, err
	}
	if hash != lastKnownHash {
		return WaitResult{State: state, Hash: hash, Changed: true}, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.Events():
		state, hash, err := h.snapshot(ctx, ownerID)
		if err != nil {
			return WaitResult{}, err
		}
		return WaitResult{State: state, Hash: hash, Changed: hash != lastKnownHash}, nil
	case <-timer.C:
		state, hash, err := h.snapshot(ctx, ownerID)
		if err != nil {
			return WaitResult{}, err
		}
		return WaitResult{State: state, Hash: hash, Changed: hash != lastKnownHash}, nil
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	}
}

// snapshot reads the owner's current state and caches its hash for the
// periodic re-check trigger.
func (h *Hub) snapshot(ctx context.Context, ownerID uuid.UUID) (json.RawMessage, string, error) {
	state, hash, err := h.source.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read owner snapshot: %w", err)
	}

	h.mu.Lock()
	if !h.closed {
		h.lastHash[ownerID] = hash
	}
	h.mu.Unlock()

	return state, hash, nil
}

// LastKnownHash returns the cached snapshot hash for the owner, if any.
func (h *Hub) LastKnownHash(ownerID uuid.UUID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hash, ok := h.lastHash[ownerID]
	return hash, ok
}

// Shutdown deregisters every watcher and rejects further subscriptions.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for owner, watchers := range h.watchers {
		for _, w := range watchers {
			close(w.ch)
		}
		delete(h.watchers, owner)
	}

	h.logger.Info("notification hub shut down")
}
