package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/hub"
)

// UpdatesHub is the notification hub surface the updates handler needs.
type UpdatesHub interface {
	WaitForChange(ctx context.Context, ownerID uuid.UUID, lastKnownHash string, timeout time.Duration) (hub.WaitResult, error)
	Subscribe(ownerID uuid.UUID) (*hub.Watcher, error)
	Unsubscribe(w *hub.Watcher)
}

// SnapshotProvider reads the current coordination state for an owner.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, ownerID uuid.UUID) (json.RawMessage, string, error)
}

// UpdatesHandler serves the /api/updates endpoints: long-poll wait and SSE
// stream. Both ride the same broadcast path in the hub.
type UpdatesHandler struct {
	hub               UpdatesHub
	snapshots         SnapshotProvider
	heartbeatInterval time.Duration
}

// NewUpdatesHandler creates an UpdatesHandler. A non-positive heartbeat
// interval defaults to 30 seconds.
func NewUpdatesHandler(updatesHub UpdatesHub, snapshots SnapshotProvider, heartbeatInterval time.Duration) *UpdatesHandler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	return &UpdatesHandler{
		hub:               updatesHub,
		snapshots:         snapshots,
		heartbeatInterval: heartbeatInterval,
	}
}

// Wait handles GET /api/updates/wait?hash=<lastKnownHash>. It blocks until
// the owner's state differs from the given hash, a change is broadcast, or
// the hub's long-poll timeout passes; the response always carries the latest
// snapshot and hash for the next call.
func (h *UpdatesHandler) Wait(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	lastKnownHash := r.URL.Query().Get("hash")

	result, err := h.hub.WaitForChange(r.Context(), ownerID, lastKnownHash, 0)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away; nothing useful to write.
			return
		}
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Stream handles GET /api/updates/stream: an SSE stream of the owner's
// coordination state. The stream opens with a snapshot event, emits an
// update event per broadcast, and sends heartbeat comments to keep
// intermediaries from closing an idle connection.
func (h *UpdatesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Register before the initial snapshot so a change landing in between
	// is delivered rather than lost.
	watcher, err := h.hub.Subscribe(ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	defer h.hub.Unsubscribe(watcher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	state, _, err := h.snapshots.Snapshot(r.Context(), ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if !writeSSEEvent(w, flusher, "snapshot", state) {
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-watcher.Events():
			if !open {
				return
			}
			if !writeSSEEvent(w, flusher, "update", event.Payload) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes one SSE frame and reports whether the connection is
// still usable.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data json.RawMessage) bool {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
