package cache

import (
	"context"
	"sync"
)

// Flight represents one in-progress generation for a cache key. Waiters
// block on Done until the owning caller saves a result or releases the
// flight.
type Flight struct {
	done chan struct{}
}

// Done returns a channel closed when the flight completes, successfully or
// not. Completion carries no verdict; waiters re-read the cache to learn
// the outcome.
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// flightRegistry tracks the ephemeral in-flight marker per cache key. It is
// process-local and never persisted; a marker lost to a restart only costs
// a recomputation.
type flightRegistry struct {
	mu      sync.Mutex
	flights map[string]*Flight
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{flights: make(map[string]*Flight)}
}

// begin claims the flight for key. The second return is true when the
// caller now owns generation; false means another flight is already in
// progress and the returned Flight is the one to wait on.
func (r *flightRegistry) begin(key string) (*Flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.flights[key]; ok {
		return existing, false
	}

	f := &Flight{done: make(chan struct{})}
	r.flights[key] = f
	return f, true
}

// finish completes and removes the flight for key, waking all waiters.
// A no-op when no flight exists.
func (r *flightRegistry) finish(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.flights[key]; ok {
		close(f.done)
		delete(r.flights, key)
	}
}

// inFlight reports whether a generation is currently claimed for key.
func (r *flightRegistry) inFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flights[key]
	return ok
}

// wait blocks until the flight completes or the context is cancelled.
func (f *Flight) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
