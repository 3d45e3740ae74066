package observer

import (
	"context"
	"sync"
	"time"

	"streamflux/internal/events"
	"streamflux/internal/favorites"
)

const (
	DefaultIdleTTL      = 10 * time.Minute
	DefaultMaxObservers = 256
)

type RegistryOption func(*Registry)

// WithIdleTTL unmounts observers nobody asked for within ttl.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTTL = ttl }
}

// WithMaxObservers caps the mounted observers; the least recently used one
// is unmounted first.
func WithMaxObservers(n int) RegistryOption {
	return func(r *Registry) { r.maxObservers = n }
}

// WithObserverOptions sets the options every mounted observer is built with.
func WithObserverOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

type entry struct {
	observer *Observer
	mounted  chan struct{}
	err      error
	lastUsed time.Time
}

// Registry hands out one mounted Observer per backend and unmounts the ones
// that went idle.
type Registry struct {
	store        Store
	pipeline     Enricher
	bus          *events.Bus
	opts         []Option
	idleTTL      time.Duration
	maxObservers int
	now          func() time.Time

	ctx     context.Context
	mu      sync.Mutex
	entries map[favorites.Backend]*entry
}

// NewRegistry mounts observers with ctx, which should outlive requests.
func NewRegistry(ctx context.Context, store Store, pipeline Enricher, bus *events.Bus, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:        store,
		pipeline:     pipeline,
		bus:          bus,
		idleTTL:      DefaultIdleTTL,
		maxObservers: DefaultMaxObservers,
		now:          time.Now,
		ctx:          ctx,
		entries:      make(map[favorites.Backend]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the observer of b, mounting it on first use. Concurrent first
// callers all wait for the same mount. A failed first load is reported to
// each of them but the observer stays registered in the Errored state.
func (r *Registry) Get(b favorites.Backend) (*Observer, error) {
	r.mu.Lock()
	e, ok := r.entries[b]
	now := r.now()
	if ok {
		e.lastUsed = now
	} else {
		e = &entry{
			observer: New(r.store, r.pipeline, b, r.bus, r.opts...),
			mounted:  make(chan struct{}),
			lastUsed: now,
		}
		r.entries[b] = e
	}
	evicted := r.evictLocked(b, now)
	r.mu.Unlock()

	for _, old := range evicted {
		unmount(old)
	}

	if ok {
		<-e.mounted
		return e.observer, e.err
	}

	e.err = e.observer.Mount(r.ctx)
	close(e.mounted)
	return e.observer, e.err
}

// Len reports the number of mounted observers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictLocked drops idle entries and, above the cap, the least recently
// used ones. keep is never evicted.
func (r *Registry) evictLocked(keep favorites.Backend, now time.Time) []*entry {
	var evicted []*entry
	drop := func(b favorites.Backend, e *entry) {
		delete(r.entries, b)
		evicted = append(evicted, e)
	}

	if r.idleTTL > 0 {
		for b, e := range r.entries {
			if b != keep && now.Sub(e.lastUsed) > r.idleTTL {
				drop(b, e)
			}
		}
	}

	for r.maxObservers > 0 && len(r.entries) > r.maxObservers {
		var (
			oldest   favorites.Backend
			oldestAt time.Time
			found    bool
		)
		for b, e := range r.entries {
			if b == keep {
				continue
			}
			if !found || e.lastUsed.Before(oldestAt) {
				oldest, oldestAt, found = b, e.lastUsed, true
			}
		}
		if !found {
			break
		}
		drop(oldest, r.entries[oldest])
	}
	return evicted
}

// Close unmounts every observer.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[favorites.Backend]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		unmount(e)
	}
}

// unmount waits for an in-progress mount so its subscription is not left
// behind.
func unmount(e *entry) {
	<-e.mounted
	e.observer.Unmount()
}
