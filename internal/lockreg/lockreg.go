// Package lockreg implements the per-vector lock registry: a mapping from
// vector name to a refcounted, tombstone-able lock entry. The registry
// mutex protects only name lookups and refcount/tombstone bookkeeping; the
// entry's own mutex is held for the duration of a persistence operation and
// never while the registry mutex is held.
package lockreg

import (
	"errors"
	"sync"
)

// ErrTombstoned is returned by Acquire for a name that is missing or has
// been marked for removal.
var ErrTombstoned = errors.New("lockreg: vector not found or removed")

// entry is one vector's coordination object: mu.Lock/Unlock serializes
// persistence operations on that vector; waiters counts Acquire calls that
// have not yet Release'd; tomb marks the entry logically removed.
type entry struct {
	name    string
	mu      sync.Mutex
	waiters int
	tomb    bool
}

// Handle is an opaque reference to an acquired entry, returned by Acquire
// and EnsureEntry and consumed by Release and MarkForRemoval.
type Handle struct {
	e *entry
}

// Name returns the vector name this handle was acquired for.
func (h Handle) Name() string { return h.e.name }

// Registry is the process-wide vector-name -> lock-entry map.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Len reports the number of live (non-tombstoned) entries, for metrics and
// for tests asserting quiescence.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.tomb {
			n++
		}
	}
	return n
}

// EnsureEntry creates a new entry for name if none exists and the name is
// not tombstoned, and returns an acquired handle to it (used only by
// Create, which always wants a fresh, held entry for a brand-new vector).
// It does not itself lock the entry's own mutex; callers acquire that
// separately via Handle.Lock, following the two-stage acquire-then-lock
// protocol.
func (r *Registry) EnsureEntry(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if ok && e.tomb {
		return Handle{}, ErrTombstoned
	}
	if !ok {
		e = &entry{name: name}
		r.entries[name] = e
	}
	e.waiters++
	return Handle{e: e}, nil
}

// Acquire finds the entry for name. It fails with ErrTombstoned if the name
// is unknown or has been marked for removal; otherwise it increments the
// entry's waiter count and returns a handle. The caller must still take the
// entry's own mutex (Handle.Lock) before touching the vector's file, and
// must call Release exactly once on every exit path.
func (r *Registry) Acquire(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.tomb {
		return Handle{}, ErrTombstoned
	}
	e.waiters++
	return Handle{e: e}, nil
}

// Lock takes the handle's per-vector mutex. Call after Acquire/EnsureEntry
// and before touching the vector's on-disk file; this wait happens outside
// the registry mutex so unrelated vectors never block on it.
func (h Handle) Lock() { h.e.mu.Lock() }

// Unlock releases the handle's per-vector mutex, without affecting the
// registry's waiter count or tombstone. Release still must be called
// afterward.
func (h Handle) Unlock() { h.e.mu.Unlock() }

// Release decrements the entry's waiter count and, if the entry is
// tombstoned and no waiters remain, removes it from the registry. Release
// must be called exactly once for every successful Acquire/EnsureEntry, on
// every exit path including failures.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := h.e
	e.waiters--
	if e.tomb && e.waiters == 0 {
		delete(r.entries, e.name)
	}
}

// MarkForRemoval sets the entry's tombstone so that new Acquire calls fail
// immediately. It does not remove the entry from the registry; removal is
// deferred to the last matching Release. The tombstone is set here, before
// the caller unlocks the entry's own mutex and calls Release, so any
// concurrent Acquire that reaches the registry mutex after this call is
// guaranteed to observe it.
func (r *Registry) MarkForRemoval(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.e.tomb = true
}

// RegisterExisting registers an entry for name at startup, for a vector
// file discovered on disk, without acquiring it. Used only by the store
// scan during server initialization.
func (r *Registry) RegisterExisting(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		r.entries[name] = &entry{name: name}
	}
}
