// Package guard provides keyed single-flight admission for decision
// checks. A second check for the same key while one is in flight is
// dropped, not queued: once the first check completes, re-running the
// duplicate would be redundant.
package guard

import (
	"strings"
	"sync"
	"time"
)

// Registry tracks which keys currently have a live evaluation. The
// zero value is not usable; construct with NewRegistry. Owned instance
// state, never a package-level singleton.
type Registry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{held: make(map[string]struct{})}
}

// Key builds a guard key from an operation kind and its scope parts
// (normalized market key, optionally the account).
func Key(operation string, parts ...string) string {
	return operation + ":" + strings.Join(parts, ":")
}

// TryAcquire claims the key. It returns false if an evaluation for the
// key is already in flight.
func (r *Registry) TryAcquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.held[key]; busy {
		return false
	}
	r.held[key] = struct{}{}
	return true
}

// Release frees the key immediately. Used on error paths and for
// checks that did not submit anything.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, key)
}

// ReleaseAfter frees the key once the cool-down elapses. Used after a
// settling transaction so a re-check does not race the not-yet-visible
// chain change. A non-positive delay releases immediately.
func (r *Registry) ReleaseAfter(key string, delay time.Duration) {
	if delay <= 0 {
		r.Release(key)
		return
	}
	time.AfterFunc(delay, func() { r.Release(key) })
}

// Held reports whether the key currently has a live evaluation.
func (r *Registry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.held[key]
	return busy
}
