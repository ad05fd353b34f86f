// Package locks provides the in-process per-file concurrency gate.
//
// The gate is best-effort only: it does not survive a process restart and
// does not coordinate across multiple instances. The remote metadata fields
// remain the cooperative cross-process idempotency signal and are always
// checked after acquiring the local gate.
package locks

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Registry maps gate keys (driveId:itemId) to single-slot semaphores.
// Entries are never removed; the key space is bounded by the distinct files
// touched during the process lifetime.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*semaphore.Weighted)}
}

// TryAcquire attempts to take the gate for key without blocking. On success
// it returns a Handle whose Release must be called exactly once (extra calls
// are no-ops).
func (r *Registry) TryAcquire(key string) (*Handle, bool) {
	r.mu.Lock()
	sem, ok := r.gates[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.gates[key] = sem
	}
	r.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return &Handle{sem: sem}, true
}

// Handle is a guaranteed-release token for an acquired gate.
type Handle struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release frees the gate. Safe to call multiple times.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.sem.Release(1)
	})
}
