// Package tasks runs long-lived work (install, launch, configure) as
// tracked, cancellable, logged tasks with start/end lifecycle events.
package tasks

import (
	"sync"
	"sync/atomic"

	"go-hangar/internal/taskctx"
)

// Handle correlates a running unit of work with its cancel context. It
// lives only while the work runs; the registry drops it the instant the
// work settles.
type Handle struct {
	id   string
	name string
	// tag links the task to the download item (or other entity) it runs
	// for; empty for untagged tasks.
	tag  string
	task *taskctx.Context

	discarded atomic.Bool
}

// ID returns the generated task id.
func (h *Handle) ID() string { return h.id }

// Name returns the task's name ("install", "launch", ...).
func (h *Handle) Name() string { return h.name }

// Tag returns the correlated entity id, if any.
func (h *Handle) Tag() string { return h.tag }

// CancelGracefully signals a cooperative stop.
func (h *Handle) CancelGracefully() { h.task.CancelGracefully() }

// Abort signals a forced stop.
func (h *Handle) Abort() { h.task.Abort() }

// MarkDiscarded records that the owning item is being discarded, so the
// task's own unwinding path performs the teardown.
func (h *Handle) MarkDiscarded() { h.discarded.Store(true) }

// Discarded reports whether a discard is pending on this task.
func (h *Handle) Discarded() bool { return h.discarded.Load() }

// Registry tracks live task handles. It replaces a process-wide "current
// task" variable with an explicit object: one component owns it and is
// the only writer, everyone else just looks up handles.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

func (r *Registry) put(h *Handle) {
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// Get returns the handle for a task id, or nil.
func (r *Registry) Get(id string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[id]
}

// ByTag returns the live handle tagged with the given entity id, or nil.
func (r *Registry) ByTag(tag string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.tag == tag {
			return h
		}
	}
	return nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
