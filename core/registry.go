package core

import (
	"fmt"
	"sync"
)

// Registry is the authoritative set of tasks known to a scheduler. A task is
// present from acceptance until its final removal.
type Registry struct {
	mu    sync.RWMutex
	tasks map[TaskID]Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[TaskID]Task)}
}

// Add registers t. It fails with ErrDuplicateTask if the id is taken, leaving
// the registered task untouched.
func (r *Registry) Add(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.tasks[t.ID()]; dup {
		return fmt.Errorf("task %s: %w", t.ID(), ErrDuplicateTask)
	}
	r.tasks[t.ID()] = t
	return nil
}

// Get returns the task registered under id.
func (r *Registry) Get(id TaskID) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Remove drops id. It reports whether the id was present.
func (r *Registry) Remove(id TaskID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	return true
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Clear drops every task and returns how many were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.tasks)
	r.tasks = make(map[TaskID]Task)
	return n
}

// Snapshot returns the registered tasks in no particular order.
func (r *Registry) Snapshot() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}
