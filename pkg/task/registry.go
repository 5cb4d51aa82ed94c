package task

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned for a task id or name that is not registered.
var ErrNotFound = errors.New("task not found")

// Registry is an ordered set of tasks keyed by id.
//
// Every process started from one binary must build the same registry
// before it does anything else; workers find their task by id in it.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Task)}
}

// Register adds tasks. Duplicate ids and duplicate names are rejected.
func (r *Registry) Register(tasks ...*Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tasks {
		if t == nil {
			return fmt.Errorf("register: nil task")
		}
		if _, exists := r.byID[t.ID]; exists {
			return fmt.Errorf("register %s: duplicate task id %s", t.Name, t.ID)
		}
		for _, id := range r.order {
			if r.byID[id].Name == t.Name {
				return fmt.Errorf("register %s: duplicate task name", t.Name)
			}
		}
		r.byID[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return nil
}

// MustRegister is Register that panics on error. Meant for main.
func (r *Registry) MustRegister(tasks ...*Task) {
	if err := r.Register(tasks...); err != nil {
		panic(err)
	}
}

// Lookup returns the task with the given id.
func (r *Registry) Lookup(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// LookupName returns the task with the given name.
func (r *Registry) LookupName(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if t := r.byID[id]; t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Resolve finds a task by id, falling back to name.
func (r *Registry) Resolve(id, name string) (*Task, error) {
	if id != "" {
		if t, ok := r.Lookup(id); ok {
			return t, nil
		}
	}
	if name != "" {
		if t, ok := r.LookupName(name); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: id=%q name=%q", ErrNotFound, id, name)
}

// All returns the tasks in registration order.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Valid returns the runnable tasks in registration order.
func (r *Registry) Valid() []*Task {
	var out []*Task
	for _, t := range r.All() {
		if t.Valid() == nil {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
