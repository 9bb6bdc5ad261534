package project

import (
	"fmt"
	"sort"
	"sync"

	"furlat/internal/job"
)

// Constructor builds the task body of a category for the given params.
type Constructor func(p job.Params) (job.Task, error)

// Registry maps categories to their constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[job.Category]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[job.Category]Constructor)}
}

func (r *Registry) Register(c job.Category, ctor Constructor) error {
	if c == "" {
		return fmt.Errorf("register: empty category")
	}
	if ctor == nil {
		return fmt.Errorf("register %s: nil constructor", c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ctors[c]; dup {
		return fmt.Errorf("register %s: already registered", c)
	}
	r.ctors[c] = ctor
	return nil
}

func (r *Registry) Lookup(c job.Category) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[c]
	return ctor, ok
}

// Categories returns the registered categories sorted by name.
func (r *Registry) Categories() []job.Category {
	r.mu.RLock()
	out := make([]job.Category, 0, len(r.ctors))
	for c := range r.ctors {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build runs the constructor registered for c.
func (r *Registry) Build(c job.Category, p job.Params) (job.Task, error) {
	ctor, ok := r.Lookup(c)
	if !ok {
		return nil, fmt.Errorf("unknown category %q", c)
	}
	t, err := ctor(p)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("category %s: constructor returned no task", c)
	}
	return t, nil
}
