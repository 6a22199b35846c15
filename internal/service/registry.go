package service

import (
	"slices"
	"sync"

	"github.com/Strob0t/MedForge/internal/domain/consultation"
)

// TaskRegistry holds the in-flight consultations keyed by consultation ID.
// All reads return copies; mutation goes through Update.
//
// A settled consultation keeps its result here until the caller that settled
// it calls Forget, so concurrent status queries never see a gap between the
// task leaving the active set and its result reaching the results cache.
type TaskRegistry struct {
	mu      sync.RWMutex
	tasks   map[string]*consultation.Task
	settled map[string]*consultation.Result
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks:   make(map[string]*consultation.Task),
		settled: make(map[string]*consultation.Result),
	}
}

// Add registers t. An existing entry with the same ID is replaced.
func (r *TaskRegistry) Add(t *consultation.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t.Clone()
}

// Get returns a copy of the task.
func (r *TaskRegistry) Get(id string) (*consultation.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update applies fn to the stored task under the write lock and returns a copy
// of the result and whether fn reported a change.
func (r *TaskRegistry) Update(id string, fn func(*consultation.Task) bool) (*consultation.Task, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false, false
	}
	changed := fn(t)
	return t.Clone(), changed, true
}

// Settle removes the task from the active set and parks its result. Only the
// first caller for an ID gets true, which makes Settle the claim for terminal
// processing. The parked result must not be modified.
func (r *TaskRegistry) Settle(id string, res *consultation.Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	delete(r.tasks, id)
	r.settled[id] = res
	return true
}

// Settled returns the parked result of a consultation that just finished.
func (r *TaskRegistry) Settled(id string) (*consultation.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.settled[id]
	return res, ok
}

// Forget drops a parked result.
func (r *TaskRegistry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settled, id)
}

// List returns copies of all tasks, oldest first.
func (r *TaskRegistry) List() []*consultation.Task {
	r.mu.RLock()
	out := make([]*consultation.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *consultation.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})
	return out
}

// Len returns the number of in-flight consultations.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
