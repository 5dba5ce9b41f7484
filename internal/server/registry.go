package server

import (
	"fmt"
	"sync"
	"time"
)

// RunState tracks a single running or completed run.
type RunState struct {
	RunID     string
	Cancel    func(error)
	StartedAt time.Time

	mu   sync.Mutex
	err  error
	done bool
}

// SetResult records the terminal outcome of the run.
func (rs *RunState) SetResult(err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.err = err
	rs.done = true
}

// Snapshot returns the registry's view of the run for status responses.
func (rs *RunState) Snapshot() (done bool, errMsg string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err != nil {
		errMsg = rs.err.Error()
	}
	return rs.done, errMsg
}

// RunRegistry tracks all runs launched by this server instance.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*RunState
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*RunState)}
}

// Register adds a run. Returns an error if the ID already exists.
func (r *RunRegistry) Register(runID string, rs *RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[runID]; exists {
		return fmt.Errorf("run %s already exists", runID)
	}
	r.runs[runID] = rs
	return nil
}

// Get returns a run by ID.
func (r *RunRegistry) Get(runID string) (*RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.runs[runID]
	return rs, ok
}

// Remove drops a run so a long-lived server does not accumulate completed
// entries. The on-disk status remains the record of the run.
func (r *RunRegistry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Count returns the number of registered runs.
func (r *RunRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// CancelAll cancels every registered run with the given reason.
func (r *RunRegistry) CancelAll(reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rs := range r.runs {
		if rs.Cancel != nil {
			rs.Cancel(fmt.Errorf("%s", reason))
		}
	}
}
