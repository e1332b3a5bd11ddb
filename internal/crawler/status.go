package crawler

import "sync"

// RunState is the lifecycle state of the most recent ingestion run.
type RunState string

// Run states reported by the status endpoint.
const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)

// RunStatus is a point-in-time snapshot of the tracker.
type RunStatus struct {
	State     RunState   `json:"state"`
	Summary   RunSummary `json:"summary"`
	ErrorText string     `json:"error_text,omitempty"`
}

// StatusTracker records pipeline progress for the ops endpoint.
type StatusTracker struct {
	mu     sync.RWMutex
	status RunStatus
}

// NewStatusTracker returns an idle tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: RunStatus{State: RunStateIdle}}
}

// Start marks a new run as running.
func (t *StatusTracker) Start(summary RunSummary) {
	t.set(RunStatus{State: RunStateRunning, Summary: summary})
}

// Progress replaces the running summary.
func (t *StatusTracker) Progress(summary RunSummary) {
	t.set(RunStatus{State: RunStateRunning, Summary: summary})
}

// Finish records the terminal state of the run.
func (t *StatusTracker) Finish(summary RunSummary, err error) {
	st := RunStatus{State: RunStateSucceeded, Summary: summary}
	if err != nil {
		st.State = RunStateFailed
		st.ErrorText = err.Error()
	}
	t.set(st)
}

// Snapshot returns the current status.
func (t *StatusTracker) Snapshot() RunStatus {
	if t == nil {
		return RunStatus{State: RunStateIdle}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *StatusTracker) set(st RunStatus) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.status = st
	t.mu.Unlock()
}
