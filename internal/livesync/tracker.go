package livesync

import "sync"

// Status is the sync state of a live form session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// Tracker numbers sync calls and only lets the most recently issued call
// move the session status. Responses of superseded calls are discarded.
type Tracker struct {
	mu          sync.Mutex
	status      Status
	latest      uint64
	editedSince bool
	lastErr     error
}

func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Begin registers a new sync call and returns its sequence number.
func (t *Tracker) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest++
	t.status = StatusSyncing
	t.editedSince = false
	t.lastErr = nil
	return t.latest
}

// Complete applies the outcome of call seq. It reports false, leaving the
// status untouched, when a newer call has been issued since.
func (t *Tracker) Complete(seq uint64, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.latest {
		return false
	}
	switch {
	case err != nil:
		t.status = StatusError
		t.lastErr = err
	case t.editedSince:
		t.status = StatusIdle
	default:
		t.status = StatusSynced
	}
	return true
}

// Invalidate records a local edit. A synced or failed result no longer
// describes the local answers, and an in-flight call will not report synced.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusSynced, StatusError:
		t.status = StatusIdle
		t.lastErr = nil
	case StatusSyncing:
		t.editedSince = true
	}
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastError is the error of the latest call when Status is StatusError.
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Latest is the sequence number of the most recently issued call.
func (t *Tracker) Latest() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}
