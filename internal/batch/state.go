package batch

import "sync"

// State is the batch lifecycle flag kept per requester.
type State int

const (
	Idle State = iota
	Running
	CancelRequested
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case CancelRequested:
		return "cancel_requested"
	default:
		return "idle"
	}
}

// StateTable is a keyed state table with compare-and-swap semantics on start,
// so a cancel request can never race a concurrent start. Safe for use from
// multiple requester flows.
type StateTable struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewStateTable() *StateTable {
	return &StateTable{states: make(map[int64]State)}
}

// Begin transitions Idle -> Running. It returns false, changing nothing,
// when a batch is already Running or CancelRequested for the requester.
func (t *StateTable) Begin(requesterID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[requesterID] != Idle {
		return false
	}

	t.states[requesterID] = Running

	return true
}

// RequestCancel transitions Running -> CancelRequested. Returns false when no
// batch is running.
func (t *StateTable) RequestCancel(requesterID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[requesterID] != Running {
		return false
	}

	t.states[requesterID] = CancelRequested

	return true
}

// Cancelled reports whether cancellation has been requested. The run loop
// checks this at item boundaries only.
func (t *StateTable) Cancelled(requesterID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.states[requesterID] == CancelRequested
}

// Finish returns the requester to Idle, whatever the current state.
func (t *StateTable) Finish(requesterID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, requesterID)
}

// Get returns the current state for a requester.
func (t *StateTable) Get(requesterID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.states[requesterID]
}
