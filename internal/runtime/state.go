package runtime

import (
	"sync"
	"time"
)

const stateHistoryCapacity = 100

// validTransitions is the directed lifecycle graph. Self-transitions are
// intentionally absent; STOPPING is terminal.
var validTransitions = map[RuntimeState][]RuntimeState{
	StateStarting: {StateReady, StateStopping},
	StateReady:    {StateDegraded, StateDraining, StateStopping},
	StateDegraded: {StateReady, StateDraining, StateStopping},
	StateDraining: {StateStopping},
	StateStopping: {},
}

// StateManager owns the runtime's lifecycle state. The table check and the
// write are performed under one mutex so the two writers (orchestrator and
// shutdown coordinator) cannot interleave a stale check-then-set.
type StateManager struct {
	mu      sync.Mutex
	current RuntimeState

	history     []StateTransition
	historyNext int

	onTransition func(StateTransition)
}

// NewStateManager starts in STARTING.
func NewStateManager() *StateManager {
	return &StateManager{
		current: StateStarting,
		history: make([]StateTransition, 0, stateHistoryCapacity),
	}
}

// OnTransition registers a callback invoked, under the state lock, for every
// accepted transition. Used by the runtime to publish lifecycle events.
// Setup-time only.
func (m *StateManager) OnTransition(fn func(StateTransition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Transition attempts to move to the target state. Disallowed transitions
// (including self-transitions) return false and leave the state unchanged.
func (m *StateManager) Transition(to RuntimeState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := false
	for _, next := range validTransitions[m.current] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	tr := StateTransition{From: m.current, To: to, At: time.Now().UTC()}
	m.current = to
	m.appendHistory(tr)
	if m.onTransition != nil {
		m.onTransition(tr)
	}
	return true
}

// appendHistory keeps the last stateHistoryCapacity transitions, silently
// dropping the oldest.
func (m *StateManager) appendHistory(tr StateTransition) {
	if len(m.history) < stateHistoryCapacity {
		m.history = append(m.history, tr)
		return
	}
	m.history[m.historyNext] = tr
	m.historyNext = (m.historyNext + 1) % stateHistoryCapacity
}

// Current returns the present lifecycle state.
func (m *StateManager) Current() RuntimeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanAcceptRequests is true only in READY or DEGRADED.
func (m *StateManager) CanAcceptRequests() bool {
	s := m.Current()
	return s == StateReady || s == StateDegraded
}

// IsReady is true only in READY.
func (m *StateManager) IsReady() bool {
	return m.Current() == StateReady
}

// IsAlive is false only in STOPPING.
func (m *StateManager) IsAlive() bool {
	return m.Current() != StateStopping
}

// History returns accepted transitions, oldest first.
func (m *StateManager) History() []StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StateTransition, 0, len(m.history))
	if len(m.history) < stateHistoryCapacity {
		out = append(out, m.history...)
		return out
	}
	out = append(out, m.history[m.historyNext:]...)
	out = append(out, m.history[:m.historyNext]...)
	return out
}
