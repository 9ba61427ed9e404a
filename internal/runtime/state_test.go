package runtime

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestStateManagerStartsInStarting(t *testing.T) {
	m := NewStateManager()
	if m.Current() != StateStarting {
		t.Fatalf("expected STARTING, got %s", m.Current())
	}
	if m.CanAcceptRequests() {
		t.Error("STARTING must not accept requests")
	}
	if m.IsReady() {
		t.Error("STARTING must not report ready")
	}
	if !m.IsAlive() {
		t.Error("STARTING must report alive")
	}
}

func TestStateManagerTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		path []RuntimeState
		want []bool
	}{
		{
			name: "happy path to stop",
			path: []RuntimeState{StateReady, StateDraining, StateStopping},
			want: []bool{true, true, true},
		},
		{
			name: "degrade and recover",
			path: []RuntimeState{StateReady, StateDegraded, StateReady},
			want: []bool{true, true, true},
		},
		{
			name: "no self transition",
			path: []RuntimeState{StateReady, StateReady},
			want: []bool{true, false},
		},
		{
			name: "cannot skip to draining from starting",
			path: []RuntimeState{StateDraining},
			want: []bool{false},
		},
		{
			name: "stopping is terminal",
			path: []RuntimeState{StateStopping, StateReady, StateDraining},
			want: []bool{true, false, false},
		},
		{
			name: "no backwards from draining",
			path: []RuntimeState{StateReady, StateDraining, StateReady},
			want: []bool{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStateManager()
			for i, to := range tt.path {
				got := m.Transition(to)
				if got != tt.want[i] {
					t.Fatalf("step %d: Transition(%s) = %v, want %v", i, to, got, tt.want[i])
				}
			}
		})
	}
}

func TestStateManagerRejectedTransitionLeavesStateUnchanged(t *testing.T) {
	m := NewStateManager()
	m.Transition(StateReady)

	if m.Transition(StateStarting) {
		t.Fatal("transition back to STARTING must be rejected")
	}
	if m.Current() != StateReady {
		t.Fatalf("state changed after rejected transition: %s", m.Current())
	}
	if len(m.History()) != 1 {
		t.Fatalf("rejected transition must not be recorded, history: %v", m.History())
	}
}

func TestStateManagerPredicates(t *testing.T) {
	m := NewStateManager()
	m.Transition(StateReady)
	if !m.CanAcceptRequests() || !m.IsReady() || !m.IsAlive() {
		t.Fatal("READY must accept, be ready, and be alive")
	}

	m.Transition(StateDegraded)
	if !m.CanAcceptRequests() {
		t.Error("DEGRADED must accept requests")
	}
	if m.IsReady() {
		t.Error("DEGRADED must not report ready")
	}

	m.Transition(StateDraining)
	if m.CanAcceptRequests() {
		t.Error("DRAINING must not accept requests")
	}
	if !m.IsAlive() {
		t.Error("DRAINING must report alive")
	}

	m.Transition(StateStopping)
	if m.IsAlive() {
		t.Error("STOPPING must not report alive")
	}
}

func TestStateManagerHistoryBounded(t *testing.T) {
	m := NewStateManager()
	m.Transition(StateReady)

	// Flip between READY and DEGRADED far past the ring capacity.
	for i := 0; i < 150; i++ {
		if i%2 == 0 {
			m.Transition(StateDegraded)
		} else {
			m.Transition(StateReady)
		}
	}

	hist := m.History()
	if len(hist) != stateHistoryCapacity {
		t.Fatalf("expected history capped at %d, got %d", stateHistoryCapacity, len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].At.Before(hist[i-1].At) {
			t.Fatalf("history out of order at %d", i)
		}
		if hist[i].From != hist[i-1].To {
			t.Fatalf("history not contiguous at %d: %s -> %s", i, hist[i-1].To, hist[i].From)
		}
	}
}

func TestStateManagerOnTransitionCallback(t *testing.T) {
	m := NewStateManager()
	var seen []StateTransition
	m.OnTransition(func(tr StateTransition) { seen = append(seen, tr) })

	m.Transition(StateReady)
	m.Transition(StateReady) // rejected, must not fire
	m.Transition(StateDraining)

	if len(seen) != 2 {
		t.Fatalf("expected 2 callbacks, got %d", len(seen))
	}
	if seen[0].To != StateReady || seen[1].To != StateDraining {
		t.Fatalf("unexpected callback sequence: %v", seen)
	}
}

// Property: whatever sequence of transition requests is applied, the resulting
// state is always one reachable from STARTING through the transition table,
// and rejected requests never move the state.
func TestStateManagerTransitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	allStates := []RuntimeState{StateStarting, StateReady, StateDegraded, StateDraining, StateStopping}

	properties.Property("state always reachable and rejections are no-ops", prop.ForAll(
		func(requests []int) bool {
			m := NewStateManager()
			for _, r := range requests {
				to := allStates[r%len(allStates)]
				before := m.Current()
				accepted := m.Transition(to)
				after := m.Current()
				if accepted {
					ok := false
					for _, next := range validTransitions[before] {
						if next == to {
							ok = true
						}
					}
					if !ok || after != to {
						return false
					}
				} else if after != before {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allStates)*3)),
	))

	properties.TestingRun(t)
}
