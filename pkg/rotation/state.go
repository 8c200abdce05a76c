package rotation

import (
	"errors"
	"fmt"
	"time"
)

// State is a point in the run lifecycle.
type State int

const (
	StateInit State = iota
	StateConnected
	StateBackedUp
	StateSelected
	StateDiscovered
	StateUploaded
	StateVerified
	StateUpdated
	StateDone
	StateFailed
	StateAborted
	StateCancelled
)

var stateNames = map[State]string{
	StateInit:       "init",
	StateConnected:  "connected",
	StateBackedUp:   "backed-up",
	StateSelected:   "selected",
	StateDiscovered: "discovered",
	StateUploaded:   "uploaded",
	StateVerified:   "verified",
	StateUpdated:    "updated",
	StateDone:       "done",
	StateFailed:     "failed",
	StateAborted:    "aborted",
	StateCancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateAborted, StateCancelled:
		return true
	}
	return false
}

// transitions lists the forward edge of each state. Failed and Cancelled
// are reachable from every non-terminal state and are not listed.
var transitions = map[State][]State{
	StateInit:       {StateConnected},
	StateConnected:  {StateBackedUp},
	StateBackedUp:   {StateSelected, StateAborted},
	StateSelected:   {StateDiscovered},
	StateDiscovered: {StateUploaded, StateDone},
	StateUploaded:   {StateVerified},
	StateVerified:   {StateUpdated},
	StateUpdated:    {StateDone},
}

// ErrInvalidTransition is returned when a transition is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Machine tracks the state of one run and rejects out-of-order phases.
// It is not safe for concurrent use; a run is strictly sequential.
type Machine struct {
	state    State
	history  []Transition
	now      func() time.Time
	onChange func(Transition)
}

// NewMachine returns a machine in StateInit. now may be nil.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{state: StateInit, now: now}
}

// OnChange registers fn to be called after each successful transition.
func (m *Machine) OnChange(fn func(Transition)) {
	m.onChange = fn
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Can reports whether the machine may move to next.
func (m *Machine) Can(next State) bool {
	if m.state.Terminal() {
		return false
	}
	if next == StateFailed || next == StateCancelled {
		return true
	}
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			return true
		}
	}
	return false
}

// To moves the machine to next or returns ErrInvalidTransition.
func (m *Machine) To(next State) error {
	if !m.Can(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, m.state, next)
	}
	t := Transition{From: m.state, To: next, At: m.now()}
	m.state = next
	m.history = append(m.history, t)
	if m.onChange != nil {
		m.onChange(t)
	}
	return nil
}

// Transitions returns a copy of the recorded transitions.
func (m *Machine) Transitions() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
