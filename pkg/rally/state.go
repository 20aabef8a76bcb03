package rally

import "sync"

// RunState is the study's collection state.
type RunState int

const (
	Running RunState = iota
	Paused
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateEvent is an input to the run-state machine.
type StateEvent int

const (
	EventPause StateEvent = iota
	EventResume
)

// StateChangeFunc is notified with the new state after every actual change.
type StateChangeFunc func(RunState)

// Transition returns the state reached from current on ev and whether that
// is a change observers must hear about.
func Transition(current RunState, ev StateEvent) (RunState, bool) {
	next := current
	switch ev {
	case EventPause:
		next = Paused
	case EventResume:
		next = Running
	}
	return next, next != current
}

// StateMachine holds a RunState and notifies its observer on change.
// The observer runs with the machine locked and must not call back into it.
type StateMachine struct {
	mu       sync.Mutex
	state    RunState
	onChange StateChangeFunc
}

// NewStateMachine returns a machine in the initial state.
func NewStateMachine(initial RunState, onChange StateChangeFunc) *StateMachine {
	return &StateMachine{state: initial, onChange: onChange}
}

// State returns the current state.
func (m *StateMachine) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pause moves to Paused. It reports whether the state changed.
func (m *StateMachine) Pause() bool { return m.apply(EventPause) }

// Resume moves to Running. It reports whether the state changed.
func (m *StateMachine) Resume() bool { return m.apply(EventResume) }

func (m *StateMachine) apply(ev StateEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, changed := Transition(m.state, ev)
	if !changed {
		return false
	}
	m.state = next
	if m.onChange != nil {
		m.onChange(next)
	}
	return true
}
