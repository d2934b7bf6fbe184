package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a conversion session.
type State string

const (
	StateIdle          State = "idle"
	StateFilesSelected State = "filesSelected"
	StateProcessing    State = "processing"
	StateSuccess       State = "success"
	StateError         State = "error"
)

// Event drives a session from one State to the next.
type Event string

const (
	EventSelect  Event = "select"
	EventStart   Event = "start"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSelect: StateFilesSelected,
	},
	StateFilesSelected: {
		EventStart: StateProcessing,
		EventReset: StateIdle,
	},
	StateProcessing: {
		EventSucceed: StateSuccess,
		EventFail:    StateError,
	},
	StateSuccess: {
		EventReset: StateIdle,
	},
	StateError: {
		EventReset: StateIdle,
	},
}

// Transition returns the state reached by applying ev to s.
func Transition(s State, ev Event) (State, error) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
	}
	return next, nil
}

// Terminal reports whether s ends a conversion run.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateError
}
