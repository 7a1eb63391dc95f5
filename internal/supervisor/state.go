package supervisor

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of one customer run.
type State string

const (
	StateIdle      State = "idle"
	StateStaged    State = "staged"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrIllegalTransition is returned when a run is driven out of order.
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	StateIdle:    {StateStaged, StateFailed},
	StateStaged:  {StateRunning, StateFailed},
	StateRunning: {StateSucceeded, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
