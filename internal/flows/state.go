package flows

import (
	"errors"
	"fmt"
)

// State is the position of one login attempt.
type State uint8

const (
	StateAnonymous State = iota
	StatePasswordPending
	StateCodePending
	StateAuthenticated
)

// ErrInvalidTransition reports an out-of-order state change. It indicates a
// programming error, never bad input.
var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	StateAnonymous:       {StatePasswordPending, StateCodePending},
	StatePasswordPending: {StateCodePending},
	StateCodePending:     {StateCodePending, StateAuthenticated},
	StateAuthenticated:   nil,
}

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "ANONYMOUS"
	case StatePasswordPending:
		return "PASSWORD_PENDING"
	case StateCodePending:
		return "CODE_PENDING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns to when the transition is allowed.
func (s State) Next(to State) (State, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}
