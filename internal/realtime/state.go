package realtime

import (
	"errors"
	"fmt"
)

// State is a connection's lifecycle stage: Connecting -> Authenticated -> Active -> Closed.
// Any non-closed state may move straight to Closed.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

// ErrInvalidTransition is returned for a lifecycle step the state machine does not allow.
var ErrInvalidTransition = errors.New("realtime: invalid state transition")

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) canTransition(to State) bool {
	switch s {
	case StateConnecting:
		return to == StateAuthenticated || to == StateClosed
	case StateAuthenticated:
		return to == StateActive || to == StateClosed
	case StateActive:
		return to == StateClosed
	default:
		return false
	}
}
