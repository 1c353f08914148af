package peer

import "fmt"

// State is the lifecycle state of a peer.
type State uint32

const (
	// StateUnjoined is the initial state. The peer has no identifier and
	// refuses to route or store data.
	StateUnjoined State = iota

	// StateJoining is used while the peer registers with the coordinator. The
	// peer accepts migrated entries and topology updates in this state.
	StateJoining

	// StateActive marks a peer that completed its join. Active peers accept
	// every operation, any number of times.
	StateActive
)

// String returns the string representation of s.
func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("<unknown state %d>", s)
	}
}

// ValidTransition reports whether a peer may move from one state to another.
// Acceptable transitions are:
//
//   StateUnjoined -> StateJoining
//   StateJoining  -> StateActive|StateUnjoined
func ValidTransition(from, to State) bool {
	_, ok := validStateTransitions[stateTransition{From: from, To: to}]
	return ok
}

type stateTransition struct{ From, To State }

var validStateTransitions = map[stateTransition]struct{}{
	{StateUnjoined, StateJoining}: {},
	{StateJoining, StateActive}:   {},
	{StateJoining, StateUnjoined}: {}, // failed join
}

// ErrStateTransition is returned when a peer requests an invalid state
// transition.
type ErrStateTransition struct {
	From, To State
}

// Error implements error.
func (e ErrStateTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
