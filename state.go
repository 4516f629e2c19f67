package wspub

import "fmt"

// State is the connection state reported to OnStateChange.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateReconnecting
	StateClosed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateError:        "error",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

// States lists every state in declaration order.
func States() []State {
	return []State{StateIdle, StateConnecting, StateConnected, StateError, StateReconnecting, StateClosed}
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("wspub: unknown state %q", text)
}

// canTransitionTo reports whether moving from s to next is part of the
// lifecycle. Connect and Disconnect are accepted from anywhere.
func (s State) canTransitionTo(next State) bool {
	switch next {
	case StateConnecting, StateClosed:
		return true
	case StateConnected:
		return s == StateConnecting
	case StateError:
		return s == StateConnecting || s == StateConnected || s == StateError
	case StateReconnecting:
		return s == StateConnecting || s == StateConnected || s == StateError
	default:
		return false
	}
}
