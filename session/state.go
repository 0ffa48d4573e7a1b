package session

// State is a session's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateHandshaking
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether audio may still be pushed.
func (s State) Active() bool {
	switch s {
	case StateAuthenticating, StateHandshaking, StateStreaming:
		return true
	}
	return false
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
