package session

// State is the session state machine's current position.
type State int

// Session states. Disconnected is reachable from any non-terminal state.
const (
	StateIdle State = iota
	StateDiscovering
	StateNegotiating
	StateConnected
	StateDisconnected
)

// String implements fmt.Stringer for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
