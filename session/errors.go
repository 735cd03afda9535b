package session

import "errors"

// Domain errors for the session state machine.
//
// Failure categories from discovery and negotiation pass through
// unwrapped, so errors.Is works against discovery.ErrTransient,
// negotiate.ErrDeviceNotRegistered, protocol.ErrUnsupportedVersion and
// friends on anything Connect returns.
var (
	// ErrNotConnected is returned when publishing while the machine is
	// not in the Connected state.
	ErrNotConnected = errors.New("session: not connected")

	// ErrAlreadyConnected is returned by Connect when a session is
	// already established.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrConnectInProgress is returned by Connect while another connect
	// attempt is still in Discovering or Negotiating.
	ErrConnectInProgress = errors.New("session: connect already in progress")

	// ErrSessionExpired means the negotiated credentials passed their
	// expiry. The machine is Disconnected; reconnect explicitly or enable
	// AutoReconnect.
	ErrSessionExpired = errors.New("session: session expired")

	// ErrConnectionLost wraps a transport-reported connection loss,
	// retained as the machine's last error.
	ErrConnectionLost = errors.New("session: connection lost")
)
