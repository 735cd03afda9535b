// Package session implements the connection state machine tying discovery,
// sync negotiation, the wire codec and the MQTT transport together into
// one device session.
//
// # States
//
//	Idle -> Discovering -> Negotiating -> Connected -> Disconnected
//
// Disconnected is reachable from any non-terminal state on failure.
// Reconnecting re-runs the full discovery/negotiation chain; the machine
// never trusts a stale broker address past a transport-reported
// disconnect. (Reusing the last discovery result is available as an
// explicit option for deployments that prefer less discovery load over
// tolerance of backend topology changes.)
//
// # Retry policy
//
// There is none, on purpose. Transient failures during discovery or
// negotiation surface to the caller with their category intact; backoff
// belongs to the caller or the transport. Two failures are terminal and
// must not be retried automatically: an unregistered device and an
// unsupported protocol version. A malformed inbound message is reported
// per-message and never tears down the session.
//
// # Concurrency
//
// One mutex guards the state and session credentials, so a transition is
// never observed half-applied by a concurrent publish, and telemetry
// submitted in sequence is encoded and handed to the transport in that
// same sequence. Inbound messages are dispatched in delivery order;
// handlers run outside the lock and may publish acks.
package session
