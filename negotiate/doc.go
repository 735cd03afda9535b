// Package negotiate exchanges a device identity for session credentials at
// the environment's sync service: broker address, client id, topic set,
// authentication material and protocol version.
//
// Negotiation is the second step of a connection attempt, after discovery.
// It is one HTTP GET to the discovered base URL. The negotiator never
// generates or stores secret material; it passes through whatever the
// backend issued (a token, a certificate reference or a key reference).
//
// The resulting Session is owned exclusively by one session state machine
// for the lifetime of one connection attempt. It is never mutated in
// place, only discarded and replaced by a fresh negotiation.
//
// # Failure categories
//
// ErrTransient (network, 5xx), ErrPermanent (4xx, malformed body, backend
// errors) and ErrDeviceNotRegistered. The last is deliberately distinct
// from ErrPermanent: the device/CPID pair is unknown to the backend, and
// no amount of retrying fixes a missing registration, so callers can show
// an actionable error instead of a generic failure.
package negotiate
