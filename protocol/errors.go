package protocol

import "errors"

// Domain errors for the protocol codec.
//
// These errors can be checked using errors.Is() in calling code:
//
//	if errors.Is(err, protocol.ErrMalformedMessage) {
//	    // report and drop the message, keep the session up
//	}
var (
	// ErrUnsupportedVersion is returned when a codec is requested for a
	// protocol version this build does not implement. Terminal: retrying
	// with the same version can never succeed.
	ErrUnsupportedVersion = errors.New("protocol: unsupported protocol version")

	// ErrEncoding is returned when outbound data cannot be represented in
	// the wire schema (non-JSON value types, cyclic structures, invalid
	// ack fields). Indicates a programming defect in the caller.
	ErrEncoding = errors.New("protocol: encoding failed")

	// ErrMalformedMessage is returned when an inbound payload is not valid
	// JSON or is missing a required field. Per-message: the caller should
	// report it and continue, never tear down the session.
	ErrMalformedMessage = errors.New("protocol: malformed message")
)
