// Package protocol implements the versioned JSON wire codec for the IoTLink
// platform: telemetry encoding, inbound command/OTA decoding and
// acknowledgement encoding.
//
// The codec is the single source of truth for wire shapes. It is pure:
// it never touches the network, never retries, and never owns a session.
// Callers hand it structured data and get wire bytes back (or the reverse).
//
// # Versioning
//
// Wire shapes are versioned by the protocol version negotiated during sync.
// Each supported version is one entry in an internal dispatch table, so each
// version's shape is independently testable and adding a version never
// touches another version's code path. Constructing a codec for an unknown
// version fails with ErrUnsupportedVersion rather than guessing a shape.
//
// Version 1 is the legacy compact envelope (single-letter keys, millisecond
// timestamps). Version 2 is the expanded schema with self-describing key
// names.
//
// # Forward compatibility
//
// Unknown fields on inbound messages are ignored. The platform may add
// fields in newer minor revisions; an older codec must tolerate them.
// Missing or mistyped required fields fail with ErrMalformedMessage.
//
// # Usage
//
//	codec, err := protocol.NewCodec(2)
//	if err != nil {
//	    return err
//	}
//	wire, err := codec.EncodeTelemetry(id, protocol.TelemetryMessage{
//	    Data: []protocol.Field{{Key: "temp", Value: 21.5}},
//	})
package protocol
