package protocol

import "time"

// Field is one key/value pair in a telemetry record.
//
// Values must be JSON-representable: bool, string, any integer or float
// type, or a nested map[string]any of the same. Anything else (slices,
// functions, channels, nil, cyclic maps) is rejected at encode time with
// ErrEncoding rather than silently coerced.
type Field struct {
	Key   string
	Value any
}

// TelemetryMessage is one device-to-cloud telemetry record.
//
// Data order is preserved on the wire: fields are emitted in the order
// they appear in the slice.
type TelemetryMessage struct {
	// DeviceUniqueID optionally overrides the identity's DUID in the
	// envelope. Gateway devices use this to report for child devices.
	DeviceUniqueID string

	// Timestamp is when the record was captured. Zero means "stamp at
	// encode time". The codec clamps timestamps so consecutive records
	// never go backwards.
	Timestamp time.Time

	// Data is the ordered telemetry payload.
	Data []Field
}

// CommandMessage is a decoded inbound cloud-to-device command.
type CommandMessage struct {
	// ID is the command identifier, echoed back in the acknowledgement.
	ID string

	// Type names the command kind, e.g. "set-config".
	Type string

	// Payload carries command arguments. May be nil.
	Payload map[string]any

	// AckRequired reports whether the platform expects an acknowledgement.
	AckRequired bool
}

// OtaMessage is a decoded inbound over-the-air update directive.
type OtaMessage struct {
	// ID is the OTA directive identifier, echoed back in the acknowledgement.
	ID string

	// Type names the directive kind, normally "ota".
	Type string

	// Payload carries update details such as artifact URLs. May be nil.
	Payload map[string]any

	// AckRequired reports whether the platform expects an acknowledgement.
	AckRequired bool
}

// AckStatus is the processing outcome reported in an acknowledgement.
type AckStatus string

// Acknowledgement outcomes.
const (
	AckSuccess AckStatus = "success"
	AckFailure AckStatus = "failure"
)

// AckMessage acknowledges a command or OTA directive.
type AckMessage struct {
	// ID is the identifier of the command/OTA being acknowledged.
	ID string

	// Status is the processing outcome.
	Status AckStatus

	// Message optionally describes the outcome. Omitted from the wire
	// (not encoded as null) when empty.
	Message string
}

// InboundKind classifies a decoded inbound message.
type InboundKind int

// Inbound message kinds.
const (
	InboundCommand InboundKind = iota + 1
	InboundOta
)

// Inbound is the result of classifying and decoding an inbound payload.
// Exactly one of Command/Ota is meaningful, selected by Kind.
type Inbound struct {
	Kind    InboundKind
	Command CommandMessage
	Ota     OtaMessage
}

// TopicSet is the set of MQTT topics issued for one session.
type TopicSet struct {
	// Pub is the device-to-cloud telemetry topic.
	Pub string

	// Sub is the cloud-to-device command/OTA topic.
	Sub string

	// Ack is the acknowledgement topic. May be empty, in which case the
	// codec derives it from Pub per protocol version.
	Ack string
}
