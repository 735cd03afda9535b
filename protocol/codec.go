package protocol

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iotlink/device-core/identity"
)

// record is a validated, timestamped telemetry record handed to a schema
// for shaping. Timestamps are already clamped to be non-decreasing.
type record struct {
	duid string
	ts   time.Time
	data orderedObject
}

// schema is one protocol version's wire shape. Implementations are pure;
// all validation and timestamping happens in Codec before dispatch.
type schema interface {
	encodeTelemetry(records []record) ([]byte, error)
	encodeAck(ack AckMessage) ([]byte, error)
	decodeCommand(data []byte) (CommandMessage, error)
	decodeOta(data []byte) (OtaMessage, error)
	decodeInbound(data []byte) (Inbound, error)
	ackTopic(topics TopicSet) string
}

// schemas is the version dispatch table. Adding a protocol version means
// adding one entry here plus its own file and tests.
var schemas = map[int]schema{
	1: schemaV1{},
	2: schemaV2{},
}

// SupportedVersions returns the protocol versions this build implements,
// ascending.
func SupportedVersions() []int {
	versions := make([]int, 0, len(schemas))
	for v := range schemas {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// Codec converts between structured messages and wire JSON for one
// protocol version.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The timestamp clamp is the
//     only mutable state and is guarded internally.
type Codec struct {
	version int
	schema  schema

	// now supplies encode-time timestamps; replaced in tests.
	now func() time.Time

	// lastTS enforces the non-decreasing timestamp guarantee.
	lastTS time.Time
	tsMu   sync.Mutex
}

// NewCodec creates a codec for the given protocol version.
//
// Returns:
//   - *Codec: ready for use
//   - error: ErrUnsupportedVersion (wrapped) if the version is unknown
func NewCodec(version int) (*Codec, error) {
	s, ok := schemas[version]
	if !ok {
		return nil, fmt.Errorf("%w: version %d (supported: %v)", ErrUnsupportedVersion, version, SupportedVersions())
	}
	return &Codec{
		version: version,
		schema:  s,
		now:     time.Now,
	}, nil
}

// Version returns the protocol version this codec implements.
func (c *Codec) Version() int {
	return c.version
}

// EncodeTelemetry produces the wire JSON for a single telemetry record.
//
// The record timestamp is taken from msg.Timestamp, or from the clock when
// zero, and clamped so consecutive encodes never emit a timestamp earlier
// than the previous one.
//
// Returns:
//   - []byte: immutable wire JSON
//   - error: ErrEncoding if a value is outside the wire value model
func (c *Codec) EncodeTelemetry(id identity.Identity, msg TelemetryMessage) ([]byte, error) {
	rec, err := c.prepare(id, msg)
	if err != nil {
		return nil, err
	}
	return c.schema.encodeTelemetry([]record{rec})
}

// EncodeTelemetryBatch produces one wire message carrying several telemetry
// records, each with its own timestamp. Record order is preserved.
func (c *Codec) EncodeTelemetryBatch(id identity.Identity, msgs []TelemetryMessage) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: empty telemetry batch", ErrEncoding)
	}
	records := make([]record, 0, len(msgs))
	for _, msg := range msgs {
		rec, err := c.prepare(id, msg)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return c.schema.encodeTelemetry(records)
}

// prepare validates a message and resolves its DUID and timestamp.
func (c *Codec) prepare(id identity.Identity, msg TelemetryMessage) (record, error) {
	if err := validateFields(msg.Data); err != nil {
		return record{}, err
	}

	duid := msg.DeviceUniqueID
	if duid == "" {
		duid = id.DUID
	}

	return record{
		duid: duid,
		ts:   c.stamp(msg.Timestamp),
		data: orderedObject(msg.Data),
	}, nil
}

// stamp resolves and clamps a record timestamp so the emitted sequence is
// monotonically non-decreasing.
func (c *Codec) stamp(ts time.Time) time.Time {
	c.tsMu.Lock()
	defer c.tsMu.Unlock()

	if ts.IsZero() {
		ts = c.now()
	}
	ts = ts.UTC()
	if ts.Before(c.lastTS) {
		ts = c.lastTS
	}
	c.lastTS = ts
	return ts
}

// DecodeCommand parses an inbound command payload.
//
// Returns:
//   - CommandMessage: the decoded command
//   - error: ErrMalformedMessage if required fields are missing or mistyped
func (c *Codec) DecodeCommand(data []byte) (CommandMessage, error) {
	return c.schema.decodeCommand(data)
}

// DecodeOta parses an inbound over-the-air update directive.
func (c *Codec) DecodeOta(data []byte) (OtaMessage, error) {
	return c.schema.decodeOta(data)
}

// DecodeInbound classifies an inbound payload as command or OTA and decodes
// it. Used by the session machine to dispatch to the right handler.
func (c *Codec) DecodeInbound(data []byte) (Inbound, error) {
	return c.schema.decodeInbound(data)
}

// EncodeAck produces the wire JSON acknowledging a command or OTA directive.
// The id and status are always present; the message is omitted entirely
// when empty.
//
// Returns:
//   - []byte: immutable wire JSON
//   - error: ErrEncoding if the ack has no id or an unknown status
func (c *Codec) EncodeAck(ack AckMessage) ([]byte, error) {
	if ack.ID == "" {
		return nil, fmt.Errorf("%w: ack without id", ErrEncoding)
	}
	switch ack.Status {
	case AckSuccess, AckFailure:
	default:
		return nil, fmt.Errorf("%w: unknown ack status %q", ErrEncoding, ack.Status)
	}
	return c.schema.encodeAck(ack)
}

// AckTopic resolves the acknowledgement publish topic from a session topic
// set, falling back to a version-defined derivation when the backend did
// not issue a dedicated ack topic.
func (c *Codec) AckTopic(topics TopicSet) string {
	return c.schema.ackTopic(topics)
}
