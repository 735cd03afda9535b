package protocol

import (
	"encoding/json"
	"fmt"
)

// schemaV1 is the legacy compact wire schema: single-letter envelope keys
// and millisecond UTC timestamps. Kept for fleets that have not migrated.
type schemaV1 struct{}

// timestampFormatV1 matches the platform's legacy timestamp rendering,
// millisecond precision with a literal Z suffix.
const timestampFormatV1 = "2006-01-02T15:04:05.000Z"

// Legacy ack status codes.
const (
	ackStatusSuccessV1 = 6
	ackStatusFailureV1 = 4
)

// Legacy inbound message type codes carried in "ct".
const (
	inboundTypeCommandV1 = 0
	inboundTypeOtaV1     = 1
	inboundTypeModuleV1  = 2
)

// inboundTypeNamesV1 maps legacy numeric type codes to the type names used
// by the rest of the system.
var inboundTypeNamesV1 = map[int]string{
	inboundTypeCommandV1: "command",
	inboundTypeOtaV1:     "ota",
	inboundTypeModuleV1:  "module",
}

type wireTelemetryEntryV1 struct {
	D  orderedObject `json:"d"`
	DT string        `json:"dt,omitempty"`
}

type wireTelemetryV1 struct {
	D []wireTelemetryEntryV1 `json:"d"`
}

type wireAckBodyV1 struct {
	Ack string `json:"ack"`
	St  int    `json:"st"`
	Msg string `json:"msg,omitempty"`
}

type wireAckV1 struct {
	D wireAckBodyV1 `json:"d"`
}

type wireInboundV1 struct {
	CT   *int           `json:"ct"`
	Cmd  string         `json:"cmd"`
	Ack  *string        `json:"ack"`
	D    map[string]any `json:"d"`
	URLs []any          `json:"urls"`
}

func (schemaV1) encodeTelemetry(records []record) ([]byte, error) {
	env := wireTelemetryV1{D: make([]wireTelemetryEntryV1, 0, len(records))}
	for _, rec := range records {
		env.D = append(env.D, wireTelemetryEntryV1{
			D:  rec.data,
			DT: rec.ts.Format(timestampFormatV1),
		})
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return out, nil
}

func (schemaV1) encodeAck(ack AckMessage) ([]byte, error) {
	st := ackStatusFailureV1
	if ack.Status == AckSuccess {
		st = ackStatusSuccessV1
	}
	out, err := json.Marshal(wireAckV1{D: wireAckBodyV1{
		Ack: ack.ID,
		St:  st,
		Msg: ack.Message,
	}})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return out, nil
}

// parseInbound reads and validates the legacy inbound envelope. The "ack"
// guid doubles as the message id; "ct" carries the numeric type.
func (schemaV1) parseInbound(data []byte) (wireInboundV1, string, error) {
	var wire wireInboundV1
	if err := json.Unmarshal(data, &wire); err != nil {
		return wire, "", fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if wire.CT == nil {
		return wire, "", fmt.Errorf("%w: missing required field \"ct\"", ErrMalformedMessage)
	}
	typeName, known := inboundTypeNamesV1[*wire.CT]
	if !known {
		return wire, "", fmt.Errorf("%w: unrecognised message type ct=%d", ErrMalformedMessage, *wire.CT)
	}
	if wire.Ack == nil || *wire.Ack == "" {
		return wire, "", fmt.Errorf("%w: missing required field \"ack\"", ErrMalformedMessage)
	}
	return wire, typeName, nil
}

// payload assembles the decoded payload map from the envelope parts.
func (wire wireInboundV1) payload() map[string]any {
	var payload map[string]any
	if wire.D != nil {
		payload = make(map[string]any, len(wire.D)+2)
		for k, v := range wire.D {
			payload[k] = v
		}
	}
	if wire.Cmd != "" {
		if payload == nil {
			payload = make(map[string]any, 2)
		}
		payload["cmd"] = wire.Cmd
	}
	if wire.URLs != nil {
		if payload == nil {
			payload = make(map[string]any, 1)
		}
		payload["urls"] = wire.URLs
	}
	return payload
}

func (s schemaV1) decodeCommand(data []byte) (CommandMessage, error) {
	wire, typeName, err := s.parseInbound(data)
	if err != nil {
		return CommandMessage{}, err
	}
	return CommandMessage{
		ID:          *wire.Ack,
		Type:        typeName,
		Payload:     wire.payload(),
		AckRequired: true,
	}, nil
}

func (s schemaV1) decodeOta(data []byte) (OtaMessage, error) {
	wire, typeName, err := s.parseInbound(data)
	if err != nil {
		return OtaMessage{}, err
	}
	if *wire.CT != inboundTypeOtaV1 {
		return OtaMessage{}, fmt.Errorf("%w: not an OTA directive (ct=%d)", ErrMalformedMessage, *wire.CT)
	}
	return OtaMessage{
		ID:          *wire.Ack,
		Type:        typeName,
		Payload:     wire.payload(),
		AckRequired: true,
	}, nil
}

func (s schemaV1) decodeInbound(data []byte) (Inbound, error) {
	wire, _, err := s.parseInbound(data)
	if err != nil {
		return Inbound{}, err
	}
	if *wire.CT == inboundTypeOtaV1 {
		ota, err := s.decodeOta(data)
		if err != nil {
			return Inbound{}, err
		}
		return Inbound{Kind: InboundOta, Ota: ota}, nil
	}
	cmd, err := s.decodeCommand(data)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Kind: InboundCommand, Command: cmd}, nil
}

func (schemaV1) ackTopic(topics TopicSet) string {
	if topics.Ack != "" {
		return topics.Ack
	}
	return topics.Pub + "/ack"
}
