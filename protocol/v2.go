package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// schemaV2 is the current wire schema with self-describing key names.
// Telemetry preserves field order as an array of key/value pairs.
type schemaV2 struct{}

// otaTypeV2 is the inbound type value identifying OTA directives.
const otaTypeV2 = "ota"

type wirePairV2 struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wireTelemetryV2 struct {
	DeviceUniqueID string       `json:"deviceUniqueId"`
	Timestamp      string       `json:"timestamp"`
	Data           []wirePairV2 `json:"data"`
}

type wireTelemetryBatchV2 struct {
	Records []wireTelemetryV2 `json:"records"`
}

type wireAckV2 struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type wireInboundV2 struct {
	ID          *string        `json:"id"`
	Type        *string        `json:"type"`
	Payload     map[string]any `json:"payload"`
	AckRequired bool           `json:"ackRequired"`
}

func telemetryRecordV2(rec record) wireTelemetryV2 {
	pairs := make([]wirePairV2, 0, len(rec.data))
	for _, f := range rec.data {
		pairs = append(pairs, wirePairV2{Key: f.Key, Value: f.Value})
	}
	return wireTelemetryV2{
		DeviceUniqueID: rec.duid,
		Timestamp:      rec.ts.Format(time.RFC3339),
		Data:           pairs,
	}
}

func (schemaV2) encodeTelemetry(records []record) ([]byte, error) {
	var env any
	if len(records) == 1 {
		env = telemetryRecordV2(records[0])
	} else {
		batch := wireTelemetryBatchV2{Records: make([]wireTelemetryV2, 0, len(records))}
		for _, rec := range records {
			batch.Records = append(batch.Records, telemetryRecordV2(rec))
		}
		env = batch
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return out, nil
}

func (schemaV2) encodeAck(ack AckMessage) ([]byte, error) {
	out, err := json.Marshal(wireAckV2{
		ID:      ack.ID,
		Status:  string(ack.Status),
		Message: ack.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return out, nil
}

// parseInbound reads and validates the v2 inbound envelope. Unknown fields
// are ignored for forward compatibility; id and type are required.
func (schemaV2) parseInbound(data []byte) (wireInboundV2, error) {
	var wire wireInboundV2
	if err := json.Unmarshal(data, &wire); err != nil {
		return wire, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if wire.ID == nil || *wire.ID == "" {
		return wire, fmt.Errorf("%w: missing required field \"id\"", ErrMalformedMessage)
	}
	if wire.Type == nil || *wire.Type == "" {
		return wire, fmt.Errorf("%w: missing required field \"type\"", ErrMalformedMessage)
	}
	return wire, nil
}

func (s schemaV2) decodeCommand(data []byte) (CommandMessage, error) {
	wire, err := s.parseInbound(data)
	if err != nil {
		return CommandMessage{}, err
	}
	return CommandMessage{
		ID:          *wire.ID,
		Type:        *wire.Type,
		Payload:     wire.Payload,
		AckRequired: wire.AckRequired,
	}, nil
}

func (s schemaV2) decodeOta(data []byte) (OtaMessage, error) {
	wire, err := s.parseInbound(data)
	if err != nil {
		return OtaMessage{}, err
	}
	if *wire.Type != otaTypeV2 {
		return OtaMessage{}, fmt.Errorf("%w: not an OTA directive (type %q)", ErrMalformedMessage, *wire.Type)
	}
	return OtaMessage{
		ID:          *wire.ID,
		Type:        *wire.Type,
		Payload:     wire.Payload,
		AckRequired: wire.AckRequired,
	}, nil
}

func (s schemaV2) decodeInbound(data []byte) (Inbound, error) {
	wire, err := s.parseInbound(data)
	if err != nil {
		return Inbound{}, err
	}
	if *wire.Type == otaTypeV2 {
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

func (schemaV2) ackTopic(topics TopicSet) string {
	if topics.Ack != "" {
		return topics.Ack
	}
	return topics.Pub + "/ack"
}
