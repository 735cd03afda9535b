package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/iotlink/device-core/protocol"
)

// RecordTelemetry mirrors one outbound telemetry message.
//
// Scalar values become InfluxDB fields directly; nested objects are stored
// as their JSON rendering so nothing is silently dropped. The message
// timestamp is used when set, the write time otherwise.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (j *Journal) RecordTelemetry(msg protocol.TelemetryMessage) {
	if !j.IsConnected() {
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		"telemetry",
		j.tags(),
		flattenFields(msg.Data),
		ts,
	)

	j.writeAPI.WritePoint(point)
}

// RecordAck mirrors one outbound acknowledgement.
func (j *Journal) RecordAck(ack protocol.AckMessage) {
	if !j.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"message_id": ack.ID,
		"status":     string(ack.Status),
	}
	if ack.Message != "" {
		fields["detail"] = ack.Message
	}

	point := write.NewPoint("ack", j.tags(), fields, time.Now())
	j.writeAPI.WritePoint(point)
}

// RecordSessionEvent mirrors a session lifecycle transition.
//
// Parameters:
//   - event: Transition name (e.g. "connected", "disconnected", "expired")
//   - detail: Optional context, typically an error string; empty is fine
func (j *Journal) RecordSessionEvent(event string, detail string) {
	if !j.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"event": event,
	}
	if detail != "" {
		fields["detail"] = detail
	}

	point := write.NewPoint("session", j.tags(), fields, time.Now())
	j.writeAPI.WritePoint(point)
}

// tags returns the standard tag set for every point.
func (j *Journal) tags() map[string]string {
	return map[string]string{
		"duid": j.duid,
		"run":  j.runID,
	}
}

// flattenFields converts telemetry fields into InfluxDB field values.
// Scalars pass through; nested objects are rendered as JSON strings.
func flattenFields(data []protocol.Field) map[string]interface{} {
	fields := make(map[string]interface{}, len(data))
	for _, f := range data {
		switch v := f.Value.(type) {
		case bool, string,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			fields[f.Key] = v
		case json.Number:
			fields[f.Key] = v.String()
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				fields[f.Key] = fmt.Sprintf("%v", v)
				continue
			}
			fields[f.Key] = string(raw)
		}
	}
	return fields
}
