// Package journal mirrors device traffic into InfluxDB for diagnostics.
//
// It wraps the official influxdb-client-go v2 library so telemetry,
// acknowledgements and session transitions published by a device can be
// inspected on a local dashboard during development and field testing.
// The journal is strictly observational: it never participates in the
// connection chain, and a journal failure never affects the session.
//
// # Usage
//
//	cfg := config.JournalConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "iotlink",
//	    Bucket:  "device-journal",
//	}
//
//	j, err := journal.Open(cfg, id)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
//
//	j.RecordTelemetry(msg)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Open and health check errors are returned directly.
package journal
