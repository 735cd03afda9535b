// Package transport defines the narrow interfaces through which the device
// core talks to the outside world, plus a default net/http-backed HTTP
// implementation.
//
// The core never owns sockets, TLS handshakes or keep-alive. It performs
// exactly two kinds of I/O, both through injected collaborators:
//
//   - one HTTP round-trip each for discovery and sync negotiation (HTTP)
//   - publish/subscribe traffic for telemetry, commands and acks (MQTT)
//
// Higher-level SDKs inject their own implementations; the reference MQTT
// adapter lives in internal/infrastructure/mqtt.
//
// # Failure classification
//
// The core treats HTTP 2xx as success, 4xx as permanent failure and
// 5xx/timeout/connection-reset as transient failure. The classification
// helpers here keep that mapping in one place.
package transport
