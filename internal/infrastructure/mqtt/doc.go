// Package mqtt provides MQTT broker connectivity for IoTLink devices.
//
// This package manages:
//   - Connection to the negotiated broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with automatic restoration on reconnect
//   - Credential wiring per the negotiated auth mode
//
// # Architecture
//
// The client implements the transport.MQTT interface consumed by the
// session state machine. Broker address, client ID and credentials are
// not configured locally; they arrive from identity negotiation and are
// passed to Connect per session.
//
//	session.Machine → transport.MQTT → paho → IoTLink broker
//
// # Security Considerations
//
//   - TLS is enabled by default (mqtt.tls.enabled)
//   - Token and symmetric-key modes authenticate via username/password
//   - x509 mode loads the client certificate from mqtt.tls.cert_file/key_file
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Publish latency: dominated by broker round-trip at QoS 1
//   - Reconnect: Exponential backoff between configured delays
//
// # Usage
//
//	client := mqtt.NewClient(cfg.MQTT)
//	machine := session.New(id, resolver, negotiator, client, opts)
package mqtt
