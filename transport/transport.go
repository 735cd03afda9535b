package transport

import (
	"context"
	"time"
)

// HTTP is the HTTP round-trip interface consumed by discovery and sync
// negotiation. Implementations must honor ctx for cancellation and timeout
// of the single request in flight.
//
// A non-2xx status is not an error at this level: the caller maps status
// codes to its own failure categories. err is reserved for transport-level
// failures (DNS, connect, reset, timeout), which callers treat as transient.
type HTTP interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error)
}

// MessageHandler is the callback signature for inbound MQTT messages.
// Handlers are invoked in the delivery order of the underlying transport.
// A returned error is reported by the caller; it never affects delivery.
type MessageHandler func(topic string, payload []byte) error

// ConnectOptions carries everything an MQTT implementation needs to open
// the broker connection for one session. AuthMode/AuthMaterial are passed
// through from the sync response; the core never generates or stores
// secret material itself.
type ConnectOptions struct {
	BrokerHost string
	BrokerPort int
	ClientID   string

	// Username is the broker username, when the auth mode uses one.
	Username string

	// AuthMode is the negotiated authentication mode: "token", "x509" or
	// "symmetricKey".
	AuthMode string

	// AuthMaterial is the opaque credential issued by the backend: a token,
	// a certificate reference or a key reference, depending on AuthMode.
	AuthMaterial string

	// KeepAlive of zero lets the implementation pick its default.
	KeepAlive time.Duration
}

// MQTT is the publish/subscribe interface consumed by the session state
// machine. Implementations must be safe for one Connect, one or more
// Subscribes, many concurrent Publishes and an unbounded stream of inbound
// deliveries.
type MQTT interface {
	// Connect opens the broker connection. Blocking; honors ctx.
	Connect(ctx context.Context, opts ConnectOptions) error

	// Publish hands one message to the transport. It returns once the
	// transport accepts the write; broker acknowledgement is governed by
	// the transport's own QoS semantics.
	Publish(topic string, payload []byte) error

	// Subscribe registers a handler for a topic. The handler may be
	// invoked from the transport's own goroutines.
	Subscribe(topic string, handler MessageHandler) error

	// Disconnect closes the connection. Idempotent.
	Disconnect() error

	// SetOnConnectionLost registers a callback for transport-reported
	// connection loss. Must be called before Connect.
	SetOnConnectionLost(fn func(err error))
}

// IsSuccessStatus reports whether an HTTP status is a 2xx success.
func IsSuccessStatus(status int) bool {
	return status >= 200 && status <= 299
}

// IsTransientStatus reports whether an HTTP status indicates a transient
// failure the caller may retry with backoff (5xx).
func IsTransientStatus(status int) bool {
	return status >= 500 && status <= 599
}
