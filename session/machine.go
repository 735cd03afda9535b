package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iotlink/device-core/discovery"
	"github.com/iotlink/device-core/identity"
	"github.com/iotlink/device-core/negotiate"
	"github.com/iotlink/device-core/protocol"
	"github.com/iotlink/device-core/transport"
)

// reconnectTimeout bounds an automatic reconnect triggered by session
// expiry. Explicit Connect calls are bounded by the caller's context.
const reconnectTimeout = 30 * time.Second

// Logger is the optional logging interface for per-message diagnostics.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CommandHandler receives decoded inbound commands.
type CommandHandler func(cmd protocol.CommandMessage)

// OtaHandler receives decoded inbound OTA directives.
type OtaHandler func(ota protocol.OtaMessage)

// DecodeErrorHandler receives per-message inbound decode failures. The
// session stays up; one bad message must never disconnect the device.
type DecodeErrorHandler func(err error, topic string, payload []byte)

// Options configures session policies the spec leaves to the caller.
type Options struct {
	// AutoReconnect re-runs the connection chain automatically when
	// session expiry is detected before a publish. When false, the
	// machine surfaces ErrSessionExpired and waits for an explicit
	// Connect.
	AutoReconnect bool

	// CacheDiscovery reuses the last successful discovery result on
	// reconnect instead of re-resolving. Trades discovery-service load
	// against tolerance of backend topology changes.
	CacheDiscovery bool
}

// Machine is the session state machine for one device identity.
//
// Thread Safety:
//   - All methods are safe to invoke from a transport callback context
//     concurrently with caller-driven publishes. One mutex guards state
//     and session credentials; handlers are dispatched outside it.
type Machine struct {
	id         identity.Identity
	resolver   *discovery.Resolver
	negotiator *negotiate.Negotiator
	mqtt       transport.MQTT
	opts       Options

	mu        sync.Mutex
	state     State
	sess      *negotiate.Session
	codec     *protocol.Codec
	lastErr   error
	lastDisco *discovery.Result

	onCommand     CommandHandler
	onOta         OtaHandler
	onDecodeError DecodeErrorHandler
	logger        Logger

	// now supplies the expiry clock; replaced in tests.
	now func() time.Time
}

// New creates a session machine in the Idle state.
//
// Parameters:
//   - id: validated device identity
//   - resolver: discovery resolver
//   - negotiator: sync negotiator
//   - mqttTransport: injected MQTT transport (connection-managed outside
//     this core)
//   - opts: caller policies (auto-reconnect, discovery caching)
func New(id identity.Identity, resolver *discovery.Resolver, negotiator *negotiate.Negotiator, mqttTransport transport.MQTT, opts Options) *Machine {
	return &Machine{
		id:         id,
		resolver:   resolver,
		negotiator: negotiator,
		mqtt:       mqttTransport,
		opts:       opts,
		state:      StateIdle,
		now:        time.Now,
	}
}

// OnCommand registers the inbound command handler. Register before
// Connect; the handler runs in the transport's delivery context and may
// call PublishAck.
func (m *Machine) OnCommand(h CommandHandler) {
	m.mu.Lock()
	m.onCommand = h
	m.mu.Unlock()
}

// OnOta registers the inbound OTA directive handler.
func (m *Machine) OnOta(h OtaHandler) {
	m.mu.Lock()
	m.onOta = h
	m.mu.Unlock()
}

// SetOnDecodeError registers a diagnostic callback for inbound payloads
// that fail to decode.
func (m *Machine) SetOnDecodeError(h DecodeErrorHandler) {
	m.mu.Lock()
	m.onDecodeError = h
	m.mu.Unlock()
}

// SetLogger sets a logger for per-message diagnostics and connection
// loss reporting.
func (m *Machine) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error that caused the last transition to
// Disconnected, or nil.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Current returns a snapshot of the active session credentials, or nil
// when not connected.
func (m *Machine) Current() *negotiate.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	cp := *m.sess
	return &cp
}

// Connect runs the full connection chain: discovery, sync negotiation,
// broker connect, command-topic subscribe. On success the machine is
// Connected and ready to publish.
//
// Any failure leaves the machine Disconnected with the causing error
// retained; the category (transient/permanent/not-registered/unsupported
// version) passes through for the caller's retry policy. ctx bounds each
// network call; on cancellation the machine reverts to Disconnected.
func (m *Machine) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateDiscovering, StateNegotiating:
		m.mu.Unlock()
		return ErrConnectInProgress
	case StateIdle, StateDisconnected:
	}
	m.state = StateDiscovering
	cached := m.lastDisco
	m.mu.Unlock()

	var (
		disco discovery.Result
		err   error
	)
	if m.opts.CacheDiscovery && cached != nil {
		disco = *cached
	} else {
		disco, err = m.resolver.Resolve(ctx, m.id)
		if err != nil {
			return m.fail(err)
		}
	}

	m.mu.Lock()
	m.state = StateNegotiating
	m.lastDisco = &disco
	m.mu.Unlock()

	sess, err := m.negotiator.Negotiate(ctx, disco, m.id)
	if err != nil {
		return m.fail(err)
	}

	codec, err := protocol.NewCodec(sess.ProtocolVersion)
	if err != nil {
		// Unsupported version is fatal to the session, never retried here.
		return m.fail(err)
	}

	m.mqtt.SetOnConnectionLost(m.handleConnectionLost)
	if err := m.mqtt.Connect(ctx, transport.ConnectOptions{
		BrokerHost:   sess.BrokerHost,
		BrokerPort:   sess.BrokerPort,
		ClientID:     sess.ClientID,
		Username:     sess.Username,
		AuthMode:     string(sess.AuthMode),
		AuthMaterial: sess.AuthMaterial,
	}); err != nil {
		return m.fail(fmt.Errorf("connecting to broker: %w", err))
	}

	if err := m.mqtt.Subscribe(sess.Topics.Sub, m.handleInbound); err != nil {
		_ = m.mqtt.Disconnect()
		return m.fail(fmt.Errorf("subscribing to %s: %w", sess.Topics.Sub, err))
	}

	m.mu.Lock()
	m.state = StateConnected
	m.sess = sess
	m.codec = codec
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

// fail records a connection-chain failure: the machine drops to
// Disconnected with the causing error retained and any partial session
// state discarded. Returns err so failure branches can return directly.
func (m *Machine) fail(err error) error {
	m.mu.Lock()
	m.state = StateDisconnected
	m.sess = nil
	m.codec = nil
	m.lastErr = err
	m.mu.Unlock()
	return err
}

// Disconnect tears the session down explicitly. Idempotent; the session
// credentials are discarded, never reused.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	wasConnected := m.state == StateConnected
	m.state = StateDisconnected
	m.sess = nil
	m.codec = nil
	m.mu.Unlock()

	if wasConnected {
		return m.mqtt.Disconnect()
	}
	return nil
}

// PublishTelemetry encodes one telemetry record and hands it to the
// transport on the session's publish topic. Records submitted in sequence
// are handed to the transport in that sequence.
func (m *Machine) PublishTelemetry(msg protocol.TelemetryMessage) error {
	return m.publish(
		func(c *protocol.Codec) ([]byte, error) { return c.EncodeTelemetry(m.id, msg) },
		func(s *negotiate.Session, _ *protocol.Codec) string { return s.Topics.Pub },
	)
}

// PublishTelemetryBatch encodes several records into one wire message.
func (m *Machine) PublishTelemetryBatch(msgs []protocol.TelemetryMessage) error {
	return m.publish(
		func(c *protocol.Codec) ([]byte, error) { return c.EncodeTelemetryBatch(m.id, msgs) },
		func(s *negotiate.Session, _ *protocol.Codec) string { return s.Topics.Pub },
	)
}

// PublishAck encodes an acknowledgement and hands it to the transport on
// the session's ack topic. Acks are fire-and-forget at this layer;
// delivery confirmation is the transport's QoS contract.
func (m *Machine) PublishAck(ack protocol.AckMessage) error {
	return m.publish(
		func(c *protocol.Codec) ([]byte, error) { return c.EncodeAck(ack) },
		func(s *negotiate.Session, c *protocol.Codec) string { return c.AckTopic(s.Topics) },
	)
}

// publish is the shared publish path: state check, lazy expiry check,
// encode and hand-off, all under the machine mutex so transitions are
// never observed half-applied and ordering is preserved.
func (m *Machine) publish(encode func(*protocol.Codec) ([]byte, error), topicFor func(*negotiate.Session, *protocol.Codec) string) error {
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		if m.state != StateConnected {
			m.mu.Unlock()
			return ErrNotConnected
		}

		if m.sess.Expired(m.now()) {
			m.state = StateDisconnected
			m.sess = nil
			m.codec = nil
			m.lastErr = ErrSessionExpired
			m.mu.Unlock()
			_ = m.mqtt.Disconnect()

			if !m.opts.AutoReconnect || attempt > 0 {
				return ErrSessionExpired
			}

			ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
			err := m.Connect(ctx)
			cancel()
			if err != nil {
				return err
			}
			continue
		}

		wire, err := encode(m.codec)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		topic := topicFor(m.sess, m.codec)
		err = m.mqtt.Publish(topic, wire)
		m.mu.Unlock()
		return err
	}
}

// handleInbound is the transport's message callback on the subscribe
// topic. Decode failures are reported per message and never tear down
// the session.
func (m *Machine) handleInbound(topic string, payload []byte) error {
	m.mu.Lock()
	codec := m.codec
	onCommand := m.onCommand
	onOta := m.onOta
	onDecodeError := m.onDecodeError
	logger := m.logger
	m.mu.Unlock()

	if codec == nil {
		// Delivery raced a disconnect; nothing to decode against.
		return nil
	}

	in, err := codec.DecodeInbound(payload)
	if err != nil {
		if logger != nil {
			logger.Warn("dropping undecodable inbound message",
				"topic", topic,
				"error", err,
			)
		}
		if onDecodeError != nil {
			onDecodeError(err, topic, payload)
		}
		return err
	}

	// Dispatch outside the lock: handlers may publish acks.
	switch in.Kind {
	case protocol.InboundCommand:
		if onCommand != nil {
			onCommand(in.Command)
		}
	case protocol.InboundOta:
		if onOta != nil {
			onOta(in.Ota)
		}
	}
	return nil
}

// handleConnectionLost is the transport's connection-loss callback.
func (m *Machine) handleConnectionLost(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		// Already transitioned (explicit disconnect or expiry).
		return
	}
	m.state = StateDisconnected
	m.sess = nil
	m.codec = nil
	m.lastErr = ErrConnectionLost
	if err != nil {
		m.lastErr = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	if m.logger != nil {
		m.logger.Warn("broker connection lost", "error", err)
	}
}
