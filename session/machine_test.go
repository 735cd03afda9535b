package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iotlink/device-core/discovery"
	"github.com/iotlink/device-core/identity"
	"github.com/iotlink/device-core/negotiate"
	"github.com/iotlink/device-core/protocol"
	"github.com/iotlink/device-core/transport"
)

// =============================================================================
// Fakes
// =============================================================================

// routedHTTP serves canned discovery and sync responses, routing on the
// request path the way the backend does.
type routedHTTP struct {
	mu sync.Mutex

	discoStatus int
	discoBody   string
	discoCalls  int

	syncStatus int
	syncBodies []string // consumed front to back; last one repeats
	syncCalls  int
}

func (r *routedHTTP) Do(ctx context.Context, _, url string, _ map[string]string, _ []byte) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.Contains(url, "/uid/") {
		r.syncCalls++
		body := r.syncBodies[0]
		if len(r.syncBodies) > 1 {
			r.syncBodies = r.syncBodies[1:]
		}
		return r.syncStatus, []byte(body), nil
	}
	r.discoCalls++
	return r.discoStatus, []byte(r.discoBody), nil
}

type publishRecord struct {
	topic   string
	payload string
}

// fakeMQTT implements transport.MQTT, recording traffic for assertions.
type fakeMQTT struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	lastOpts    transport.ConnectOptions
	publishes   []publishRecord
	subs        map[string]transport.MessageHandler
	onLost      func(error)
	disconnects int
}

func (f *fakeMQTT) Connect(_ context.Context, opts transport.ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.lastOpts = opts
	return nil
}

func (f *fakeMQTT) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, publishRecord{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, handler transport.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]transport.MessageHandler)
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeMQTT) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakeMQTT) SetOnConnectionLost(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onLost = fn
}

// deliver simulates the broker delivering an inbound message.
func (f *fakeMQTT) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	f.mu.Lock()
	handler := f.subs[topic]
	f.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription for topic %q", topic)
	}
	return handler(topic, []byte(payload))
}

func (f *fakeMQTT) published() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.publishes))
	copy(out, f.publishes)
	return out
}

// =============================================================================
// Harness
// =============================================================================

const (
	discoOKBody = `{"d":{"ec":0,"bu":"https://sync.poc.example","pf":"aws"},"status":200}`
	syncOKBody  = `{"d":{
		"ec":0,
		"protocolVersion":2,
		"broker":{"host":"mqtt.example","port":8883,"authMode":"token","authMaterial":"tok-abc"},
		"topics":{"pub":"iot/dev1/2d","sub":"iot/dev1/2c"}
	},"status":200}`
)

func testIdentity(t *testing.T) identity.Identity {
	t.Helper()
	id, err := identity.New("dev1", "CP1", "poc", identity.PlatformAWS)
	if err != nil {
		t.Fatalf("identity.New() error = %v", err)
	}
	return id
}

func newTestMachine(t *testing.T, http *routedHTTP, mqtt *fakeMQTT, opts Options) *Machine {
	t.Helper()
	return New(
		testIdentity(t),
		discovery.NewResolver(http),
		negotiate.NewNegotiator(http),
		mqtt,
		opts,
	)
}

func connectedMachine(t *testing.T, opts Options) (*Machine, *fakeMQTT) {
	t.Helper()
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	mqtt := &fakeMQTT{}
	m := newTestMachine(t, http, mqtt, opts)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return m, mqtt
}

// =============================================================================
// Connect Tests
// =============================================================================

func TestConnect(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	if m.State() != StateConnected {
		t.Fatalf("State() = %v, want connected", m.State())
	}

	sess := m.Current()
	if sess == nil {
		t.Fatal("Current() = nil, want session")
	}
	if sess.ProtocolVersion != 2 ||
		sess.BrokerHost != "mqtt.example" || sess.BrokerPort != 8883 ||
		sess.Topics.Pub != "iot/dev1/2d" || sess.Topics.Sub != "iot/dev1/2c" ||
		sess.AuthMode != negotiate.AuthToken || sess.AuthMaterial != "tok-abc" {
		t.Errorf("Current() = %+v, want negotiated session verbatim", sess)
	}

	if mqtt.lastOpts.BrokerHost != "mqtt.example" || mqtt.lastOpts.AuthMaterial != "tok-abc" {
		t.Errorf("transport connect opts = %+v, want session credentials", mqtt.lastOpts)
	}
	if mqtt.subs["iot/dev1/2c"] == nil {
		t.Error("machine did not subscribe to the command topic")
	}
}

func TestConnectAlreadyConnected(t *testing.T) {
	m, _ := connectedMachine(t, Options{})
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectDiscoveryTransient(t *testing.T) {
	http := &routedHTTP{discoStatus: 503, discoBody: "unavailable", syncStatus: 200, syncBodies: []string{syncOKBody}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	err := m.Connect(context.Background())
	if !errors.Is(err, discovery.ErrTransient) {
		t.Fatalf("Connect() error = %v, want discovery.ErrTransient", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after failure", m.State())
	}
	if !errors.Is(m.LastError(), discovery.ErrTransient) {
		t.Errorf("LastError() = %v, want retained discovery error", m.LastError())
	}
}

func TestConnectDeviceNotRegistered(t *testing.T) {
	http := &routedHTTP{
		discoStatus: 200, discoBody: discoOKBody,
		syncStatus: 200, syncBodies: []string{`{"d":{"ec":1},"status":200}`},
	}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	err := m.Connect(context.Background())
	if !errors.Is(err, negotiate.ErrDeviceNotRegistered) {
		t.Fatalf("Connect() error = %v, want ErrDeviceNotRegistered", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
}

func TestConnectUnsupportedProtocolVersion(t *testing.T) {
	body := `{"d":{
		"protocolVersion":9,
		"broker":{"host":"mqtt.example","port":8883},
		"topics":{"pub":"p","sub":"s"}
	},"status":200}`
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{body}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	err := m.Connect(context.Background())
	if !errors.Is(err, protocol.ErrUnsupportedVersion) {
		t.Fatalf("Connect() error = %v, want ErrUnsupportedVersion", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
}

func TestConnectCancelled(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Connect(ctx); err == nil {
		t.Fatal("Connect() expected error for cancelled context")
	}
	// Never left hanging in Discovering/Negotiating.
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after cancellation", m.State())
	}
}

func TestConnectBrokerFailureClearsState(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	mqtt := &fakeMQTT{connectErr: errors.New("broker refused")}
	m := newTestMachine(t, http, mqtt, Options{})

	err := m.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() expected error when broker connect fails")
	}
	if m.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected after broker failure", m.State())
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil, want retained broker error")
	}
	if m.Current() != nil {
		t.Error("Current() != nil, want no partial session after failure")
	}
	if err := m.PublishTelemetry(protocol.TelemetryMessage{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishTelemetry() error = %v, want ErrNotConnected", err)
	}

	// Disconnected is a valid start state for a retry.
	mqtt.mu.Lock()
	mqtt.connectErr = nil
	mqtt.mu.Unlock()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect() error = %v", err)
	}
	if m.State() != StateConnected {
		t.Errorf("State() = %v, want connected after retry", m.State())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil after successful retry", m.LastError())
	}
}

func TestConnectCachesDiscovery(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{CacheDiscovery: true})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}

	if http.discoCalls != 1 {
		t.Errorf("discovery calls = %d, want 1 with CacheDiscovery", http.discoCalls)
	}
	if http.syncCalls != 2 {
		t.Errorf("sync calls = %d, want 2 (always re-negotiated)", http.syncCalls)
	}
}

func TestReconnectReResolvesByDefault(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}

	if http.discoCalls != 2 {
		t.Errorf("discovery calls = %d, want 2 without CacheDiscovery", http.discoCalls)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishTelemetry(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	err := m.PublishTelemetry(protocol.TelemetryMessage{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Data:      []protocol.Field{{Key: "temp", Value: 21.5}},
	})
	if err != nil {
		t.Fatalf("PublishTelemetry() error = %v", err)
	}

	pubs := mqtt.published()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want 1", len(pubs))
	}
	if pubs[0].topic != "iot/dev1/2d" {
		t.Errorf("topic = %q, want iot/dev1/2d", pubs[0].topic)
	}
	want := `{"deviceUniqueId":"dev1","timestamp":"2024-01-01T00:00:00Z","data":[{"key":"temp","value":21.5}]}`
	if pubs[0].payload != want {
		t.Errorf("payload = %s, want %s", pubs[0].payload, want)
	}
}

func TestPublishTelemetryOrdering(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	for i := 0; i < 5; i++ {
		err := m.PublishTelemetry(protocol.TelemetryMessage{
			Timestamp: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
			Data:      []protocol.Field{{Key: "seq", Value: i}},
		})
		if err != nil {
			t.Fatalf("PublishTelemetry(%d) error = %v", i, err)
		}
	}

	pubs := mqtt.published()
	if len(pubs) != 5 {
		t.Fatalf("publishes = %d, want 5", len(pubs))
	}
	for i, p := range pubs {
		if !strings.Contains(p.payload, `"timestamp":"2024-01-01T00:00:0`+string(rune('0'+i))) {
			t.Errorf("publish %d out of order: %s", i, p.payload)
		}
	}
}

func TestPublishNotConnected(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncOKBody}}
	m := newTestMachine(t, http, &fakeMQTT{}, Options{})

	err := m.PublishTelemetry(protocol.TelemetryMessage{Data: []protocol.Field{{Key: "x", Value: 1}}})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishTelemetry() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishEncodingErrorSurfaces(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	err := m.PublishTelemetry(protocol.TelemetryMessage{
		Data: []protocol.Field{{Key: "bad", Value: func() {}}},
	})
	if !errors.Is(err, protocol.ErrEncoding) {
		t.Fatalf("PublishTelemetry() error = %v, want ErrEncoding", err)
	}
	if len(mqtt.published()) != 0 {
		t.Error("nothing must reach the transport on encode failure")
	}
	if m.State() != StateConnected {
		t.Error("encode failure must not change session state")
	}
}

// =============================================================================
// Inbound Dispatch Tests
// =============================================================================

func TestInboundCommandAckRoundTrip(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	m.OnCommand(func(cmd protocol.CommandMessage) {
		if !cmd.AckRequired {
			return
		}
		if err := m.PublishAck(protocol.AckMessage{ID: cmd.ID, Status: protocol.AckSuccess}); err != nil {
			t.Errorf("PublishAck() error = %v", err)
		}
	})

	err := mqtt.deliver(t, "iot/dev1/2c", `{"id":"cmd-9","type":"set-led","payload":{"state":"on"},"ackRequired":true}`)
	if err != nil {
		t.Fatalf("deliver error = %v", err)
	}

	pubs := mqtt.published()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want 1 ack", len(pubs))
	}
	if pubs[0].topic != "iot/dev1/2d/ack" {
		t.Errorf("ack topic = %q, want derived iot/dev1/2d/ack", pubs[0].topic)
	}
	want := `{"id":"cmd-9","status":"success"}`
	if pubs[0].payload != want {
		t.Errorf("ack payload = %s, want %s (no message field)", pubs[0].payload, want)
	}
}

func TestInboundOtaDispatch(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	var got protocol.OtaMessage
	m.OnOta(func(ota protocol.OtaMessage) { got = ota })

	err := mqtt.deliver(t, "iot/dev1/2c", `{"id":"ota-3","type":"ota","payload":{"url":"https://fw.example/v2.bin"},"ackRequired":false}`)
	if err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if got.ID != "ota-3" {
		t.Errorf("OTA handler got %+v, want ota-3", got)
	}
}

func TestMalformedInboundKeepsSessionUp(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	var reported error
	m.SetOnDecodeError(func(err error, _ string, _ []byte) { reported = err })

	if err := mqtt.deliver(t, "iot/dev1/2c", `not json at all`); err == nil {
		t.Error("handler should report the decode error to the transport")
	}

	if !errors.Is(reported, protocol.ErrMalformedMessage) {
		t.Errorf("diagnostic callback error = %v, want ErrMalformedMessage", reported)
	}
	if m.State() != StateConnected {
		t.Errorf("State() = %v, one bad message must not disconnect", m.State())
	}
}

// =============================================================================
// Disconnect / Expiry Tests
// =============================================================================

func TestDisconnect(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
	if m.Current() != nil {
		t.Error("Current() after disconnect should be nil (session discarded)")
	}
	if mqtt.disconnects != 1 {
		t.Errorf("transport disconnects = %d, want 1", mqtt.disconnects)
	}

	// Idempotent.
	if err := m.Disconnect(); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
}

func TestConnectionLost(t *testing.T) {
	m, mqtt := connectedMachine(t, Options{})

	mqtt.onLost(errors.New("broker went away"))

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after connection loss", m.State())
	}
	if !errors.Is(m.LastError(), ErrConnectionLost) {
		t.Errorf("LastError() = %v, want ErrConnectionLost", m.LastError())
	}
}

const syncExpiringBody = `{"d":{
	"protocolVersion":2,
	"broker":{"host":"mqtt.example","port":8883,"authMode":"token","authMaterial":"tok-abc"},
	"topics":{"pub":"iot/dev1/2d","sub":"iot/dev1/2c"},
	"expiry":"2026-01-01T00:00:00Z"
},"status":200}`

func TestPublishAfterExpiry(t *testing.T) {
	http := &routedHTTP{discoStatus: 200, discoBody: discoOKBody, syncStatus: 200, syncBodies: []string{syncExpiringBody}}
	mqtt := &fakeMQTT{}
	m := newTestMachine(t, http, mqtt, Options{})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC) }

	err := m.PublishTelemetry(protocol.TelemetryMessage{Data: []protocol.Field{{Key: "x", Value: 1}}})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("PublishTelemetry() error = %v, want ErrSessionExpired", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected after expiry", m.State())
	}
	if len(mqtt.published()) != 0 {
		t.Error("expired session must not publish")
	}
}

func TestPublishAfterExpiryAutoReconnect(t *testing.T) {
	http := &routedHTTP{
		discoStatus: 200, discoBody: discoOKBody,
		syncStatus: 200, syncBodies: []string{syncExpiringBody, syncOKBody},
	}
	mqtt := &fakeMQTT{}
	m := newTestMachine(t, http, mqtt, Options{AutoReconnect: true})
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC) }

	err := m.PublishTelemetry(protocol.TelemetryMessage{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		Data:      []protocol.Field{{Key: "x", Value: 1}},
	})
	if err != nil {
		t.Fatalf("PublishTelemetry() error = %v, want auto-reconnect then publish", err)
	}

	if m.State() != StateConnected {
		t.Errorf("State() = %v, want connected after auto-reconnect", m.State())
	}
	if http.syncCalls != 2 {
		t.Errorf("sync calls = %d, want 2 (full re-negotiation)", http.syncCalls)
	}
	if len(mqtt.published()) != 1 {
		t.Errorf("publishes = %d, want 1 after reconnect", len(mqtt.published()))
	}
}
