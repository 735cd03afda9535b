package negotiate

import (
	"time"

	"github.com/iotlink/device-core/protocol"
)

// AuthMode is the broker authentication mode issued by the backend.
type AuthMode string

// Recognised authentication modes.
const (
	// AuthToken authenticates with a backend-issued token as the broker
	// password.
	AuthToken AuthMode = "token"

	// AuthX509 authenticates with a device certificate; AuthMaterial is a
	// certificate reference resolved by the transport.
	AuthX509 AuthMode = "x509"

	// AuthSymmetricKey authenticates with a shared-key reference.
	AuthSymmetricKey AuthMode = "symmetricKey"
)

// Meta carries device metadata echoed by the sync service.
type Meta struct {
	// IsEdge reports whether the backend considers this an edge device.
	IsEdge bool

	// IsGateway reports whether this device fronts child devices.
	IsGateway bool
}

// Session holds the credentials and addressing for one broker connection
// attempt, as issued by the sync service.
//
// A Session is immutable once returned: the session state machine discards
// it wholesale on disconnect, protocol-version mismatch or expiry and
// replaces it with a fresh negotiation. It is never shared across state
// machine instances.
type Session struct {
	// ProtocolVersion selects the wire codec for this session.
	ProtocolVersion int

	// BrokerHost and BrokerPort address the MQTT broker.
	BrokerHost string
	BrokerPort int

	// ClientID is the broker client identifier for this device.
	ClientID string

	// Username is the broker username, when the auth mode uses one.
	Username string

	// AuthMode is how the transport should authenticate.
	AuthMode AuthMode

	// AuthMaterial is the opaque credential issued by the backend. Passed
	// through to the transport; never interpreted or persisted here.
	AuthMaterial string

	// Topics is the topic set issued for this session.
	Topics protocol.TopicSet

	// Expiry, when set, is the instant after which the credentials are no
	// longer valid and a fresh negotiation is required.
	Expiry *time.Time

	// Meta is informational device metadata from the sync response.
	Meta Meta
}

// Expired reports whether the session credentials have passed their
// expiry. Sessions without an expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	return s.Expiry != nil && now.After(*s.Expiry)
}
