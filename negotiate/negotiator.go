package negotiate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iotlink/device-core/discovery"
	"github.com/iotlink/device-core/identity"
	"github.com/iotlink/device-core/protocol"
	"github.com/iotlink/device-core/transport"
)

// syncPathFormat is the device identity path on the sync service.
const syncPathFormat = "%s/uid/%s"

// wire shapes for the sync response envelope.
type wireBroker struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ClientID     string `json:"clientId"`
	Username     string `json:"username"`
	AuthMode     string `json:"authMode"`
	AuthMaterial string `json:"authMaterial"`
}

type wireTopics struct {
	Pub string `json:"pub"`
	Sub string `json:"sub"`
	Ack string `json:"ack"`
}

type wireMeta struct {
	Edge    bool `json:"edge"`
	Gateway bool `json:"gtw"`
}

type wireSyncBody struct {
	EC              *int       `json:"ec"`
	ProtocolVersion int        `json:"protocolVersion"`
	Broker          wireBroker `json:"broker"`
	Topics          wireTopics `json:"topics"`
	Meta            wireMeta   `json:"meta"`
	Expiry          string     `json:"expiry"`
}

type wireSyncResponse struct {
	D       *wireSyncBody `json:"d"`
	Status  int           `json:"status"`
	Message string        `json:"message"`
}

// Negotiator queries the sync service resolved by discovery. Stateless and
// safe for concurrent use.
type Negotiator struct {
	http transport.HTTP
}

// NewNegotiator creates a negotiator using the given HTTP transport.
func NewNegotiator(httpTransport transport.HTTP) *Negotiator {
	return &Negotiator{http: httpTransport}
}

// URL returns the sync request URL for a discovery result and identity.
func (n *Negotiator) URL(result discovery.Result, id identity.Identity) string {
	return fmt.Sprintf(syncPathFormat,
		strings.TrimSuffix(result.BaseURL, "/"),
		url.PathEscape(id.DUID),
	)
}

// Negotiate issues the single sync GET and returns the session credentials
// for one connection attempt.
//
// Parameters:
//   - ctx: bounds the one HTTP call in flight
//   - result: the discovery outcome naming the sync base URL
//   - id: the validated device identity
//
// Returns:
//   - *Session: broker address, topics, auth material, protocol version
//   - error: ErrTransient, ErrPermanent or ErrDeviceNotRegistered
func (n *Negotiator) Negotiate(ctx context.Context, result discovery.Result, id identity.Identity) (*Session, error) {
	status, body, err := n.http.Do(ctx, http.MethodGet, n.URL(result, id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	if !transport.IsSuccessStatus(status) {
		category := ErrPermanent
		if transport.IsTransientStatus(status) {
			category = ErrTransient
		}
		return nil, fmt.Errorf("%w: sync returned HTTP %d", category, status)
	}

	var resp wireSyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing sync response: %w", ErrPermanent, err)
	}

	if resp.D == nil {
		return nil, fmt.Errorf("%w: sync response has no body", ErrPermanent)
	}
	if resp.D.EC != nil && *resp.D.EC != ecOK {
		return nil, ecError(*resp.D.EC)
	}

	return n.buildSession(resp.D, id)
}

// ecError maps a backend error code to the right failure category with
// human-readable detail.
func ecError(ec int) error {
	detail, known := ecMessages[ec]
	if !known {
		detail = "unrecognised error code"
	}
	if ec == ecDeviceNotFound {
		return fmt.Errorf("%w: ec=%d (%s)", ErrDeviceNotRegistered, ec, detail)
	}
	return fmt.Errorf("%w: backend error ec=%d (%s)", ErrPermanent, ec, detail)
}

// buildSession validates the sync body and assembles the Session value.
func (n *Negotiator) buildSession(body *wireSyncBody, id identity.Identity) (*Session, error) {
	if body.Broker.Host == "" || body.Broker.Port == 0 {
		return nil, fmt.Errorf("%w: sync response is missing broker address", ErrPermanent)
	}
	if body.Topics.Pub == "" || body.Topics.Sub == "" {
		return nil, fmt.Errorf("%w: sync response is missing topic set", ErrPermanent)
	}

	authMode := AuthMode(body.Broker.AuthMode)
	switch authMode {
	case AuthToken, AuthX509, AuthSymmetricKey:
	case "":
		authMode = AuthToken
	default:
		return nil, fmt.Errorf("%w: unrecognised auth mode %q", ErrPermanent, body.Broker.AuthMode)
	}

	clientID := body.Broker.ClientID
	if clientID == "" {
		// Platform convention when the backend omits an explicit id.
		clientID = id.CPID + "-" + id.DUID
	}

	var expiry *time.Time
	if body.Expiry != "" {
		ts, err := time.Parse(time.RFC3339, body.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: unparseable session expiry %q", ErrPermanent, body.Expiry)
		}
		expiry = &ts
	}

	return &Session{
		ProtocolVersion: body.ProtocolVersion,
		BrokerHost:      body.Broker.Host,
		BrokerPort:      body.Broker.Port,
		ClientID:        clientID,
		Username:        body.Broker.Username,
		AuthMode:        authMode,
		AuthMaterial:    body.Broker.AuthMaterial,
		Topics: protocol.TopicSet{
			Pub: body.Topics.Pub,
			Sub: body.Topics.Sub,
			Ack: body.Topics.Ack,
		},
		Expiry: expiry,
		Meta: Meta{
			IsEdge:    body.Meta.Edge,
			IsGateway: body.Meta.Gateway,
		},
	}, nil
}
