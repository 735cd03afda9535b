package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotlink/device-core/internal/infrastructure/config"
	"github.com/iotlink/device-core/negotiate"
	"github.com/iotlink/device-core/transport"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the session does not carry one.
	defaultKeepAlive = 60 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from the negotiated session
// and the transport configuration.
//
// This configures:
//   - Broker URL (ssl:// by default, tcp:// when TLS is disabled)
//   - Client ID assigned by the backend
//   - Credentials per the negotiated auth mode
//   - Auto-reconnect with exponential backoff
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig, opts transport.ConnectOptions) (*pahomqtt.ClientOptions, error) {
	pahoOpts := pahomqtt.NewClientOptions()

	// Broker URL
	scheme := "ssl"
	if !cfg.TLS.Enabled {
		scheme = "tcp"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, opts.BrokerHost, opts.BrokerPort)
	pahoOpts.AddBroker(brokerURL)

	// Client identification
	pahoOpts.SetClientID(opts.ClientID)

	// Credentials per auth mode
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}
	switch negotiate.AuthMode(opts.AuthMode) {
	case negotiate.AuthToken, negotiate.AuthSymmetricKey:
		username := opts.Username
		if username == "" {
			username = opts.ClientID
		}
		pahoOpts.SetUsername(username)
		pahoOpts.SetPassword(opts.AuthMaterial)
	case negotiate.AuthX509:
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", opts.AuthMode)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	pahoOpts.SetCleanSession(true)

	// Auto-reconnect with exponential backoff
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	pahoOpts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	// Connection timeout
	pahoOpts.SetConnectTimeout(defaultConnectTimeout)

	// Keepalive - broker sends PINGs to detect dead connections
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	pahoOpts.SetKeepAlive(keepAlive)

	if cfg.TLS.Enabled {
		pahoOpts.SetTLSConfig(tlsConfig)
	}

	return pahoOpts, nil
}
