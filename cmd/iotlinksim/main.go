// IoTLink device simulator
//
// This binary exercises the full device connectivity chain against a real
// IoTLink backend: discovery, identity negotiation, MQTT session, a
// periodic telemetry loop, and command acknowledgement. It is the
// reference wiring for embedding the device core in firmware.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotlink/device-core/discovery"
	"github.com/iotlink/device-core/internal/infrastructure/config"
	"github.com/iotlink/device-core/internal/infrastructure/journal"
	"github.com/iotlink/device-core/internal/infrastructure/logging"
	"github.com/iotlink/device-core/internal/infrastructure/mqtt"
	"github.com/iotlink/device-core/negotiate"
	"github.com/iotlink/device-core/protocol"
	"github.com/iotlink/device-core/session"
	"github.com/iotlink/device-core/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// telemetryInterval is the simulated sensor sampling period.
const telemetryInterval = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting IoTLink device simulator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the device identity
	id, err := cfg.Identity()
	if err != nil {
		return fmt.Errorf("building identity: %w", err)
	}
	log.Info("device identity ready", "identity", id.String())

	// Wire the transports
	httpTransport := transport.NewNetHTTP(nil)

	resolver := discovery.NewResolver(httpTransport)
	if cfg.Discovery.BaseURL != "" {
		resolver = discovery.NewResolverWithBaseURL(httpTransport, cfg.Discovery.BaseURL)
	}
	negotiator := negotiate.NewNegotiator(httpTransport)

	mqttClient := mqtt.NewClient(cfg.MQTT)
	mqttClient.SetLogger(log.With("component", "mqtt"))

	// Open the telemetry journal (optional)
	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Journal, id)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := jrnl.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		jrnl.SetOnError(func(err error) {
			log.Error("journal write error", "error", err)
		})
		log.Info("journal connected",
			"url", cfg.Journal.URL,
			"bucket", cfg.Journal.Bucket,
			"run", jrnl.RunID(),
		)
	} else {
		log.Info("journal disabled")
	}

	// Build the session machine
	machine := session.New(id, resolver, negotiator, mqttClient, session.Options{
		AutoReconnect:  cfg.Session.AutoReconnect,
		CacheDiscovery: cfg.Discovery.Cache,
	})
	machine.SetLogger(log.With("component", "session"))

	machine.OnCommand(func(cmd protocol.CommandMessage) {
		log.Info("command received",
			"id", cmd.ID,
			"type", cmd.Type,
			"ack_required", cmd.AckRequired,
		)
		if !cmd.AckRequired {
			return
		}
		ack := protocol.AckMessage{ID: cmd.ID, Status: protocol.AckSuccess}
		if ackErr := machine.PublishAck(ack); ackErr != nil {
			log.Error("publishing ack", "id", cmd.ID, "error", ackErr)
			return
		}
		if jrnl != nil {
			jrnl.RecordAck(ack)
		}
	})

	machine.OnOta(func(ota protocol.OtaMessage) {
		// The simulator acknowledges OTA requests without applying them.
		log.Info("ota request received", "id", ota.ID)
		if !ota.AckRequired {
			return
		}
		ack := protocol.AckMessage{
			ID:      ota.ID,
			Status:  protocol.AckFailure,
			Message: "simulator does not apply firmware",
		}
		if ackErr := machine.PublishAck(ack); ackErr != nil {
			log.Error("publishing ota ack", "id", ota.ID, "error", ackErr)
		}
	})

	machine.SetOnDecodeError(func(err error, topic string, _ []byte) {
		log.Warn("undecodable inbound message", "topic", topic, "error", err)
	})

	// Connect: discovery, negotiation, broker
	if err := machine.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		log.Info("disconnecting")
		if discErr := machine.Disconnect(); discErr != nil {
			log.Error("error disconnecting", "error", discErr)
		}
	}()

	sess := machine.Current()
	log.Info("session established",
		"protocol_version", sess.ProtocolVersion,
		"broker", fmt.Sprintf("%s:%d", sess.BrokerHost, sess.BrokerPort),
		"pub_topic", sess.Topics.Pub,
	)
	if jrnl != nil {
		jrnl.RecordSessionEvent("connected", "")
	}

	// Telemetry loop
	log.Info("entering telemetry loop", "interval", telemetryInterval)
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			if jrnl != nil {
				jrnl.RecordSessionEvent("disconnected", "shutdown")
			}
			log.Info("IoTLink device simulator stopped")
			return nil

		case <-ticker.C:
			msg := sampleTelemetry()
			if pubErr := machine.PublishTelemetry(msg); pubErr != nil {
				log.Error("publishing telemetry", "error", pubErr)
				if machine.State() != session.StateConnected {
					return fmt.Errorf("session lost: %w", pubErr)
				}
				continue
			}
			if jrnl != nil {
				jrnl.RecordTelemetry(msg)
			}
		}
	}
}

// sampleTelemetry produces one simulated sensor reading.
func sampleTelemetry() protocol.TelemetryMessage {
	return protocol.TelemetryMessage{
		Data: []protocol.Field{
			{Key: "temperature", Value: 18.0 + rand.Float64()*8.0},
			{Key: "humidity", Value: 35.0 + rand.Float64()*30.0},
			{Key: "online", Value: true},
		},
	}
}

// getConfigPath returns the configuration file path.
// Uses IOTLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IOTLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
