package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/iotlink/device-core/identity"
	"github.com/iotlink/device-core/internal/infrastructure/config"
)

// Default timeouts for journal operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// millisecondsPerSecond converts seconds to milliseconds for the InfluxDB API.
	millisecondsPerSecond = 1000
)

// Journal wraps the InfluxDB v2 client for device traffic mirroring.
//
// Every point carries the device unique ID and a run ID tag, so data from
// repeated test runs of the same device can be told apart.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Write operations are non-blocking and batched.
type Journal struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.JournalConfig

	duid  string
	runID string

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)
}

// Open establishes a connection to the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the client with token authentication
//  2. Verifies connectivity with a ping
//  3. Configures the non-blocking write API with batching
//  4. Assigns a fresh run ID for this process
//
// Parameters:
//   - cfg: Journal configuration from config.yaml
//   - id: Device identity; the unique ID tags every point
//
// Returns:
//   - *Journal: Connected journal ready for use
//   - error: If the journal is disabled or connection fails
func Open(cfg config.JournalConfig, id identity.Identity) (*Journal, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	// Validate and convert config values (ensure non-negative for uint conversion)
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100 // Default
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10 // Default
	}

	// Create client with token auth
	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond), // Convert to milliseconds
	)

	// Verify connectivity
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	// Create non-blocking write API
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	j := &Journal{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		duid:      id.DUID,
		runID:     uuid.NewString(),
		connected: true,
	}

	// Set up error callback for async write failures
	errorsCh := writeAPI.Errors()
	go j.handleWriteErrors(errorsCh)

	return j, nil
}

// handleWriteErrors processes async write errors from the WriteAPI.
func (j *Journal) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		j.mu.RLock()
		callback := j.onError
		j.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close gracefully shuts down the journal.
//
// It performs:
//  1. Flushes any pending writes
//  2. Closes the underlying client
//
// Returns:
//   - error: nil (InfluxDB client Close doesn't return errors)
func (j *Journal) Close() error {
	if j.client == nil {
		return nil
	}

	j.mu.Lock()
	j.connected = false
	j.mu.Unlock()

	// Flush pending writes
	j.writeAPI.Flush()

	// Close the client
	j.client.Close()

	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (j *Journal) HealthCheck(ctx context.Context) error {
	if !j.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := j.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("journal health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("journal health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the current connection state.
func (j *Journal) IsConnected() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.connected
}

// RunID returns the run identifier tagging every point from this process.
func (j *Journal) RunID() string {
	return j.runID
}

// SetOnError sets a callback to be invoked when async write errors occur.
//
// Since writes are non-blocking, errors are delivered asynchronously.
// Use this callback to log or handle write failures.
func (j *Journal) SetOnError(callback func(err error)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.onError = callback
}

// Flush forces all pending writes to be sent to InfluxDB.
//
// This blocks until all buffered points are written.
// Safe to call after Close() (no-op).
func (j *Journal) Flush() {
	if j.writeAPI == nil {
		return
	}

	j.mu.RLock()
	connected := j.connected
	j.mu.RUnlock()

	if !connected {
		return
	}

	j.writeAPI.Flush()
}
