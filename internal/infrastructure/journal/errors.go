package journal

import "errors"

// Sentinel errors for journal operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, journal.ErrDisabled) {
//	    // Run without a journal
//	}
var (
	// ErrNotConnected indicates the journal is not connected to InfluxDB.
	ErrNotConnected = errors.New("journal: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("journal: connection failed")

	// ErrDisabled indicates the journal is disabled in config.
	ErrDisabled = errors.New("journal: disabled in configuration")
)
