package discovery

import "errors"

// Failure categories for discovery.
//
// Check with errors.Is(); the wrapped message carries the HTTP status or
// backend error detail.
var (
	// ErrTransient covers network failures and 5xx responses. The caller
	// may retry with backoff; the resolver itself never retries.
	ErrTransient = errors.New("discovery: transient failure")

	// ErrPermanent covers 4xx responses, unparseable bodies and backend
	// error codes. Retrying without fixing configuration will not succeed.
	ErrPermanent = errors.New("discovery: permanent failure")
)
