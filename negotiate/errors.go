package negotiate

import "errors"

// Failure categories for sync negotiation.
//
// Check with errors.Is(); the wrapped message carries the HTTP status or
// backend error code detail.
var (
	// ErrTransient covers network failures and 5xx responses. The caller
	// may retry with backoff; the negotiator itself never retries.
	ErrTransient = errors.New("negotiate: transient failure")

	// ErrPermanent covers 4xx responses, unparseable bodies and backend
	// error codes other than "device not found".
	ErrPermanent = errors.New("negotiate: permanent failure")

	// ErrDeviceNotRegistered means the backend does not know this
	// device/CPID pair. Terminal: retrying without registering the device
	// will never succeed.
	ErrDeviceNotRegistered = errors.New("negotiate: device not registered")
)

// Backend error codes returned in the sync response envelope.
const (
	ecOK                 = 0
	ecDeviceNotFound     = 1
	ecDeviceInactive     = 2
	ecDeviceUnassociated = 3
	ecDeviceNotAcquired  = 4
	ecDeviceDisabled     = 5
	ecCompanyNotFound    = 6
	ecSubscriptionEnded  = 7
	ecConnectionBlocked  = 8
	ecBadBootstrapCert   = 9
	ecBadOperationalCert = 10
)

// ecMessages maps backend error codes to human-readable detail for error
// text. Unknown codes fall back to the bare number.
var ecMessages = map[int]string{
	ecOK:                 "no error",
	ecDeviceNotFound:     "device not found; device is not whitelisted to platform",
	ecDeviceInactive:     "device is not active",
	ecDeviceUnassociated: "device has no template associated with it",
	ecDeviceNotAcquired:  "device is created but still in release state",
	ecDeviceDisabled:     "device is disabled from the broker",
	ecCompanyNotFound:    "company not found; SID is not valid",
	ecSubscriptionEnded:  "subscription is expired",
	ecConnectionBlocked:  "connection not allowed",
	ecBadBootstrapCert:   "invalid bootstrap certificate",
	ecBadOperationalCert: "invalid operational certificate",
}
