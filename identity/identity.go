package identity

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned when identity validation fails.
// Check with errors.Is(); the wrapped message names the offending field.
var ErrInvalidConfiguration = errors.New("identity: invalid configuration")

// Platform identifies the cloud platform backing the IoTLink account.
type Platform string

// Recognised cloud platforms.
const (
	// PlatformAWS is AWS IoT Core.
	PlatformAWS Platform = "aws"

	// PlatformAzure is Azure IoT Hub.
	PlatformAzure Platform = "az"
)

// minFieldLength is the minimum length for DUID, CPID and Env values.
// Single-character values are always typos or placeholder data.
const minFieldLength = 2

// Identity is the immutable description of a single device.
//
// All four fields are required. Construct via New, which validates;
// a zero Identity is not valid.
type Identity struct {
	// DUID is the device unique identifier.
	DUID string

	// CPID is the connectivity-platform (account) identifier.
	CPID string

	// Env is the account environment, e.g. "poc" or "prod".
	Env string

	// Platform is the cloud platform hosting the broker.
	Platform Platform
}

// New constructs a validated Identity.
//
// Validation rules:
//   - duid, cpid and env must be at least 2 characters
//   - platform must be one of the recognised Platform values
//
// Returns:
//   - Identity: the validated identity value
//   - error: ErrInvalidConfiguration (wrapped) naming the bad field
func New(duid, cpid, env string, platform Platform) (Identity, error) {
	id := Identity{DUID: duid, CPID: cpid, Env: env, Platform: platform}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks the identity fields against the construction rules.
// New calls this; it is exported so a config layer can re-check values
// it assembled by hand.
func (id Identity) Validate() error {
	if len(id.DUID) < minFieldLength {
		return fmt.Errorf("%w: device unique ID (DUID) is missing", ErrInvalidConfiguration)
	}
	if len(id.CPID) < minFieldLength {
		return fmt.Errorf("%w: CPID value is missing", ErrInvalidConfiguration)
	}
	if len(id.Env) < minFieldLength {
		return fmt.Errorf("%w: environment value is missing", ErrInvalidConfiguration)
	}
	switch id.Platform {
	case PlatformAWS, PlatformAzure:
	default:
		return fmt.Errorf("%w: platform must be %q or %q", ErrInvalidConfiguration, PlatformAWS, PlatformAzure)
	}
	return nil
}

// String returns a compact human-readable form for logs.
// The CPID is included in full; it is an account identifier, not a secret.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s@%s(%s)", id.CPID, id.DUID, id.Env, id.Platform)
}
