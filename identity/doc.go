// Package identity defines the immutable device identity shared by every
// other component of the device core.
//
// An Identity names one device on the IoTLink platform:
//   - DUID: the device unique identifier (also used in topic addressing)
//   - CPID: the connectivity-platform identifier grouping devices under
//     an account
//   - Env: the account environment (e.g. "poc", "prod")
//   - Platform: the backing cloud platform ("aws" or "az")
//
// Identities are constructed once from configuration via New, validated at
// construction, and never mutated afterwards. They are plain values with
// structural equality and can be shared freely across goroutines without
// locking.
package identity
