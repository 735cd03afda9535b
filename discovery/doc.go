// Package discovery resolves which environment-specific sync endpoint a
// device should use, by querying the platform's well-known discovery
// service.
//
// Discovery is the first step of a connection attempt: one HTTP GET
// parameterized by the account's CPID, environment and cloud platform,
// returning the base URL of the sync service for that environment.
//
// The resolver holds no cache. Discovery results may legitimately change
// as the backend reconfigures, so caching across reconnects is a caller
// policy (the session machine exposes it as an explicit option).
//
// Failures are categorized so callers can choose a retry policy:
// ErrTransient for network errors and 5xx responses (retry with backoff is
// reasonable), ErrPermanent for 4xx responses, malformed bodies and backend
// error codes (the configuration is wrong; blind retry will not help).
package discovery
