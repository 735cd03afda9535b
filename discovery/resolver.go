package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/iotlink/device-core/identity"
	"github.com/iotlink/device-core/transport"
)

// DefaultBaseURL is the platform's public discovery service. Override via
// NewResolverWithBaseURL for private or staging deployments.
const DefaultBaseURL = "https://discovery.iotlink.io"

// discoveryPathFormat is the well-known discovery path, parameterized by
// CPID, environment and cloud platform.
const discoveryPathFormat = "%s/api/v1/dsdk/cpId/%s/env/%s?pf=%s"

// Result is a successful discovery outcome: the base URL of the
// environment-specific sync service. Consumed immediately by the sync
// negotiator; not persisted by this package.
type Result struct {
	// BaseURL is the sync service base URL, without trailing slash.
	BaseURL string

	// Platform echoes the cloud platform the backend resolved for this
	// account, when present in the response.
	Platform string
}

// wire shapes for the discovery response envelope.
type wireDiscoveryBody struct {
	EC       *int   `json:"ec"`
	BaseURL  string `json:"bu"`
	Platform string `json:"pf"`
	ErrorMsg string `json:"errorMsg"`
}

type wireDiscoveryResponse struct {
	D       *wireDiscoveryBody `json:"d"`
	Status  int                `json:"status"`
	Message string             `json:"message"`
}

// Resolver queries the discovery service. Stateless and safe for
// concurrent use.
type Resolver struct {
	http    transport.HTTP
	baseURL string
}

// NewResolver creates a resolver against the platform's public discovery
// service.
func NewResolver(httpTransport transport.HTTP) *Resolver {
	return NewResolverWithBaseURL(httpTransport, DefaultBaseURL)
}

// NewResolverWithBaseURL creates a resolver against a specific discovery
// endpoint.
func NewResolverWithBaseURL(httpTransport transport.HTTP, baseURL string) *Resolver {
	return &Resolver{http: httpTransport, baseURL: baseURL}
}

// URL returns the fully parameterized discovery URL for an identity.
func (r *Resolver) URL(id identity.Identity) string {
	return fmt.Sprintf(discoveryPathFormat,
		r.baseURL,
		url.PathEscape(id.CPID),
		url.PathEscape(id.Env),
		url.QueryEscape(string(id.Platform)),
	)
}

// Resolve issues the single discovery GET and returns the sync base URL.
//
// Parameters:
//   - ctx: bounds the one HTTP call in flight
//   - id: the validated device identity
//
// Returns:
//   - Result: the sync service base URL
//   - error: ErrTransient or ErrPermanent (wrapped with detail)
func (r *Resolver) Resolve(ctx context.Context, id identity.Identity) (Result, error) {
	status, body, err := r.http.Do(ctx, http.MethodGet, r.URL(id), nil, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	if !transport.IsSuccessStatus(status) {
		category := ErrPermanent
		if transport.IsTransientStatus(status) {
			category = ErrTransient
		}
		return Result{}, fmt.Errorf("%w: discovery returned HTTP %d", category, status)
	}

	var resp wireDiscoveryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: parsing discovery response: %w", ErrPermanent, err)
	}

	if resp.D == nil {
		return Result{}, fmt.Errorf("%w: discovery response has no body", ErrPermanent)
	}
	if resp.D.EC != nil && *resp.D.EC != 0 {
		detail := resp.D.ErrorMsg
		if detail == "" {
			detail = resp.Message
		}
		return Result{}, fmt.Errorf("%w: backend error ec=%d %s", ErrPermanent, *resp.D.EC, detail)
	}
	if resp.D.BaseURL == "" {
		return Result{}, fmt.Errorf("%w: discovery response is missing base URL", ErrPermanent)
	}

	return Result{BaseURL: resp.D.BaseURL, Platform: resp.D.Platform}, nil
}
