package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultRequestTimeout bounds a single round-trip when the caller's
// context carries no deadline of its own.
const defaultRequestTimeout = 30 * time.Second

// maxResponseBytes caps response bodies read into memory. Discovery and
// sync responses are small JSON documents; anything near this limit is a
// misbehaving endpoint.
const maxResponseBytes = 1 << 20 // 1MB

// NetHTTP is the default HTTP implementation backed by net/http.
//
// Thread Safety:
//   - Safe for concurrent use; the underlying http.Client is shared.
type NetHTTP struct {
	client *http.Client
}

// NewNetHTTP creates a NetHTTP transport. A nil client uses a dedicated
// http.Client with the default request timeout.
func NewNetHTTP(client *http.Client) *NetHTTP {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &NetHTTP{client: client}
}

// Do implements HTTP. Transport-level failures (DNS, connect, reset,
// context cancellation) surface as err; any received response surfaces as
// (status, body, nil) regardless of status code.
func (n *NetHTTP) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
