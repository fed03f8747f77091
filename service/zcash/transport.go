package zcash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport delivers one JSON-RPC request body to the node and returns the raw response body.
// Implementations own timeouts and connection handling; the Client never retries.
type Transport interface {
	Send(ctx context.Context, endpoint, authorization string, body []byte) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, endpoint, authorization string, body []byte) ([]byte, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, endpoint, authorization string, body []byte) ([]byte, error) {
	return f(ctx, endpoint, authorization, body)
}

// DefaultTimeout bounds a single request of an HTTPTransport built without an http.Client.
const DefaultTimeout = 30 * time.Second

// MaxResponseBytes caps the response body an HTTPTransport reads. A large
// wallet's z_listreceivedbyaddress stays well below it.
const MaxResponseBytes = 64 << 20

// HTTPStatusError is returned when the node answers with a status that carries no JSON-RPC body.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// HTTPTransport posts requests to the node over HTTP.
type HTTPTransport struct {
	httpClient *http.Client
	maxBody    int64
}

// NewHTTPTransport creates a transport. A nil httpClient gets DefaultTimeout.
func NewHTTPTransport(httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{httpClient: httpClient, maxBody: MaxResponseBytes}
}

// WithMaxResponseBytes returns a copy of t that rejects bodies larger than n bytes.
func (t *HTTPTransport) WithMaxResponseBytes(n int64) *HTTPTransport {
	return &HTTPTransport{httpClient: t.httpClient, maxBody: n}
}

// Send implements Transport.
//
// zcashd reports JSON-RPC errors with a non-2xx status and a JSON body, so any
// response with a body is handed back for envelope parsing. Authentication
// failures and empty bodies are transport errors.
func (t *HTTPTransport) Send(ctx context.Context, endpoint, authorization string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(respBody)) > t.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", t.maxBody)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	case len(respBody) == 0:
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	return respBody, nil
}
