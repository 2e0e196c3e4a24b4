// Package backend talks to the remote order-management API that owns vouchers,
// delivery quotes and orders when the service runs with BACKEND_MODE=remote.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pesan-antar/internal/resilience"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// Options configures New.
type Options struct {
	BaseURL      string
	Target       string
	Timeout      time.Duration
	MaxAttempts  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       zerolog.Logger
	Transport    http.RoundTripper
}

// Client issues JSON requests against the backend through a retrying, circuit-broken
// HTTP client.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

// New builds a Client with an otelhttp-instrumented transport.
func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := resilience.NewBreaker(5, opts.FailureRatio, opts.OpenFor).
		WithTarget(opts.Target).
		WithLogger(opts.Logger)
	return &Client{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: opts.MaxAttempts + 1,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

// Do sends in (when non-nil) as JSON and decodes a 2xx response into out (when non-nil).
// Non-2xx responses are returned as *APIError carrying the backend's message.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("backend client not configured")
	}
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: ErrorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(Unwrap(raw), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Unwrap returns the value of a top-level "data" envelope when present.
func Unwrap(raw []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 {
			return env.Data
		}
	}
	return trimmed
}

// ErrorMessage extracts a human readable message from a backend error body. It
// understands {"message"}, {"error":"..."} and {"error":{"message"}} shapes.
func ErrorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	if len(body.Error) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(body.Error, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
