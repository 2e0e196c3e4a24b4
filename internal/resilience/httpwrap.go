package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxRetryAfter caps how long a backend's Retry-After may stall a retry.
const maxRetryAfter = 5 * time.Second

// HTTPClient wraps an http.Client with per-attempt timeouts, retries with jittered
// exponential backoff and a circuit breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// RetryUnsafe allows retries of POST and PATCH requests.
	RetryUnsafe bool
}

// StatusError reports a 5xx or 429 response that exhausted the retry budget.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// Do executes req. The body is buffered so attempts can replay it. 5xx and 429
// responses and transport errors are retried for idempotent methods; a 429 or 503
// Retry-After hint replaces the computed backoff. Requests abandoned by the caller are
// not held against the breaker. The per-attempt timeout stays in force until the
// returned response body is closed.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	attempts := cl.MaxAttempts
	if attempts <= 0 || (!cl.RetryUnsafe && !idempotent(req.Method)) {
		attempts = 1
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, withBody(ctx, req, body))
		if err != nil && ctx.Err() != nil {
			// The caller gave up; the backend outcome is unknown.
			breaker.Report(ctx, true)
			return nil, ctx.Err()
		}
		if err == nil && !retryableStatus(resp.StatusCode) {
			breaker.Report(ctx, true)
			return resp, nil
		}

		wait := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if err != nil {
			lastErr = err
			breaker.Report(ctx, false)
		} else {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			if hint, ok := retryAfter(resp); ok {
				wait = hint
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			// 429 is backpressure, not a backend fault.
			breaker.Report(ctx, resp.StatusCode == http.StatusTooManyRequests)
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	callCtx, cancel := context.WithCancel(ctx)
	if timeout > 0 {
		cancel()
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func idempotent(method string) bool {
	return method != http.MethodPost && method != http.MethodPatch
}

func retryableStatus(code int) bool {
	return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter), true
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func withBody(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	return clone
}
