package license

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"
)

// RetryPolicy bounds the retry budget of a RetryTransport. MaxRetries counts
// retries after the initial attempt, so the total attempt budget is
// MaxRetries+1.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
}

// DefaultRetryPolicy mirrors the server's default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxJitter:  time.Second,
	}
}

// RequestSpec is an immutable description of an HTTP request. The retry
// transport mints a fresh *http.Request from it for every attempt so the
// body can be replayed safely.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Build materializes the spec into a request bound to ctx. Each call
// returns an independent request with its own body reader.
func (s RequestSpec) Build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(s.Body) > 0 {
		body = bytes.NewReader(s.Body)
	}
	req, err := http.NewRequestWithContext(ctx, s.Method, s.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range s.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Doer is the subset of *http.Client the transport needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// RetryTransport executes RequestSpecs with bounded retries. Attempts run
// strictly sequentially; between attempts it sleeps an exponentially growing
// delay plus uniform jitter, and it aborts promptly when the context is
// cancelled.
type RetryTransport struct {
	client Doer
	policy RetryPolicy
	logger *slog.Logger

	// sleep is swappable in tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wires a transport around client. A nil client falls back
// to http.DefaultClient.
func NewRetryTransport(client Doer, policy RetryPolicy, logger *slog.Logger) *RetryTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryTransport{
		client: client,
		policy: policy,
		logger: logger,
		sleep:  sleepWithContext,
	}
}

// retryableStatus reports whether a response status signals a transient
// condition worth retrying. Client errors other than 429 are permanent.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do executes spec with up to policy.MaxRetries retries after the initial
// attempt. It returns the first non-retryable response, or the last response
// or error once the budget is exhausted. The returned response body has not
// been consumed; intermediate retryable responses are drained and closed.
func (t *RetryTransport) Do(ctx context.Context, spec RequestSpec) (*http.Response, error) {
	attempts := t.policy.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := t.backoff(attempt - 1)
			t.logger.DebugContext(ctx, "retrying request",
				slog.String("url", spec.URL),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay))
			if err := t.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := spec.Build(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) || attempt == attempts-1 {
			return resp, nil
		}

		// Drain so the underlying connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("server returned %s", resp.Status)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// backoff computes the delay before retry k (zero-based): base * 2^k plus
// uniform jitter in [0, MaxJitter).
func (t *RetryTransport) backoff(k int) time.Duration {
	delay := t.policy.BaseDelay << uint(k)
	if t.policy.MaxJitter > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(t.policy.MaxJitter)))
		if err == nil {
			delay += time.Duration(n.Int64())
		}
	}
	return delay
}

// sleepWithContext waits for d or until ctx is done, whichever comes first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
