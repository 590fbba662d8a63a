package license

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/shared/testutil"
)

func testLogger(t *testing.T) *slog.Logger {
	logger, _ := testutil.NewTestLogger(t)
	return logger
}

func testPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  100 * time.Millisecond,
		MaxJitter:  time.Second,
	}
}

// recordingSleep captures requested delays without actually waiting.
func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetryTransport_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	rt := NewRetryTransport(srv.Client(), testPolicy(3), testLogger(t))
	var delays []time.Duration
	rt.sleep = recordingSleep(&delays)

	resp, err := rt.Do(context.Background(), RequestSpec{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	// Two sleeps, each at least base*2^k and inside the jitter bound.
	require.Len(t, delays, 2)
	assert.GreaterOrEqual(t, delays[0], 100*time.Millisecond)
	assert.Less(t, delays[0], 100*time.Millisecond+time.Second)
	assert.GreaterOrEqual(t, delays[1], 200*time.Millisecond)
	assert.Less(t, delays[1], 200*time.Millisecond+time.Second)
}

func TestRetryTransport_ExhaustsBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rt := NewRetryTransport(srv.Client(), testPolicy(2), testLogger(t))
	var delays []time.Duration
	rt.sleep = recordingSleep(&delays)

	resp, err := rt.Do(context.Background(), RequestSpec{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	// The last response is surfaced even when it is an error status.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Len(t, delays, 2)
}

func TestRetryTransport_DoesNotRetryPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rt := NewRetryTransport(srv.Client(), testPolicy(3), testLogger(t))

	resp, err := rt.Do(context.Background(), RequestSpec{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRetryTransport_ReplaysBodyEveryAttempt(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := NewRetryTransport(srv.Client(), testPolicy(3), testLogger(t))
	var delays []time.Duration
	rt.sleep = recordingSleep(&delays)

	spec := RequestSpec{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"userId":"u-1"}`),
	}
	resp, err := rt.Do(context.Background(), spec)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, bodies, 3)
	for _, b := range bodies {
		assert.Equal(t, `{"userId":"u-1"}`, b)
	}
}

func TestRetryTransport_CancelledBetweenAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rt := NewRetryTransport(srv.Client(), testPolicy(5), testLogger(t))
	rt.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	resp, err := rt.Do(ctx, RequestSpec{Method: http.MethodGet, URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRetryTransport_RetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close() // every dial now fails

	rt := NewRetryTransport(http.DefaultClient, testPolicy(1), testLogger(t))
	var delays []time.Duration
	rt.sleep = recordingSleep(&delays)

	resp, err := rt.Do(context.Background(), RequestSpec{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Len(t, delays, 1)
}

func TestRequestSpec_BuildIndependentRequests(t *testing.T) {
	spec := RequestSpec{
		Method: http.MethodPost,
		URL:    "http://example.com/licenses/validate",
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"userId":"u-1"}`),
	}

	first, err := spec.Build(context.Background())
	require.NoError(t, err)
	second, err := spec.Build(context.Background())
	require.NoError(t, err)

	b1, _ := io.ReadAll(first.Body)
	b2, _ := io.ReadAll(second.Body)
	assert.Equal(t, string(b1), string(b2))
	assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, retryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 204, 400, 401, 403, 404, 409, 422} {
		assert.False(t, retryableStatus(code), "status %d", code)
	}
}

func TestSleepWithContext(t *testing.T) {
	err := sleepWithContext(context.Background(), time.Millisecond)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sleepWithContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryTransport_BuildErrorIsFatal(t *testing.T) {
	rt := NewRetryTransport(nil, testPolicy(3), testLogger(t))
	_, err := rt.Do(context.Background(), RequestSpec{Method: "GET", URL: "http://[::1]:namedport"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "build request"))
}
