package processor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/paysettle/pkg/logctx"
)

func noopSleep(time.Duration) {}

func newTestBase(policy RetryPolicy) *BaseClient {
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test", policy, WithSleepFunc(noopSleep))
}

func TestDoRetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestBase(RetryPolicy{MaxRetries: 3, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(`{"a":1}`))
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoReturnsClientErrorsWithoutRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestBase(DefaultRetryPolicy())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestBase(RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := c.Do(req)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
}

func TestDoStopsRetryingPastDeadline(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var slept []time.Duration
	c := NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test",
		RetryPolicy{MaxRetries: 3, MinWait: time.Minute, MaxWait: time.Minute},
		WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	_, err := c.Do(req)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Empty(t, slept)
}

func TestDoPropagatesTraceID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-Id")
	}))
	defer server.Close()

	ctx := logctx.WithTraceID(context.Background(), "trace-123")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := newTestBase(DefaultRetryPolicy()).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", got)
}

func TestComputeBackoffHonoursRetryAfter(t *testing.T) {
	c := newTestBase(RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 3 * time.Second})
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"10"}}}
	assert.Equal(t, 3*time.Second, c.computeBackoff(0, resp))
	assert.Equal(t, time.Millisecond, c.computeBackoff(0, nil))
}

func TestRegistry(t *testing.T) {
	ps := NewPaystack(newTestBase(DefaultRetryPolicy()), PaystackConfig{SecretKey: "sk"})
	r := NewRegistry("paystack", ps)

	got, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, ps, got)

	_, err = r.Get("flutterwave")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
