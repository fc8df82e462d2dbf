package processor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fatflowers/paysettle/pkg/logctx"
)

type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    300 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// UpstreamError is returned when a processor call fails after retries or the
// breaker is open.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// BaseClient sends processor requests through a circuit breaker and retries
// 429 and 5xx answers with jittered exponential backoff.
type BaseClient struct {
	name        string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep between retries, mostly for tests.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

func NewBaseClient(httpClient *http.Client, name string, retryPolicy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	bc := &BaseClient{
		name:        name,
		client:      httpClient,
		breaker:     cb,
		retryPolicy: retryPolicy,
		userAgent:   "paysettle/1.0",
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do returns 2xx-4xx responses (other than 429) as-is; the caller closes the
// body. Exhausted retries and an open breaker become *UpstreamError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := logctx.TraceID(req.Context()); traceID != "" {
		req.Header.Set("X-Request-Id", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, &UpstreamError{Provider: c.name, Message: "failed to read request body", Err: err}
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt < maxAttempts-1 {
			wait := c.computeBackoff(attempt, resp)
			if deadline, ok := req.Context().Deadline(); ok && time.Until(deadline) < wait {
				break
			}
			c.sleepFn(wait)
		}
	}

	status := 0
	if lastResp != nil {
		status = lastResp.StatusCode
		lastResp.Body.Close()
	}
	msg := "upstream request failed"
	switch {
	case errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests):
		msg = "circuit breaker open"
	case status == http.StatusTooManyRequests:
		msg = "rate limited"
	case status >= 500:
		msg = "upstream unavailable after retries"
	}
	return nil, &UpstreamError{Provider: c.name, StatusCode: status, Message: msg, Err: lastErr}
}

// computeBackoff honours Retry-After, otherwise it jitters between MinWait
// and MinWait*2^attempt capped at MaxWait.
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
		}
	}
	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}
