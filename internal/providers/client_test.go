package providers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shiksha/internal/types"
)

// noopSleep avoids real delays between retry attempts in tests.
func noopSleep(time.Duration) {}

func newTestBaseClient(retries int) *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		RetryPolicy{
			MaxRetries: retries,
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"Shiksha-Test/1.0",
		WithSleepFunc(noopSleep),
	)
}

func TestBaseClient_Success_NoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestBaseClient(3)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestBaseClient_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestBaseClient(3)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error after retries: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", calls.Load())
	}
}

func TestBaseClient_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := newTestBaseClient(3)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() should return 4xx responses without error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried; got %d calls", calls.Load())
	}
}

func TestBaseClient_ExhaustedRetriesMapTo502Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestBaseClient(1)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := c.Do(req)
	if err == nil {
		t.Fatal("Do() should fail after exhausting retries")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error should be *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamUnavailable)
	}
}

func TestBaseClient_RateLimitMapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestBaseClient(1)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := c.Do(req)
	if err == nil {
		t.Fatal("Do() should fail on persistent 429")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error should be *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamRateLimited)
	}
}

func TestComputeBackoff_RespectsRetryAfterSeconds(t *testing.T) {
	c := NewBaseClient(nil, "bc", RetryPolicy{
		MaxRetries: 3,
		MinWait:    time.Millisecond,
		MaxWait:    30 * time.Second,
	}, "")

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}
	if got := c.computeBackoff(0, resp); got != 2*time.Second {
		t.Errorf("backoff = %v, want 2s", got)
	}
}

func TestComputeBackoff_ClampedToMaxWait(t *testing.T) {
	c := NewBaseClient(nil, "bc", RetryPolicy{
		MaxRetries: 3,
		MinWait:    time.Second,
		MaxWait:    5 * time.Second,
	}, "")

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}
	if got := c.computeBackoff(0, resp); got != 5*time.Second {
		t.Errorf("backoff = %v, want clamp at 5s", got)
	}
}
