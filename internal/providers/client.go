// Package providers holds the outbound HTTP clients for the delivery and
// billing vendors: Resend (email), Fast2SMS, the WhatsApp Cloud API, FCM
// (push), and Stripe. Every vendor call goes through BaseClient so breaker
// state, retry budgets, and error mapping behave the same regardless of which
// provider is on the other end.
package providers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"shiksha/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy bounds how hard a provider client leans on a struggling vendor.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy suits the dispatch path: a send blocks one recipient
// slot while it retries, so the budget stays small.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// BaseClient is the shared transport the provider clients embed. It layers a
// per-vendor circuit breaker and a bounded retry loop over a plain
// *http.Client, and converts terminal failures into the AppError taxonomy so
// the dispatcher never sees raw transport errors.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

// BaseClientOption customizes a BaseClient at construction.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the inter-retry sleep. Tests use this to run the
// retry loop without wall-clock delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient builds a client with its own named breaker. The breaker opens
// after five consecutive failed attempts and probes again after 30s, so one
// misbehaving vendor cannot stall a whole dispatch fan-out.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client: httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
		}),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// Do sends the request through the breaker, retrying 429 and 5xx responses
// up to the policy budget. Trace and User-Agent headers are set before the
// first attempt; the body is buffered once so it can be replayed. A non-429
// 4xx is returned to the caller untouched, since retrying a rejected request
// cannot change the outcome. The caller owns the returned body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to read request body for retry support",
			err,
		)
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.attempt(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if resp != nil {
			if attempt < attempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// An open breaker means the vendor is already known-bad; waiting
		// out this call's retry budget would not help.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if resp != nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt < attempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// attempt runs one request through the breaker. 429 and 5xx count as breaker
// failures even though a response came back.
func (c *BaseClient) attempt(req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		r, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
}

// bufferBody drains the request body so retries can replay it. Bodiless
// requests return nil.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// computeBackoff picks the wait before the next attempt: a vendor-supplied
// Retry-After wins, otherwise exponential growth from MinWait with full
// jitter, clamped to MaxWait.
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if wait, ok := c.retryAfter(resp); ok {
		return wait
	}

	ceiling := c.retryPolicy.MinWait << attempt
	if ceiling > c.retryPolicy.MaxWait || ceiling <= 0 {
		ceiling = c.retryPolicy.MaxWait
	}
	if ceiling <= c.retryPolicy.MinWait {
		return c.retryPolicy.MinWait
	}
	spread := float64(ceiling - c.retryPolicy.MinWait)
	return c.retryPolicy.MinWait + time.Duration(rand.Float64()*spread)
}

// retryAfter parses a Retry-After header in either delta-seconds or HTTP-date
// form, clamped to the policy ceiling.
func (c *BaseClient) retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait), true
	}
	if at, err := http.ParseTime(header); err == nil {
		wait := time.Until(at)
		if wait <= 0 {
			return c.retryPolicy.MinWait, true
		}
		return min(wait, c.retryPolicy.MaxWait), true
	}
	return 0, false
}

// mapError turns an exhausted retry loop into a domain error. Breaker-open
// and 429 conditions map to the rate-limited code so the dispatcher records
// them distinctly from vendor outages.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				"upstream rate limit exceeded",
				err,
			)
		case resp.StatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode),
				err,
			)
		}
	}
	return types.NewAppError(
		types.ErrCodeInternalUnexpected,
		"upstream request failed",
		err,
	)
}
