// Package external holds the HTTP clients for the services the notifier
// depends on: the personal-data tokenizer and the App IO messaging API.
// Outbound calls go through BaseClient, which applies circuit breaking,
// optional retries and maps failures to *types.AppError.
package external

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

	"receiptnotifier/internal/types"

	"github.com/sony/gobreaker/v2"
)

// detailUpstreamStatus is the AppError detail key holding the HTTP status
// returned by the upstream service.
const detailUpstreamStatus = "upstream_status"

// errThrottled marks a 429 inside the breaker. Throttling is not an outage,
// so it does not count toward tripping the breaker.
var errThrottled = errors.New("upstream returned 429")

// RetryPolicy configures the transport-level retries of BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// NoRetryPolicy disables transport retries. Both notifier clients use it:
// provider calls are retried at the unit level and the tokenizer has its own
// rate-limit loop.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MinWait: 100 * time.Millisecond, MaxWait: time.Second}
}

// BaseClient wraps an *http.Client with a circuit breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(time.Duration)
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep between retries (tests).
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = cb
	}
}

// NewBaseClient creates a BaseClient. breakerName shows up in breaker state
// change logs and errors.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client:      httpClient,
		breaker:     newBreaker(breakerName),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errThrottled)
		},
	})
}

// Do executes req. 5xx responses count as breaker failures; 429 and 5xx are
// retried according to the policy; when they persist Do closes the body and
// returns an AppError carrying the status. Any other response is returned
// as-is and the caller owns the body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body", err)
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
			if r.StatusCode == http.StatusTooManyRequests {
				return r, errThrottled
			}
			if r.StatusCode >= 500 {
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
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff honours Retry-After (seconds or HTTP date), otherwise uses
// exponential backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := math.Min(
		float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)),
		float64(c.retryPolicy.MaxWait),
	)
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("circuit breaker %s is open", c.breaker.Name()),
			err,
		)
	}

	if resp != nil {
		details := map[string]any{detailUpstreamStatus: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err, details)
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("upstream returned %d", resp.StatusCode),
			err,
			details,
		)
	}

	// Network error, DNS failure, timeout.
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}

// rejected builds the error for a non-success response that BaseClient passed
// through (4xx other than 429, unexpected 2xx/3xx).
func rejected(code types.ErrorCode, service string, status int, body []byte) *types.AppError {
	msg := fmt.Sprintf("%s returned %d", service, status)
	if len(body) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, truncate(string(body), 200))
	}
	return types.NewAppErrorWithDetails(code, msg, nil, map[string]any{detailUpstreamStatus: status})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StatusCode returns the upstream HTTP status carried by err, or 0 when the
// failure happened before a response was received.
func StatusCode(err error) int {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Details == nil {
		return 0
	}
	status, _ := appErr.Details[detailUpstreamStatus].(int)
	return status
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
		return true
	}
	return StatusCode(err) == http.StatusTooManyRequests
}
