// Package core provides the notification infrastructure shared by the
// receipt reconciler and the ops API: retry policies and the explicit retry
// loop, the requeue publisher, the retry-queue codec and metrics.
package core

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"receiptnotifier/internal/types"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter is the fraction of the computed delay that is randomised,
	// in [0, 1]. 0.5 turns a 2s delay into a value in [1s, 2s].
	Jitter float64
}

// Standard policies. Values here are the defaults; the Lambda overrides
// them from configuration.
var (
	// TokenizerRetryPolicy governs the in-process loop around one tokenizer
	// lookup that was rate limited.
	TokenizerRetryPolicy = RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.5,
	}

	// RequeueDelayPolicy spaces out unit-level retries on the retry queue.
	RequeueDelayPolicy = RetryPolicy{
		BaseDelay:     30 * time.Second,
		MaxDelay:      15 * time.Minute,
		BackoffFactor: 2.0,
	}
)

// CalculateNextRetry computes the delay before the next attempt:
// min(BaseDelay * BackoffFactor^attempt, MaxDelay), without jitter.
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if delay > float64(policy.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

// jittered removes up to policy.Jitter of d at random.
func jittered(policy RetryPolicy, d time.Duration) time.Duration {
	j := math.Min(math.Max(policy.Jitter, 0), 1)
	if j == 0 || d <= 0 {
		return d
	}
	return d - time.Duration(rand.Float64()*j*float64(d))
}

// MetricResult categorizes a per-recipient outcome for metrics.
type MetricResult string

const (
	MetricNotified        MetricResult = "notified"
	MetricAlreadyNotified MetricResult = "already_notified"
	MetricNotToNotify     MetricResult = "not_to_notify"
	MetricNotNotified     MetricResult = "not_notified"
)

// NotificationMetrics abstracts telemetry for the notifier.
type NotificationMetrics interface {
	RecordRecipientOutcome(ctx context.Context, role types.RecipientRole, result MetricResult)
	RecordUnitStatus(ctx context.Context, status types.UnitStatus)
	RecordBatch(ctx context.Context, size int, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
	RecordWriteFailure(ctx context.Context, store string)
}

// NoopMetrics discards everything. Used when metrics are disabled and in
// tests that do not assert on telemetry.
type NoopMetrics struct{}

var _ NotificationMetrics = NoopMetrics{}

func (NoopMetrics) RecordRecipientOutcome(context.Context, types.RecipientRole, MetricResult) {}
func (NoopMetrics) RecordUnitStatus(context.Context, types.UnitStatus)                        {}
func (NoopMetrics) RecordBatch(context.Context, int, time.Duration)                           {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)                             {}
func (NoopMetrics) RecordWriteFailure(context.Context, string)                                {}
