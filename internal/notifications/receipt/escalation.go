package receipt

import (
	"context"

	"receiptnotifier/internal/types"
)

// Requeuer schedules a unit for another reconciliation pass.
type Requeuer interface {
	Requeue(ctx context.Context, unit *types.NotifiableUnit) error
}

// Escalation maps an aggregation onto the unit's next status and retry
// counter.
type Escalation struct {
	maxRetry int
	requeuer Requeuer
	clock    types.Clock
	logger   types.Logger
}

func NewEscalation(maxRetry int, requeuer Requeuer, clock types.Clock, logger types.Logger) *Escalation {
	return &Escalation{maxRetry: maxRetry, requeuer: requeuer, clock: clock, logger: logger}
}

// Apply always leaves the unit in a definite status. A failed enqueue makes
// the unit UNABLE_TO_SEND so it never sits in IO_ERROR_TO_NOTIFY with no
// retry scheduled.
func (e *Escalation) Apply(ctx context.Context, unit *types.NotifiableUnit, agg Aggregation) {
	logger := e.logger.With("unit_id", unit.ID)

	switch agg.Disposition {
	case DispositionSuccess:
		unit.Status = types.StatusIONotified
		if unit.NotifiedAt.IsZero() {
			unit.NotifiedAt = e.clock.Now()
		}
		unit.ReasonErr = nil

	case DispositionPermanentSkip:
		unit.Status = types.StatusNotToNotify

	case DispositionRetry:
		unit.RetryCount++
		unit.ReasonErr = agg.Reason
		if unit.RetryCount > e.maxRetry {
			logger.Warn("retry ceiling reached, manual intervention required",
				"retry_count", unit.RetryCount,
				"max_retry", e.maxRetry,
			)
			unit.Status = types.StatusUnableToSend
			return
		}

		unit.Status = types.StatusIOErrorToNotify
		if err := e.requeuer.Requeue(ctx, unit); err != nil {
			logger.Error("failed to requeue unit",
				"retry_count", unit.RetryCount,
				"error", err.Error(),
			)
			unit.Status = types.StatusUnableToSend
			return
		}
		logger.Info("unit requeued", "retry_count", unit.RetryCount)
	}
}
