// Package receipt reconciles receipt units with the App IO notification
// provider: it resolves each unit's recipients, sends at most one message
// per (unit, sub-unit, role) slot and moves the unit to its next status.
package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"receiptnotifier/internal/external"
	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

// UnitStore persists evaluated units.
type UnitStore interface {
	UpsertBatch(ctx context.Context, units []*types.NotifiableUnit) error
}

// Config tunes a Reconciler.
type Config struct {
	MaxRetry         int
	Concurrency      int
	CallTimeout      time.Duration
	WriteBackReserve time.Duration
	TokenizerRetry   core.RetryPolicy
}

// Deps are the collaborators of a Reconciler. Metrics and Clock default to
// no-op metrics and the real clock.
type Deps struct {
	Tokenizer external.Tokenizer
	Provider  external.MessageProvider
	Templates TemplateBuilder
	Units     UnitStore
	Messages  MessageStore
	Requeuer  Requeuer
	Metrics   core.NotificationMetrics
	Clock     types.Clock
	Logger    types.Logger
}

// ReconcileResult is what one batch produced. Units are the evaluated units
// in their new state; Discarded counts units dropped before evaluation.
type ReconcileResult struct {
	Units     []*types.NotifiableUnit
	Records   []*types.MessageRecord
	Discarded int
}

// Reconciler is the batch driver.
type Reconciler struct {
	cfg        Config
	resolver   *Resolver
	guard      *Guard
	delivery   *Delivery
	escalation *Escalation
	units      UnitStore
	messages   MessageStore
	metrics    core.NotificationMetrics
	clock      types.Clock
	validate   *validator.Validate
	logger     types.Logger
}

func NewReconciler(cfg Config, deps Deps) *Reconciler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if deps.Metrics == nil {
		deps.Metrics = core.NoopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}

	return &Reconciler{
		cfg:        cfg,
		resolver:   NewResolver(deps.Tokenizer, cfg.TokenizerRetry, cfg.CallTimeout, deps.Logger),
		guard:      NewGuard(deps.Messages, cfg.CallTimeout, deps.Logger),
		delivery:   NewDelivery(deps.Provider, deps.Templates, cfg.CallTimeout, deps.Logger),
		escalation: NewEscalation(cfg.MaxRetry, deps.Requeuer, deps.Clock, deps.Logger),
		units:      deps.Units,
		messages:   deps.Messages,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		validate:   validator.New(),
		logger:     deps.Logger,
	}
}

// Reconcile evaluates the batch and writes it back with one batched write per
// store. Units are updated in place. Only a unit-store write failure is
// returned; everything else ends up in the units' status and reason fields.
func (r *Reconciler) Reconcile(ctx context.Context, units []*types.NotifiableUnit) (*ReconcileResult, error) {
	start := r.clock.Now()

	accepted := r.accept(units)
	result := &ReconcileResult{
		Units:     accepted,
		Discarded: len(units) - len(accepted),
	}
	if len(accepted) == 0 {
		return result, nil
	}

	// In-flight calls are cut off early enough to leave time for requeue and
	// write-back, which run on ctx.
	evalCtx, cancel := r.evaluationContext(ctx)
	defer cancel()

	records := make([][]*types.MessageRecord, len(accepted))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, unit := range accepted {
		g.Go(func() error {
			records[i] = r.reconcileUnit(ctx, evalCtx, unit)
			return nil
		})
	}
	_ = g.Wait()

	for _, rs := range records {
		result.Records = append(result.Records, rs...)
	}

	// Messages first: if the unit write then fails, the guard finds these
	// records on redelivery.
	if err := r.messages.UpsertBatch(ctx, result.Records); err != nil {
		r.logger.Error("failed to write message records",
			"count", len(result.Records),
			"error", err.Error(),
		)
		r.metrics.RecordWriteFailure(ctx, "messages")
	}

	if err := r.units.UpsertBatch(ctx, accepted); err != nil {
		r.metrics.RecordWriteFailure(ctx, "units")
		return nil, fmt.Errorf("write back units: %w", err)
	}

	r.metrics.RecordBatch(ctx, len(accepted), r.clock.Now().Sub(start))
	r.logger.Info("batch reconciled",
		"units", len(accepted),
		"discarded", result.Discarded,
		"records", len(result.Records),
	)
	return result, nil
}

// accept drops units that cannot or must not be evaluated. A unit id seen
// twice in the batch is evaluated once, keeping the copy with the higher
// retry count.
func (r *Reconciler) accept(units []*types.NotifiableUnit) []*types.NotifiableUnit {
	accepted := make([]*types.NotifiableUnit, 0, len(units))
	seen := make(map[string]int, len(units))
	for _, u := range units {
		if u == nil {
			r.logger.Warn("unit discarded", "reason", "nil unit")
			continue
		}
		if err := r.validate.Struct(u); err != nil {
			r.logger.Warn("unit discarded", "unit_id", u.ID, "reason", "incomplete unit", "error", err.Error())
			continue
		}
		if u.Kind == types.UnitKindReceipt && len(u.Debtors) != 1 {
			r.logger.Warn("unit discarded", "unit_id", u.ID, "reason", "receipt must have exactly one debtor",
				"debtors", len(u.Debtors))
			continue
		}
		if u.Kind == types.UnitKindCart && hasEmptySubUnitID(u) {
			r.logger.Warn("unit discarded", "unit_id", u.ID, "reason", "cart item without biz event id")
			continue
		}
		if !u.Status.IsRenotifiable() {
			r.logger.Info("unit discarded", "unit_id", u.ID, "reason", "status not re-notifiable", "status", u.Status)
			continue
		}
		if i, dup := seen[u.ID]; dup {
			r.logger.Warn("unit discarded", "unit_id", u.ID, "reason", "duplicate in batch",
				"retry_count", u.RetryCount, "kept_retry_count", max(u.RetryCount, accepted[i].RetryCount))
			if u.RetryCount > accepted[i].RetryCount {
				accepted[i] = u
			}
			continue
		}
		seen[u.ID] = len(accepted)
		accepted = append(accepted, u)
	}
	return accepted
}

func hasEmptySubUnitID(u *types.NotifiableUnit) bool {
	for _, d := range u.Debtors {
		if d.SubUnitID == "" {
			return true
		}
	}
	return false
}

func (r *Reconciler) evaluationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-r.cfg.WriteBackReserve))
	}
	return context.WithCancel(ctx)
}

// reconcileUnit evaluates one unit's recipients in order, payer first, and
// applies the resulting status. Escalation runs on ctx, not evalCtx.
func (r *Reconciler) reconcileUnit(ctx, evalCtx context.Context, unit *types.NotifiableUnit) []*types.MessageRecord {
	logger := r.logger.With("unit_id", unit.ID, "unit_kind", unit.Kind, "retry_count", unit.RetryCount)
	evalCtx = types.WithUnitID(evalCtx, unit.ID)

	res := r.resolver.Resolve(evalCtx, unit)

	outcomes := NewOutcomeSet()
	for _, rc := range res.Recipients {
		o := r.evaluate(evalCtx, unit, rc)
		outcomes.Set(RecipientOutcome{Recipient: rc.Recipient, Outcome: o})
		r.metrics.RecordRecipientOutcome(ctx, rc.Recipient.Role, metricResult(o.Kind))
	}

	agg := Aggregate(unit, outcomes)
	previous := unit.Status
	r.escalation.Apply(types.WithUnitID(ctx, unit.ID), unit, agg)
	r.metrics.RecordUnitStatus(ctx, unit.Status)

	logger.Info("unit reconciled",
		"disposition", agg.Disposition,
		"from_status", previous,
		"to_status", unit.Status,
		"recipients", outcomes.Len(),
		"anonymous", res.Anonymous,
		"suppressed", len(res.Suppressed),
		"new_messages", len(agg.Records),
	)
	return agg.Records
}

func (r *Reconciler) evaluate(ctx context.Context, unit *types.NotifiableUnit, rc Resolved) NotifyOutcome {
	if err := ctx.Err(); err != nil {
		return NotNotified(types.ReasonCodeCancelled, err)
	}
	if rc.Outcome != nil {
		return *rc.Outcome
	}
	if rec, found := r.guard.Check(ctx, unit, rc.Recipient); found {
		return AlreadyNotified(rec.MessageID)
	}
	return r.delivery.Notify(ctx, unit, rc.Recipient)
}

func metricResult(k OutcomeKind) core.MetricResult {
	switch k {
	case OutcomeNotified:
		return core.MetricNotified
	case OutcomeAlreadyNotified:
		return core.MetricAlreadyNotified
	case OutcomeNotToBeNotified:
		return core.MetricNotToNotify
	default:
		return core.MetricNotNotified
	}
}
