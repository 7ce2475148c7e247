package receipt

import (
	"context"
	"errors"
	"time"

	"receiptnotifier/internal/external"
	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

// Resolved is a recipient ready for evaluation. Outcome is non-nil when the
// resolution step already decided it (lookup failure, invalid identifier).
type Resolved struct {
	Recipient Recipient
	Outcome   *NotifyOutcome
}

// Resolution is the ordered list of recipients of a unit, payer first.
// Anonymous debtors and debtors suppressed as payer duplicates are absent.
type Resolution struct {
	Recipients []Resolved
	Suppressed []string // debtor sub-unit ids covered by the payer message
	Anonymous  int
}

// Resolver turns a unit's tokenized fiscal codes into recipients.
type Resolver struct {
	tokenizer   external.Tokenizer
	policy      core.RetryPolicy
	callTimeout time.Duration
	logger      types.Logger
}

func NewResolver(tokenizer external.Tokenizer, policy core.RetryPolicy, callTimeout time.Duration, logger types.Logger) *Resolver {
	return &Resolver{
		tokenizer:   tokenizer,
		policy:      policy,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Resolve never fails as a whole: a lookup failure only affects the
// recipient it belongs to.
func (r *Resolver) Resolve(ctx context.Context, unit *types.NotifiableUnit) Resolution {
	var res Resolution
	logger := r.logger.With("unit_id", unit.ID)

	var (
		payer      *Resolved
		payerOK    bool
		payerIdent string
	)
	if tok := unit.PayerFiscalCode; tok != "" && tok != types.AnonymousFiscalCode {
		rc := r.resolveOne(ctx, Recipient{Token: tok, Role: types.RolePayer})
		payer = &rc
		payerOK = rc.Outcome == nil || rc.Outcome.Kind == OutcomeNotToBeNotified
		payerIdent = rc.Recipient.Identifier
		res.Recipients = append(res.Recipients, rc)
	}

	for _, d := range unit.Debtors {
		if d.FiscalCode == types.AnonymousFiscalCode {
			res.Anonymous++
			continue
		}
		// Same token is the same person whatever the tokenizer says; this
		// is also the only comparison left when the payer lookup failed.
		if payer != nil && d.FiscalCode == payer.Recipient.Token {
			res.Suppressed = append(res.Suppressed, d.SubUnitID)
			continue
		}

		rc := r.resolveOne(ctx, Recipient{Token: d.FiscalCode, Role: types.RoleDebtor, SubUnitID: d.SubUnitID})
		if payerOK && rc.Recipient.Identifier != "" && rc.Recipient.Identifier == payerIdent {
			res.Suppressed = append(res.Suppressed, d.SubUnitID)
			continue
		}
		res.Recipients = append(res.Recipients, rc)
	}

	if len(res.Suppressed) > 0 {
		logger.Info("debtor evaluation suppressed, payer message covers it", "sub_unit_ids", res.Suppressed)
	}
	return res
}

func (r *Resolver) resolveOne(ctx context.Context, rcpt Recipient) Resolved {
	ident, err := core.Retry(ctx, r.policy, external.IsRateLimited, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
		return r.tokenizer.Resolve(callCtx, rcpt.Token)
	})
	if err != nil {
		code := tokenizerReasonCode(ctx, err)
		r.logger.Warn("fiscal code lookup failed",
			"unit_id", types.GetUnitID(ctx),
			"role", rcpt.Role,
			"sub_unit_id", rcpt.SubUnitID,
			"reason_code", code,
			"error", err.Error(),
		)
		o := NotNotified(code, err)
		return Resolved{Recipient: rcpt, Outcome: &o}
	}

	rcpt.Identifier = ident
	if !types.IsValidFiscalCode(ident) {
		r.logger.Warn("resolved fiscal code is not valid",
			"unit_id", types.GetUnitID(ctx),
			"role", rcpt.Role,
			"fiscal_code", types.RedactFiscalCode(ident),
		)
		o := NotToBeNotified()
		return Resolved{Recipient: rcpt, Outcome: &o}
	}
	return Resolved{Recipient: rcpt}
}

// tokenizerReasonCode maps a tokenizer failure to the audit reason code.
func tokenizerReasonCode(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return types.ReasonCodeCancelled
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return types.ReasonCodeTokenizerUnexpected
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamTokenizer:
		return types.ReasonCodeTokenizerIO
	case types.ErrCodeUpstreamInvalidResult:
		return types.ReasonCodeTokenizerMapping
	default:
		return types.ReasonCodeTokenizerUnexpected
	}
}
