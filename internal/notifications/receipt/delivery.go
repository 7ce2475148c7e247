package receipt

import (
	"context"
	"errors"
	"net/http"
	"time"

	"receiptnotifier/internal/external"
	"receiptnotifier/internal/types"
)

var errEmptyProfile = errors.New("provider returned an empty profile")

// Delivery checks a recipient's eligibility with the provider and submits
// the message. Provider calls are never retried here.
type Delivery struct {
	provider    external.MessageProvider
	templates   TemplateBuilder
	callTimeout time.Duration
	logger      types.Logger
}

func NewDelivery(provider external.MessageProvider, templates TemplateBuilder, callTimeout time.Duration, logger types.Logger) *Delivery {
	return &Delivery{
		provider:    provider,
		templates:   templates,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Notify evaluates one resolved recipient.
func (d *Delivery) Notify(ctx context.Context, unit *types.NotifiableUnit, rcpt Recipient) NotifyOutcome {
	logger := d.logger.With("unit_id", unit.ID, "role", rcpt.Role, "sub_unit_id", rcpt.SubUnitID)

	profile, err := d.checkEligibility(ctx, rcpt.Identifier)
	if err != nil {
		code := types.ReasonCodeGeneric
		if ctx.Err() != nil {
			code = types.ReasonCodeCancelled
		}
		logger.Warn("eligibility check failed", "reason_code", code, "error", err.Error())
		return NotNotified(code, err)
	}
	if !profile.SenderAllowed {
		logger.Info("recipient does not accept messages from this sender")
		return NotToBeNotified()
	}

	content, err := d.templates.Render(unit, rcpt)
	if err != nil {
		logger.Error("failed to build message", "error", err.Error())
		return NotNotified(types.ReasonCodeGeneric, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	id, err := d.provider.Submit(callCtx, external.MessageRequest{
		FiscalCode: rcpt.Identifier,
		Content:    content,
	})
	if err != nil {
		code := submitReasonCode(ctx, err)
		logger.Warn("message submission failed", "reason_code", code, "error", err.Error())
		return NotNotified(code, err)
	}

	logger.Info("message submitted", "message_id", id)
	return Notified(id, content)
}

func (d *Delivery) checkEligibility(ctx context.Context, identifier string) (*external.Profile, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	profile, err := d.provider.CheckEligibility(callCtx, identifier)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errEmptyProfile
	}
	return profile, nil
}

// submitReasonCode records the provider's HTTP status when it answered with
// an error status, the fixed I/O code otherwise.
func submitReasonCode(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return types.ReasonCodeCancelled
	}
	if status := external.StatusCode(err); status >= http.StatusMultipleChoices {
		return status
	}
	return types.ReasonCodeProviderIO
}
