package receipt

import (
	"receiptnotifier/internal/types"
)

// Disposition is the unit-level verdict of one reconciliation pass.
type Disposition string

const (
	DispositionSuccess       Disposition = "SUCCESS"
	DispositionPermanentSkip Disposition = "PERMANENT_SKIP"
	DispositionRetry         Disposition = "RETRY"
)

// Aggregation is the result of folding the recipient outcomes of a unit.
type Aggregation struct {
	Disposition Disposition
	Records     []*types.MessageRecord
	// Reason is the last NOT_NOTIFIED reason, nil unless Disposition is RETRY.
	Reason *types.ReasonError
}

// Aggregate records every NOTIFIED message on the unit slot it belongs to,
// emits one MessageRecord per NOTIFIED outcome and decides the disposition:
// any NOT_NOTIFIED wins, then all NOT_TO_BE_NOTIFIED (or nothing evaluated),
// otherwise success.
func Aggregate(unit *types.NotifiableUnit, outcomes *OutcomeSet) Aggregation {
	var agg Aggregation

	skipped := 0
	for _, ro := range outcomes.All() {
		o := ro.Outcome
		switch o.Kind {
		case OutcomeNotified:
			ref := &types.MessageReference{ID: o.MessageID, Subject: o.Content.Subject, Markdown: o.Content.Markdown}
			setSlot(unit, ro.Recipient, ref, nil)
			agg.Records = append(agg.Records, &types.MessageRecord{
				UnitID:    unit.ID,
				SubUnitID: ro.Recipient.SubUnitID,
				Role:      ro.Recipient.Role,
				MessageID: o.MessageID,
				Subject:   o.Content.Subject,
				Markdown:  o.Content.Markdown,
			})
		case OutcomeAlreadyNotified:
			if unit.MessageSlot(ro.Recipient.Role, ro.Recipient.SubUnitID) == nil {
				setSlot(unit, ro.Recipient, &types.MessageReference{ID: o.MessageID}, nil)
			}
		case OutcomeNotNotified:
			setSlot(unit, ro.Recipient, nil, o.Reason)
			agg.Reason = o.Reason
		case OutcomeNotToBeNotified:
			skipped++
		}
	}

	switch {
	case agg.Reason != nil:
		agg.Disposition = DispositionRetry
	case skipped == outcomes.Len():
		agg.Disposition = DispositionPermanentSkip
	default:
		agg.Disposition = DispositionSuccess
	}
	return agg
}

// setSlot updates the message reference (when ref is non-nil) and the
// reason of the recipient's slot. A successful slot has its reason cleared.
func setSlot(unit *types.NotifiableUnit, rcpt Recipient, ref *types.MessageReference, reason *types.ReasonError) {
	if rcpt.Role == types.RolePayer {
		if ref != nil {
			unit.PayerMessage = ref
		}
		unit.PayerReasonErr = reason
		return
	}
	if d, ok := unit.Debtor(rcpt.SubUnitID); ok {
		if ref != nil {
			d.Message = ref
		}
		d.ReasonErr = reason
	}
}
