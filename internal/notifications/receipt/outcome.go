package receipt

import (
	"fmt"

	"receiptnotifier/internal/types"
)

// OutcomeKind classifies the result of evaluating one recipient.
type OutcomeKind string

const (
	OutcomeNotified        OutcomeKind = "NOTIFIED"
	OutcomeAlreadyNotified OutcomeKind = "ALREADY_NOTIFIED"
	OutcomeNotToBeNotified OutcomeKind = "NOT_TO_BE_NOTIFIED"
	OutcomeNotNotified     OutcomeKind = "NOT_NOTIFIED"
)

// NotifyOutcome is the per-recipient result of one reconciliation pass.
// MessageID is set for NOTIFIED and ALREADY_NOTIFIED, Content for NOTIFIED,
// Reason for NOT_NOTIFIED.
type NotifyOutcome struct {
	Kind      OutcomeKind
	MessageID string
	Content   types.MessageContent
	Reason    *types.ReasonError
}

func Notified(messageID string, content types.MessageContent) NotifyOutcome {
	return NotifyOutcome{Kind: OutcomeNotified, MessageID: messageID, Content: content}
}

func AlreadyNotified(messageID string) NotifyOutcome {
	return NotifyOutcome{Kind: OutcomeAlreadyNotified, MessageID: messageID}
}

func NotToBeNotified() NotifyOutcome {
	return NotifyOutcome{Kind: OutcomeNotToBeNotified}
}

func NotNotified(code int, err error) NotifyOutcome {
	return NotifyOutcome{Kind: OutcomeNotNotified, Reason: types.NewReasonError(code, err)}
}

// IsSuccess reports whether the recipient has a message, sent now or earlier.
func (o NotifyOutcome) IsSuccess() bool {
	return o.Kind == OutcomeNotified || o.Kind == OutcomeAlreadyNotified
}

func (o NotifyOutcome) String() string {
	if o.Reason != nil {
		return fmt.Sprintf("%s(%d)", o.Kind, o.Reason.Code)
	}
	return string(o.Kind)
}

// Recipient is a payer or debtor of a unit. Identifier is empty until the
// token has been resolved.
type Recipient struct {
	Token      string
	Identifier string
	Role       types.RecipientRole
	SubUnitID  string
}

// RecipientOutcome pairs a recipient with its outcome.
type RecipientOutcome struct {
	Recipient Recipient
	Outcome   NotifyOutcome
}

// OutcomeSet holds the outcomes of one unit: at most one payer and one entry
// per debtor sub-unit id.
type OutcomeSet struct {
	Payer   *RecipientOutcome
	Debtors map[string]RecipientOutcome

	order []string
}

func NewOutcomeSet() *OutcomeSet {
	return &OutcomeSet{Debtors: make(map[string]RecipientOutcome)}
}

// Set records ro, replacing any earlier outcome for the same slot.
func (s *OutcomeSet) Set(ro RecipientOutcome) {
	if ro.Recipient.Role == types.RolePayer {
		s.Payer = &ro
		return
	}
	if _, ok := s.Debtors[ro.Recipient.SubUnitID]; !ok {
		s.order = append(s.order, ro.Recipient.SubUnitID)
	}
	s.Debtors[ro.Recipient.SubUnitID] = ro
}

// All returns the outcomes payer first, then debtors in evaluation order.
func (s *OutcomeSet) All() []RecipientOutcome {
	out := make([]RecipientOutcome, 0, s.Len())
	if s.Payer != nil {
		out = append(out, *s.Payer)
	}
	for _, id := range s.order {
		out = append(out, s.Debtors[id])
	}
	return out
}

func (s *OutcomeSet) Len() int {
	n := len(s.Debtors)
	if s.Payer != nil {
		n++
	}
	return n
}
