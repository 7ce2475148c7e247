package types

import "time"

// ReasonError is the audit trail entry describing the most recent failure
// observed while notifying a unit or one of its recipients.
type ReasonError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewReasonError builds a ReasonError from a code and an error.
func NewReasonError(code int, err error) *ReasonError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ReasonError{Code: code, Message: msg}
}

// MessageReference records a message accepted by the notification provider.
type MessageReference struct {
	ID       string `json:"id"`
	Subject  string `json:"subject,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

// PaymentInfo carries the presentation data used to render messages.
type PaymentInfo struct {
	PayeeName   string    `json:"payee_name"`
	TotalAmount string    `json:"total_amount"`
	PaidAt      time.Time `json:"paid_at,omitzero"`
	NoticeCode  string    `json:"notice_code,omitempty"`
}

// DebtorItem is one payment inside a unit. A single receipt has exactly one
// item with an empty SubUnitID; a cart has one item per biz event.
type DebtorItem struct {
	SubUnitID  string `json:"biz_event_id,omitempty"`
	FiscalCode string `json:"debtor_fiscal_code" validate:"required"`
	Subject    string `json:"subject,omitempty"`
	Amount     string `json:"amount,omitempty"`
	PayeeName  string `json:"payee_name,omitempty"`

	Message   *MessageReference `json:"message,omitempty"`
	ReasonErr *ReasonError      `json:"reason_err,omitempty"`
}

// NotifiableUnit is a receipt or a cart of payments subject to notification.
// FiscalCode fields hold opaque tokens issued by the tokenizer, never the
// clear-text identifier (the ANONIMO sentinel being the only exception).
type NotifiableUnit struct {
	ID     string     `json:"id" validate:"required"`
	Kind   UnitKind   `json:"kind" validate:"required,oneof=RECEIPT CART"`
	Status UnitStatus `json:"status" validate:"required"`

	PayerFiscalCode string            `json:"payer_fiscal_code,omitempty"`
	PayerMessage    *MessageReference `json:"payer_message,omitempty"`
	PayerReasonErr  *ReasonError      `json:"payer_reason_err,omitempty"`

	Debtors []DebtorItem `json:"debtors" validate:"required,min=1,unique=SubUnitID,dive"`
	Payment PaymentInfo  `json:"payment"`

	RetryCount int          `json:"notification_num_retry"`
	NotifiedAt time.Time    `json:"notified_at,omitzero"`
	ReasonErr  *ReasonError `json:"reason_err,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at,omitzero"`
}

// Debtor returns the debtor item with the given sub-unit id.
func (u *NotifiableUnit) Debtor(subUnitID string) (*DebtorItem, bool) {
	for i := range u.Debtors {
		if u.Debtors[i].SubUnitID == subUnitID {
			return &u.Debtors[i], true
		}
	}
	return nil, false
}

// MessageSlot returns the message already recorded on the unit for the
// given (role, subUnitID) slot, if any.
func (u *NotifiableUnit) MessageSlot(role RecipientRole, subUnitID string) *MessageReference {
	if role == RolePayer {
		return u.PayerMessage
	}
	if d, ok := u.Debtor(subUnitID); ok {
		return d.Message
	}
	return nil
}

// MessageRecord is the append-only artifact persisted after a provider
// accepted a message. It is keyed by (UnitID, SubUnitID, Role).
type MessageRecord struct {
	ID        string        `json:"id"`
	UnitID    string        `json:"unit_id"`
	SubUnitID string        `json:"sub_unit_id,omitempty"`
	Role      RecipientRole `json:"role"`
	MessageID string        `json:"message_id"`
	Subject   string        `json:"subject"`
	Markdown  string        `json:"markdown"`
	CreatedAt time.Time     `json:"created_at"`
}

// MessageContent is a rendered message ready for submission.
type MessageContent struct {
	Subject  string `json:"subject"`
	Markdown string `json:"markdown"`
}
