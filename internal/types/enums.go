package types

// UnitKind distinguishes a single receipt from a cart of payments.
type UnitKind string

const (
	UnitKindReceipt UnitKind = "RECEIPT"
	UnitKindCart    UnitKind = "CART"
)

// UnitStatus is the notification lifecycle state of a NotifiableUnit.
type UnitStatus string

const (
	StatusGenerated       UnitStatus = "GENERATED"
	StatusSigned          UnitStatus = "SIGNED"
	StatusIONotifierRetry UnitStatus = "IO_NOTIFIER_RETRY"
	StatusIONotified      UnitStatus = "IO_NOTIFIED"
	StatusIOErrorToNotify UnitStatus = "IO_ERROR_TO_NOTIFY"
	StatusNotToNotify     UnitStatus = "NOT_TO_NOTIFY"
	StatusUnableToSend    UnitStatus = "UNABLE_TO_SEND"
)

// IsRenotifiable reports whether the notifier may pick up a unit in this status.
func (s UnitStatus) IsRenotifiable() bool {
	switch s {
	case StatusGenerated, StatusSigned, StatusIONotifierRetry:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic reconciliation occurs.
func (s UnitStatus) IsTerminal() bool {
	switch s {
	case StatusIONotified, StatusNotToNotify, StatusUnableToSend:
		return true
	default:
		return false
	}
}

// IsRecoverable reports whether an operator may push the unit back into the
// notification flow.
func (s UnitStatus) IsRecoverable() bool {
	return s == StatusIOErrorToNotify || s == StatusUnableToSend
}

// RecipientRole identifies which party of a payment a message is addressed to.
type RecipientRole string

const (
	RolePayer  RecipientRole = "PAYER"
	RoleDebtor RecipientRole = "DEBTOR"
)

// AnonymousFiscalCode is the sentinel stored in place of a debtor's fiscal
// code when the payment was made anonymously.
const AnonymousFiscalCode = "ANONIMO"
