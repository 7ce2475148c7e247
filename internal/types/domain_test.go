package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitStatusClassification(t *testing.T) {
	renotifiable := []UnitStatus{StatusGenerated, StatusSigned, StatusIONotifierRetry}
	terminal := []UnitStatus{StatusIONotified, StatusNotToNotify, StatusUnableToSend}

	for _, s := range renotifiable {
		assert.True(t, s.IsRenotifiable(), "%s should be re-notifiable", s)
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
	for _, s := range terminal {
		assert.False(t, s.IsRenotifiable(), "%s should not be re-notifiable", s)
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	// Waiting for a scheduled retry: neither picked up nor terminal.
	assert.False(t, StatusIOErrorToNotify.IsRenotifiable())
	assert.False(t, StatusIOErrorToNotify.IsTerminal())
	assert.True(t, StatusIOErrorToNotify.IsRecoverable())
	assert.True(t, StatusUnableToSend.IsRecoverable())
	assert.False(t, StatusIONotified.IsRecoverable())
}

func TestNotifiableUnit_MessageSlot(t *testing.T) {
	u := &NotifiableUnit{
		ID:           "cart_1",
		Kind:         UnitKindCart,
		PayerMessage: &MessageReference{ID: "m-payer"},
		Debtors: []DebtorItem{
			{SubUnitID: "biz_1", FiscalCode: "tok_1", Message: &MessageReference{ID: "m1"}},
			{SubUnitID: "biz_2", FiscalCode: "tok_2"},
		},
	}

	assert.Equal(t, "m-payer", u.MessageSlot(RolePayer, "").ID)
	assert.Equal(t, "m1", u.MessageSlot(RoleDebtor, "biz_1").ID)
	assert.Nil(t, u.MessageSlot(RoleDebtor, "biz_2"))
	assert.Nil(t, u.MessageSlot(RoleDebtor, "unknown"))

	d, ok := u.Debtor("biz_2")
	assert.True(t, ok)
	d.Message = &MessageReference{ID: "m2"}
	assert.Equal(t, "m2", u.Debtors[1].Message.ID, "Debtor must return a pointer into the slice")
}

func TestIsValidFiscalCode(t *testing.T) {
	tests := []struct {
		cf   string
		want bool
	}{
		{"RSSMRA80A01H501U", true},
		{"RSSMRA80A01H50MU", true}, // omocodia
		{"rssmra80a01h501u", false},
		{"RSSMRA80A01H501", false},
		{"12345678901", false},
		{AnonymousFiscalCode, false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidFiscalCode(tt.cf), "IsValidFiscalCode(%q)", tt.cf)
	}
}

func TestRedactFiscalCode(t *testing.T) {
	assert.Equal(t, "RSS*************", RedactFiscalCode("RSSMRA80A01H501U"))
	assert.Equal(t, "**", RedactFiscalCode("AB"))
	assert.Equal(t, "", RedactFiscalCode(""))
}
