package receipt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptnotifier/internal/types"
)

func payer() Recipient { return Recipient{Role: types.RolePayer} }

func debtor(id string) Recipient { return Recipient{Role: types.RoleDebtor, SubUnitID: id} }

func TestAggregate_Disposition(t *testing.T) {
	content := types.MessageContent{Subject: "s", Markdown: "m"}

	tests := []struct {
		name     string
		outcomes []RecipientOutcome
		want     Disposition
	}{
		{
			name: "nothing evaluated",
			want: DispositionPermanentSkip,
		},
		{
			name: "all not to be notified",
			outcomes: []RecipientOutcome{
				{Recipient: payer(), Outcome: NotToBeNotified()},
				{Recipient: debtor("a"), Outcome: NotToBeNotified()},
			},
			want: DispositionPermanentSkip,
		},
		{
			name: "one notified one skipped",
			outcomes: []RecipientOutcome{
				{Recipient: payer(), Outcome: NotToBeNotified()},
				{Recipient: debtor("a"), Outcome: Notified("m1", content)},
			},
			want: DispositionSuccess,
		},
		{
			name: "already notified only",
			outcomes: []RecipientOutcome{
				{Recipient: debtor("a"), Outcome: AlreadyNotified("m0")},
			},
			want: DispositionSuccess,
		},
		{
			name: "failure wins over success",
			outcomes: []RecipientOutcome{
				{Recipient: payer(), Outcome: Notified("m1", content)},
				{Recipient: debtor("a"), Outcome: NotNotified(900, errors.New("io"))},
			},
			want: DispositionRetry,
		},
		{
			name: "failure wins over skip",
			outcomes: []RecipientOutcome{
				{Recipient: payer(), Outcome: NotToBeNotified()},
				{Recipient: debtor("a"), Outcome: NotNotified(500, errors.New("boom"))},
			},
			want: DispositionRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := cartUnit("u", "tokP", "tok1")
			unit.Debtors[0].SubUnitID = "a"
			set := NewOutcomeSet()
			for _, ro := range tt.outcomes {
				set.Set(ro)
			}
			assert.Equal(t, tt.want, Aggregate(unit, set).Disposition)
		})
	}
}

func TestAggregate_RecordsAndSlots(t *testing.T) {
	unit := cartUnit("u1", "tokP", "tok1", "tok2")
	unit.Debtors[0].ReasonErr = &types.ReasonError{Code: 900, Message: "previous failure"}

	set := NewOutcomeSet()
	set.Set(RecipientOutcome{Recipient: payer(), Outcome: NotNotified(503, errors.New("unavailable"))})
	set.Set(RecipientOutcome{Recipient: debtor("u1-a"), Outcome: Notified("m1", types.MessageContent{Subject: "S", Markdown: "M"})})
	set.Set(RecipientOutcome{Recipient: debtor("u1-b"), Outcome: NotNotified(900, errors.New("reset"))})

	agg := Aggregate(unit, set)

	assert.Equal(t, DispositionRetry, agg.Disposition)
	require.Len(t, agg.Records, 1)
	rec := agg.Records[0]
	assert.Equal(t, "u1", rec.UnitID)
	assert.Equal(t, "u1-a", rec.SubUnitID)
	assert.Equal(t, types.RoleDebtor, rec.Role)
	assert.Equal(t, "m1", rec.MessageID)
	assert.Equal(t, "S", rec.Subject)

	require.NotNil(t, unit.Debtors[0].Message)
	assert.Equal(t, "m1", unit.Debtors[0].Message.ID)
	assert.Nil(t, unit.Debtors[0].ReasonErr)

	require.NotNil(t, unit.PayerReasonErr)
	assert.Equal(t, 503, unit.PayerReasonErr.Code)
	require.NotNil(t, unit.Debtors[1].ReasonErr)
	assert.Equal(t, 900, unit.Debtors[1].ReasonErr.Code)

	// The last failure in evaluation order becomes the unit reason.
	require.NotNil(t, agg.Reason)
	assert.Equal(t, 900, agg.Reason.Code)
}

func TestOutcomeSet_SetReplacesSlot(t *testing.T) {
	set := NewOutcomeSet()
	set.Set(RecipientOutcome{Recipient: debtor("a"), Outcome: NotNotified(500, nil)})
	set.Set(RecipientOutcome{Recipient: debtor("b"), Outcome: NotToBeNotified()})
	set.Set(RecipientOutcome{Recipient: debtor("a"), Outcome: AlreadyNotified("m")})
	set.Set(RecipientOutcome{Recipient: payer(), Outcome: NotToBeNotified()})

	all := set.All()
	require.Len(t, all, 3)
	assert.Equal(t, types.RolePayer, all[0].Recipient.Role)
	assert.Equal(t, "a", all[1].Recipient.SubUnitID)
	assert.Equal(t, OutcomeAlreadyNotified, all[1].Outcome.Kind)
	assert.Equal(t, "b", all[2].Recipient.SubUnitID)
	assert.Equal(t, "NOT_NOTIFIED(500)", NotNotified(500, nil).String())
}
