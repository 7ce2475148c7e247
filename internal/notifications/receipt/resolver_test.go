package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

func newTestResolver(tok *fakeTokenizer) *Resolver {
	policy := core.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	return NewResolver(tok, policy, time.Second, nopLogger{})
}

func TestResolver_PayerFirstAnonymousSkipped(t *testing.T) {
	tok := newFakeTokenizer()
	tok.ident["tokP"] = cfPayer
	tok.ident["tok1"] = cfDebtor1

	unit := cartUnit("u1", "tokP", types.AnonymousFiscalCode, "tok1")
	res := newTestResolver(tok).Resolve(context.Background(), unit)

	require.Len(t, res.Recipients, 2)
	assert.Equal(t, types.RolePayer, res.Recipients[0].Recipient.Role)
	assert.Equal(t, cfPayer, res.Recipients[0].Recipient.Identifier)
	assert.Equal(t, "u1-b", res.Recipients[1].Recipient.SubUnitID)
	assert.Equal(t, 1, res.Anonymous)
	assert.Empty(t, res.Suppressed)
	assert.Zero(t, tok.callCount(types.AnonymousFiscalCode))
}

func TestResolver_AnonymousPayerIsAbsent(t *testing.T) {
	tok := newFakeTokenizer()
	unit := cartUnit("u1", types.AnonymousFiscalCode, cfDebtor1)

	res := newTestResolver(tok).Resolve(context.Background(), unit)

	require.Len(t, res.Recipients, 1)
	assert.Equal(t, types.RoleDebtor, res.Recipients[0].Recipient.Role)
}

func TestResolver_SuppressionByIdentifier(t *testing.T) {
	tok := newFakeTokenizer()
	tok.ident["tokP"] = cfPayer
	tok.ident["tokD"] = cfPayer
	tok.ident["tok2"] = cfDebtor2

	unit := cartUnit("u1", "tokP", "tokD", "tok2")
	res := newTestResolver(tok).Resolve(context.Background(), unit)

	require.Len(t, res.Recipients, 2)
	assert.Equal(t, []string{"u1-a"}, res.Suppressed)
	assert.Equal(t, "u1-b", res.Recipients[1].Recipient.SubUnitID)
}

func TestResolver_NoSuppressionWhenPayerLookupFailed(t *testing.T) {
	tok := newFakeTokenizer()
	tok.errs["tokP"] = types.NewAppError(types.ErrCodeUpstreamInvalidResult, "empty pii", nil)
	tok.ident["tokD"] = cfPayer

	unit := cartUnit("u1", "tokP", "tokD")
	res := newTestResolver(tok).Resolve(context.Background(), unit)

	require.Len(t, res.Recipients, 2)
	payer := res.Recipients[0]
	require.NotNil(t, payer.Outcome)
	assert.Equal(t, OutcomeNotNotified, payer.Outcome.Kind)
	assert.Equal(t, types.ReasonCodeTokenizerMapping, payer.Outcome.Reason.Code)
	assert.Nil(t, res.Recipients[1].Outcome)
	assert.Empty(t, res.Suppressed)
}

func TestTokenizerReasonCode(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, types.ReasonCodeTokenizerIO,
		tokenizerReasonCode(ctx, types.NewAppError(types.ErrCodeUpstreamTokenizer, "io", nil)))
	assert.Equal(t, types.ReasonCodeTokenizerMapping,
		tokenizerReasonCode(ctx, types.NewAppError(types.ErrCodeUpstreamInvalidResult, "bad", nil)))
	assert.Equal(t, types.ReasonCodeTokenizerUnexpected,
		tokenizerReasonCode(ctx, types.NewAppError(types.ErrCodeUpstreamRejected, "403", nil)))
	assert.Equal(t, types.ReasonCodeTokenizerUnexpected, tokenizerReasonCode(ctx, assert.AnError))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Equal(t, types.ReasonCodeCancelled, tokenizerReasonCode(cancelled, assert.AnError))
}
