package receipt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receiptnotifier/internal/types"
)

func TestDelivery_Notify(t *testing.T) {
	rcpt := Recipient{Identifier: cfDebtor1, Role: types.RoleDebtor}

	tests := []struct {
		name      string
		setup     func(p *mockProvider)
		templates stubTemplates
		wantKind  OutcomeKind
		wantCode  int
		wantID    string
	}{
		{
			name: "submitted",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(allowed(), nil)
				p.On("Submit", mock.Anything, submitTo(cfDebtor1)).Return("01HX", nil)
			},
			wantKind: OutcomeNotified,
			wantID:   "01HX",
		},
		{
			name: "sender not allowed",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(notAllowed(), nil)
			},
			wantKind: OutcomeNotToBeNotified,
		},
		{
			name: "eligibility error",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(nil, upstreamStatus(404))
			},
			wantKind: OutcomeNotNotified,
			wantCode: types.ReasonCodeGeneric,
		},
		{
			name: "empty profile",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(nil, nil)
			},
			wantKind: OutcomeNotNotified,
			wantCode: types.ReasonCodeGeneric,
		},
		{
			name: "render failure",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(allowed(), nil)
			},
			templates: stubTemplates{err: ErrMissingTemplateFields},
			wantKind:  OutcomeNotNotified,
			wantCode:  types.ReasonCodeGeneric,
		},
		{
			name: "submit rejected",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(allowed(), nil)
				p.On("Submit", mock.Anything, mock.Anything).Return("", upstreamStatus(400))
			},
			wantKind: OutcomeNotNotified,
			wantCode: 400,
		},
		{
			name: "submit io failure",
			setup: func(p *mockProvider) {
				p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(allowed(), nil)
				p.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("connection reset by peer"))
			},
			wantKind: OutcomeNotNotified,
			wantCode: types.ReasonCodeProviderIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			tt.setup(p)
			d := NewDelivery(p, tt.templates, time.Second, nopLogger{})

			got := d.Notify(context.Background(), receiptUnit("u1", "tok1"), rcpt)

			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantID, got.MessageID)
			if tt.wantCode != 0 {
				require.NotNil(t, got.Reason)
				assert.Equal(t, tt.wantCode, got.Reason.Code)
			} else {
				assert.Nil(t, got.Reason)
			}
			p.AssertExpectations(t)
		})
	}
}

func TestDelivery_CancelledContext(t *testing.T) {
	p := &mockProvider{}
	p.On("CheckEligibility", mock.Anything, cfDebtor1).Return(nil, context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDelivery(p, stubTemplates{}, time.Second, nopLogger{})
	got := d.Notify(ctx, receiptUnit("u1", "tok1"), Recipient{Identifier: cfDebtor1, Role: types.RoleDebtor})

	require.Equal(t, OutcomeNotNotified, got.Kind)
	assert.Equal(t, types.ReasonCodeCancelled, got.Reason.Code)
}

func TestDelivery_SubmitCarriesRenderedContent(t *testing.T) {
	p := &mockProvider{}
	p.On("CheckEligibility", mock.Anything, cfPayer).Return(allowed(), nil)
	p.On("Submit", mock.Anything, submitTo(cfPayer)).Return("m1", nil)

	d := NewDelivery(p, stubTemplates{}, time.Second, nopLogger{})
	got := d.Notify(context.Background(), receiptUnit("u9", "tok1"), Recipient{Identifier: cfPayer, Role: types.RolePayer})

	require.Equal(t, OutcomeNotified, got.Kind)
	assert.Equal(t, "Ricevuta u9", got.Content.Subject)
	assert.Equal(t, "PAYER ", got.Content.Markdown)
}
