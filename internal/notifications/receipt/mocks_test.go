package receipt

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"receiptnotifier/internal/external"
	"receiptnotifier/internal/types"
)

const (
	cfPayer   = "RSSMRA80A01H501U"
	cfDebtor1 = "VRDGPP75B12F205X"
	cfDebtor2 = "BNCLRA90C41L219K"
)

// --- Logger ---

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (l nopLogger) With(...any) types.Logger { return l }

// --- Clock ---

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// --- Tokenizer ---

// fakeTokenizer resolves tokens from a table. Tokens listed in errs fail with
// that error; unknown tokens resolve to themselves.
type fakeTokenizer struct {
	mu    sync.Mutex
	ident map[string]string
	errs  map[string]error
	calls map[string]int
}

func newFakeTokenizer() *fakeTokenizer {
	return &fakeTokenizer{
		ident: map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeTokenizer) Resolve(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[token]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.errs[token]; ok {
		return "", err
	}
	if id, ok := f.ident[token]; ok {
		return id, nil
	}
	return token, nil
}

func (f *fakeTokenizer) callCount(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[token]
}

// --- Provider ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CheckEligibility(ctx context.Context, fiscalCode string) (*external.Profile, error) {
	args := m.Called(ctx, fiscalCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*external.Profile), args.Error(1)
}

func (m *mockProvider) Submit(ctx context.Context, msg external.MessageRequest) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func allowed() *external.Profile    { return &external.Profile{SenderAllowed: true} }
func notAllowed() *external.Profile { return &external.Profile{SenderAllowed: false} }

// submitTo matches a submission addressed to fiscalCode.
func submitTo(fiscalCode string) any {
	return mock.MatchedBy(func(msg external.MessageRequest) bool { return msg.FiscalCode == fiscalCode })
}

// --- Stores ---

type slotKey struct {
	unitID, subUnitID string
	role              types.RecipientRole
}

// memMessageStore is an in-memory MessageStore with the same
// insert-if-absent semantics as the database repository.
type memMessageStore struct {
	mu        sync.Mutex
	records   map[slotKey]*types.MessageRecord
	findErr   error
	upsertErr error
	finds     int
	upserts   int
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{records: map[slotKey]*types.MessageRecord{}}
}

func (s *memMessageStore) Find(_ context.Context, unitID, subUnitID string, role types.RecipientRole) (*types.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.records[slotKey{unitID, subUnitID, role}], nil
}

func (s *memMessageStore) UpsertBatch(_ context.Context, records []*types.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, r := range records {
		k := slotKey{r.UnitID, r.SubUnitID, r.Role}
		if _, exists := s.records[k]; !exists {
			s.records[k] = r
		}
	}
	return nil
}

func (s *memMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memUnitStore struct {
	mu      sync.Mutex
	written []*types.NotifiableUnit
	err     error
	calls   int
}

func (s *memUnitStore) UpsertBatch(_ context.Context, units []*types.NotifiableUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, units...)
	return nil
}

// --- Requeuer ---

type mockRequeuer struct {
	mock.Mock
}

func (m *mockRequeuer) Requeue(ctx context.Context, unit *types.NotifiableUnit) error {
	return m.Called(ctx, unit).Error(0)
}

// --- Templates ---

type stubTemplates struct {
	err error
}

func (s stubTemplates) Render(unit *types.NotifiableUnit, rcpt Recipient) (types.MessageContent, error) {
	if s.err != nil {
		return types.MessageContent{}, s.err
	}
	return types.MessageContent{
		Subject:  "Ricevuta " + unit.ID,
		Markdown: string(rcpt.Role) + " " + rcpt.SubUnitID,
	}, nil
}

// --- Fixtures ---

func receiptUnit(id, debtorToken string) *types.NotifiableUnit {
	return &types.NotifiableUnit{
		ID:     id,
		Kind:   types.UnitKindReceipt,
		Status: types.StatusGenerated,
		Debtors: []types.DebtorItem{
			{FiscalCode: debtorToken, Subject: "TARI 2025", Amount: "120,00", PayeeName: "Comune di Roma"},
		},
		Payment: types.PaymentInfo{PayeeName: "Comune di Roma", TotalAmount: "120,00"},
	}
}

func cartUnit(id, payerToken string, debtorTokens ...string) *types.NotifiableUnit {
	u := &types.NotifiableUnit{
		ID:              id,
		Kind:            types.UnitKindCart,
		Status:          types.StatusGenerated,
		PayerFiscalCode: payerToken,
		Payment:         types.PaymentInfo{PayeeName: "PagoPA", TotalAmount: "200,00"},
	}
	for i, tok := range debtorTokens {
		u.Debtors = append(u.Debtors, types.DebtorItem{
			SubUnitID:  id + "-" + string(rune('a'+i)),
			FiscalCode: tok,
			Subject:    "Pagamento",
			Amount:     "100,00",
			PayeeName:  "Ente",
		})
	}
	return u
}
