package external

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Stubs let the notifier run locally without tokenizer or App IO credentials.
// They log every call and return predictable values.

// StubTokenizer treats a token as "tok_<identifier>" and returns the part
// after the prefix; any other token is returned unchanged.
type StubTokenizer struct {
	logger *slog.Logger
}

func NewStubTokenizer(logger *slog.Logger) *StubTokenizer {
	return &StubTokenizer{logger: logger}
}

func (s *StubTokenizer) Resolve(ctx context.Context, token string) (string, error) {
	s.logger.InfoContext(ctx, "stub: Resolve called")
	return strings.TrimPrefix(token, "tok_"), nil
}

// StubMessageProvider allows every sender and accepts every message.
type StubMessageProvider struct {
	logger *slog.Logger
}

func NewStubMessageProvider(logger *slog.Logger) *StubMessageProvider {
	return &StubMessageProvider{logger: logger}
}

func (s *StubMessageProvider) CheckEligibility(ctx context.Context, _ string) (*Profile, error) {
	s.logger.InfoContext(ctx, "stub: CheckEligibility called")
	return &Profile{SenderAllowed: true}, nil
}

func (s *StubMessageProvider) Submit(ctx context.Context, msg MessageRequest) (string, error) {
	id := fmt.Sprintf("msg_stub_%s", uuid.NewString())
	s.logger.InfoContext(ctx, "stub: Submit called",
		"message_id", id,
		"subject", msg.Content.Subject,
	)
	return id, nil
}
