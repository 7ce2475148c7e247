package external

import (
	"context"

	"receiptnotifier/internal/types"
)

// Tokenizer maps opaque fiscal-code tokens back to the clear identifier.
type Tokenizer interface {
	// Resolve returns the identifier behind token. Errors are *types.AppError;
	// StatusCode and IsRateLimited classify them.
	Resolve(ctx context.Context, token string) (string, error)
}

// MessageProvider is the App IO messaging API.
type MessageProvider interface {
	// CheckEligibility fetches the citizen profile. A nil profile with a nil
	// error never happens; an empty body is reported as an error.
	CheckEligibility(ctx context.Context, fiscalCode string) (*Profile, error)

	// Submit sends a message and returns the provider message id.
	Submit(ctx context.Context, req MessageRequest) (string, error)
}

// Profile is the subset of the App IO citizen profile the notifier reads.
type Profile struct {
	SenderAllowed bool `json:"sender_allowed"`
}

// MessageRequest is a message addressed to one citizen.
type MessageRequest struct {
	FiscalCode string
	Content    types.MessageContent
	// FeatureLevel is forwarded as feature_level_type; empty means STANDARD.
	FeatureLevel string
}
