package external

import (
	"log/slog"
	"net/http"
	"time"

	"receiptnotifier/internal/config"
	"receiptnotifier/internal/security"
)

// ClientRegistry holds the outbound clients of the notifier.
type ClientRegistry struct {
	Tokenizer Tokenizer
	Messages  MessageProvider
}

// NewClientRegistry builds the tokenizer and App IO clients from cfg. In the
// local environment a client whose credential is missing is replaced by its
// stub, so the notifier boots without any secret.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	local := cfg.Environment == "local"
	stubLogger := logger.With("mode", "stub")

	reg := &ClientRegistry{}

	if local && cfg.Tokenizer.APIKey.IsZero() {
		logger.Warn("TOKENIZER_API_KEY not set, using stub tokenizer")
		reg.Tokenizer = NewStubTokenizer(stubLogger)
	} else {
		reg.Tokenizer = NewTokenizerClientWithBase(
			NewBaseClient(httpClient(local, cfg.Tokenizer.Timeout), "tokenizer", NoRetryPolicy(), cfg.AppIO.UserAgent),
			TokenizerClientConfig{
				BaseURL:   cfg.Tokenizer.BaseURL,
				APIKey:    cfg.Tokenizer.APIKey.Unmask(),
				RateLimit: cfg.Tokenizer.RateLimit,
				Burst:     cfg.Tokenizer.Burst,
				Logger:    logger.With("client", "tokenizer"),
			},
		)
	}

	if local && cfg.AppIO.SubscriptionKey.IsZero() {
		logger.Warn("IO_API_SUBSCRIPTION_KEY not set, using stub message provider")
		reg.Messages = NewStubMessageProvider(stubLogger)
	} else {
		reg.Messages = NewAppIOClientWithBase(
			NewBaseClient(httpClient(local, cfg.AppIO.Timeout), "app-io", NoRetryPolicy(), cfg.AppIO.UserAgent),
			AppIOClientConfig{
				BaseURL:         cfg.AppIO.BaseURL,
				SubscriptionKey: cfg.AppIO.SubscriptionKey.Unmask(),
				Logger:          logger.With("client", "app-io"),
			},
		)
	}

	return reg
}

// httpClient returns the egress-guarded client outside local, where the
// upstreams are often mocks listening on localhost.
func httpClient(local bool, timeout time.Duration) *http.Client {
	if local {
		return &http.Client{Timeout: timeout}
	}
	return security.NewEgressClient(timeout)
}
