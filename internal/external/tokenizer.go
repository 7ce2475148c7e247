package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"receiptnotifier/internal/types"
)

// TokenizerClientConfig holds the settings of the tokenizer client.
type TokenizerClientConfig struct {
	BaseURL   string
	APIKey    string
	RateLimit float64 // requests per second; 0 disables client-side limiting
	Burst     int
	Logger    *slog.Logger
}

// TokenizerClient resolves tokens through the personal-data vault REST API:
//
//	GET {base}/tokens/{token}/pii  ->  {"pii": "<fiscal code>"}
//
// Errors carry one of three codes: ErrCodeUpstreamTokenizer when no response
// was received, ErrCodeUpstreamRejected (or RateLimited) for an unexpected
// status, ErrCodeUpstreamInvalidResult when the body cannot be mapped.
type TokenizerClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewTokenizerClient(httpClient *http.Client, cfg TokenizerClientConfig) *TokenizerClient {
	return NewTokenizerClientWithBase(
		NewBaseClient(httpClient, "tokenizer", NoRetryPolicy(), "receipt-notifier/1.0"),
		cfg,
	)
}

// NewTokenizerClientWithBase lets tests control the BaseClient.
func NewTokenizerClientWithBase(base *BaseClient, cfg TokenizerClientConfig) *TokenizerClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	return &TokenizerClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter: limiter,
		logger:  logger,
	}
}

type piiResponse struct {
	PII string `json:"pii"`
}

// Resolve implements Tokenizer.
func (c *TokenizerClient) Resolve(ctx context.Context, token string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamTokenizer, "tokenizer rate limiter wait aborted", err)
	}

	reqURL := c.baseURL + "/tokens/" + url.PathEscape(token) + "/pii"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create tokenizer request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "tokenizer call failed",
			"unit_id", types.GetUnitID(ctx),
			"status", StatusCode(err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if StatusCode(err) == 0 {
			return "", types.NewAppError(types.ErrCodeUpstreamTokenizer, "tokenizer unreachable", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamTokenizer, "failed to read tokenizer response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", rejected(types.ErrCodeUpstreamRejected, "tokenizer", resp.StatusCode, body)
	}

	var out piiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamInvalidResult, "failed to decode tokenizer response", err)
	}
	if out.PII == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamInvalidResult, "tokenizer response has no pii", nil)
	}
	return out.PII, nil
}
