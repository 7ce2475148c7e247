package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"receiptnotifier/internal/types"
)

// AppIOClientConfig holds the settings of the App IO client.
type AppIOClientConfig struct {
	BaseURL         string
	SubscriptionKey string
	Logger          *slog.Logger
}

// AppIOClient implements MessageProvider against the App IO services API:
//
//	POST {base}/profiles  {"fiscal_code": ...}             -> {"sender_allowed": bool}
//	POST {base}/messages  {"fiscal_code": ..., "content"}  -> {"id": ...}
type AppIOClient struct {
	base    *BaseClient
	key     string
	baseURL string
	logger  *slog.Logger
}

func NewAppIOClient(httpClient *http.Client, cfg AppIOClientConfig) *AppIOClient {
	return NewAppIOClientWithBase(
		NewBaseClient(httpClient, "app-io", NoRetryPolicy(), "receipt-notifier/1.0"),
		cfg,
	)
}

// NewAppIOClientWithBase lets tests control the BaseClient.
func NewAppIOClientWithBase(base *BaseClient, cfg AppIOClientConfig) *AppIOClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AppIOClient{
		base:    base,
		key:     cfg.SubscriptionKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

type profileRequest struct {
	FiscalCode string `json:"fiscal_code"`
}

type messagePayload struct {
	FiscalCode       string         `json:"fiscal_code"`
	FeatureLevelType string         `json:"feature_level_type"`
	Content          messageContent `json:"content"`
}

type messageContent struct {
	Subject  string `json:"subject"`
	Markdown string `json:"markdown"`
}

type messageCreated struct {
	ID string `json:"id"`
}

// CheckEligibility implements MessageProvider.
func (c *AppIOClient) CheckEligibility(ctx context.Context, fiscalCode string) (*Profile, error) {
	status, body, err := c.post(ctx, "/profiles", profileRequest{FiscalCode: fiscalCode})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, rejected(types.ErrCodeUpstreamRejected, "app io profiles", status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamInvalidResult, "app io returned an empty profile", nil,
			map[string]any{detailUpstreamStatus: status})
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamInvalidResult, "failed to decode app io profile", err)
	}
	return &p, nil
}

// Submit implements MessageProvider.
func (c *AppIOClient) Submit(ctx context.Context, msg MessageRequest) (string, error) {
	level := msg.FeatureLevel
	if level == "" {
		level = "STANDARD"
	}
	status, body, err := c.post(ctx, "/messages", messagePayload{
		FiscalCode:       msg.FiscalCode,
		FeatureLevelType: level,
		Content: messageContent{
			Subject:  msg.Content.Subject,
			Markdown: msg.Content.Markdown,
		},
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", rejected(types.ErrCodeUpstreamRejected, "app io messages", status, body)
	}

	var out messageCreated
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamInvalidResult, "app io accepted the message without an id", err,
			map[string]any{detailUpstreamStatus: status})
	}
	return out.ID, nil
}

// post sends a JSON body and returns status and body. Transport failures and
// persistent 429/5xx come back as err.
func (c *AppIOClient) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal app io payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create app io request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "app io call failed",
			"unit_id", types.GetUnitID(ctx),
			"path", path,
			"status", StatusCode(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to read app io response", err)
	}
	return resp.StatusCode, body, nil
}
