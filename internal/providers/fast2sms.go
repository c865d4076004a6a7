package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"shiksha/internal/types"
)

// fast2smsAPIBase is the default Fast2SMS API base URL.
const fast2smsAPIBase = "https://www.fast2sms.com"

// Fast2SMSClientConfig holds the configuration for creating a Fast2SMSClient.
type Fast2SMSClientConfig struct {
	APIKey   string
	SenderID string
	BaseURL  string // Override for testing; defaults to fast2smsAPIBase
	Logger   *slog.Logger
}

// Fast2SMSClient implements ChannelSender for SMS via the Fast2SMS bulkV2 API.
// Fast2SMS is India-focused and expects bare 10-digit numbers; the client
// strips a leading +91 country code before sending.
type Fast2SMSClient struct {
	base     *BaseClient
	apiKey   string
	senderID string
	baseURL  string
	logger   *slog.Logger
}

// NewFast2SMSClient creates a new Fast2SMSClient with default resilience settings.
func NewFast2SMSClient(httpClient *http.Client, cfg Fast2SMSClientConfig) *Fast2SMSClient {
	base := NewBaseClient(
		httpClientOrDefault(httpClient),
		"fast2sms",
		DefaultRetryPolicy(),
		"Shiksha/1.0",
	)
	return NewFast2SMSClientWithBase(base, cfg)
}

// NewFast2SMSClientWithBase creates a Fast2SMSClient with a pre-configured
// BaseClient, for tests that control retry behavior.
func NewFast2SMSClientWithBase(base *BaseClient, cfg Fast2SMSClientConfig) *Fast2SMSClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fast2smsAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Fast2SMSClient{
		base:     base,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
	}
}

// Channel returns the channel this sender delivers on.
func (c *Fast2SMSClient) Channel() types.Channel { return types.ChannelSMS }

// fast2smsPayload is the JSON request body for POST /dev/bulkV2.
type fast2smsPayload struct {
	Route   string `json:"route"`
	Message string `json:"message"`
	Numbers string `json:"numbers"`
}

// fast2smsResponse is the JSON response body.
type fast2smsResponse struct {
	Return    bool     `json:"return"`
	RequestID string   `json:"request_id"`
	Message   []string `json:"message"`
}

// Send transmits an SMS via Fast2SMS. A response with return=false is a
// provider-side rejection and comes back as a FAILED SendResult.
func (c *Fast2SMSClient) Send(ctx context.Context, msg Message) (*types.SendResult, error) {
	payload := fast2smsPayload{
		Route:   "q",
		Message: msg.Body,
		Numbers: normalizeIndianNumber(msg.To),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal Fast2SMS payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dev/bulkV2", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Fast2SMS request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapProviderError("Fast2SMS", types.ErrCodeUpstreamSMS, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readErrorBody(resp.Body)
		c.logger.WarnContext(ctx, "fast2sms rejected message",
			"status", resp.StatusCode,
			"detail", detail,
		)
		return &types.SendResult{
			Status:        types.SendStatusFailed,
			FailureReason: fmt.Sprintf("fast2sms error (%d): %s", resp.StatusCode, detail),
		}, nil
	}

	var out fast2smsResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSMS, "Fast2SMS response unreadable", decErr)
	}

	if !out.Return {
		reason := "request rejected"
		if len(out.Message) > 0 {
			reason = out.Message[0]
		}
		return &types.SendResult{
			Status:        types.SendStatusFailed,
			FailureReason: "fast2sms: " + reason,
		}, nil
	}

	return &types.SendResult{
		ProviderMessageID: out.RequestID,
		Status:            types.SendStatusSent,
	}, nil
}

// normalizeIndianNumber strips a leading +91 or 91 country prefix, leaving
// the bare 10-digit number Fast2SMS expects.
func normalizeIndianNumber(number string) string {
	n := strings.TrimSpace(number)
	n = strings.TrimPrefix(n, "+91")
	if len(n) == 12 && strings.HasPrefix(n, "91") {
		n = n[2:]
	}
	return n
}
