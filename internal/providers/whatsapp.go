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

// whatsappAPIBase is the default Meta Graph API base URL.
const whatsappAPIBase = "https://graph.facebook.com/v19.0"

// WhatsAppClientConfig holds the configuration for creating a WhatsAppClient.
type WhatsAppClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string // Override for testing; defaults to whatsappAPIBase
	Logger        *slog.Logger
}

// WhatsAppClient implements ChannelSender for WHATSAPP via the Meta Graph
// messages API on the WhatsApp Business Platform.
type WhatsAppClient struct {
	base          *BaseClient
	accessToken   string
	phoneNumberID string
	baseURL       string
	logger        *slog.Logger
}

// NewWhatsAppClient creates a new WhatsAppClient with default resilience settings.
func NewWhatsAppClient(httpClient *http.Client, cfg WhatsAppClientConfig) *WhatsAppClient {
	base := NewBaseClient(
		httpClientOrDefault(httpClient),
		"whatsapp",
		DefaultRetryPolicy(),
		"Shiksha/1.0",
	)
	return NewWhatsAppClientWithBase(base, cfg)
}

// NewWhatsAppClientWithBase creates a WhatsAppClient with a pre-configured
// BaseClient, for tests that control retry behavior.
func NewWhatsAppClientWithBase(base *BaseClient, cfg WhatsAppClientConfig) *WhatsAppClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = whatsappAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WhatsAppClient{
		base:          base,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// Channel returns the channel this sender delivers on.
func (c *WhatsAppClient) Channel() types.Channel { return types.ChannelWhatsApp }

// whatsappPayload is the JSON request body for POST /{phone_number_id}/messages.
type whatsappPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappText struct {
	Body string `json:"body"`
}

// whatsappResponse is the JSON success body.
type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send transmits a WhatsApp text message via the Meta Graph API and returns
// the provider message ID on success. Graph API 4xx rejections (invalid
// number, recipient opted out) come back as a FAILED SendResult.
func (c *WhatsAppClient) Send(ctx context.Context, msg Message) (*types.SendResult, error) {
	payload := whatsappPayload{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "text",
		Text:             whatsappText{Body: msg.Body},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal WhatsApp payload", err)
	}

	reqURL := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create WhatsApp request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapProviderError("WhatsApp", types.ErrCodeUpstreamWhatsApp, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readGraphError(resp)
		c.logger.WarnContext(ctx, "whatsapp rejected message",
			"status", resp.StatusCode,
			"detail", detail,
		)
		return &types.SendResult{
			Status:        types.SendStatusFailed,
			FailureReason: fmt.Sprintf("whatsapp error (%d): %s", resp.StatusCode, detail),
		}, nil
	}

	var out whatsappResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWhatsApp, "WhatsApp response unreadable", decErr)
	}

	result := &types.SendResult{Status: types.SendStatusSent}
	if len(out.Messages) > 0 {
		result.ProviderMessageID = out.Messages[0].ID
	}
	return result, nil
}

// readGraphError extracts the message from a Graph API error envelope:
// {"error": {"message": "...", "code": ...}}.
func readGraphError(resp *http.Response) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Error.Message == "" {
		return "no error detail"
	}
	return fmt.Sprintf("%s (code %d)", parsed.Error.Message, parsed.Error.Code)
}
