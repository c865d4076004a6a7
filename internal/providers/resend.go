package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shiksha/internal/types"
)

// resendAPIBase is the default Resend API base URL.
// Overridable in tests via ResendClientConfig.BaseURL.
const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
	BaseURL   string // Override for testing; defaults to resendAPIBase
	Logger    *slog.Logger
}

// ResendClient implements ChannelSender for EMAIL by making direct HTTP calls
// to the Resend /emails API through BaseClient. This routes all requests
// through the platform's resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type ResendClient struct {
	base      *BaseClient
	apiKey    string
	fromName  string
	fromEmail string
	baseURL   string
	logger    *slog.Logger
}

// NewResendClient creates a new ResendClient with default resilience settings.
func NewResendClient(httpClient *http.Client, cfg ResendClientConfig) *ResendClient {
	base := NewBaseClient(
		httpClientOrDefault(httpClient),
		"resend",
		DefaultRetryPolicy(),
		"Shiksha/1.0",
	)
	return NewResendClientWithBase(base, cfg)
}

// NewResendClientWithBase creates a ResendClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewResendClientWithBase(base *BaseClient, cfg ResendClientConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResendClient{
		base:      base,
		apiKey:    cfg.APIKey,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// Channel returns the channel this sender delivers on.
func (c *ResendClient) Channel() types.Channel { return types.ChannelEmail }

// resendSendPayload is the JSON request body for POST /emails.
type resendSendPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Tags    []resendTag       `json:"tags,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// resendSendResponse is the JSON success body: {"id": "..."}.
type resendSendResponse struct {
	ID string `json:"id"`
}

// Send transmits an email via Resend and returns the provider message ID on
// success. 4xx responses other than 429 come back as a FAILED SendResult so
// the dispatcher records them without aborting the job.
func (c *ResendClient) Send(ctx context.Context, msg Message) (*types.SendResult, error) {
	payload := resendSendPayload{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.Body,
	}
	if msg.ReferenceID != "" {
		payload.Tags = []resendTag{{Name: "reference_id", Value: msg.ReferenceID}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal Resend payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Resend request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapProviderError("Resend", types.ErrCodeUpstreamEmail, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var out resendSendResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
			// Delivery was accepted; a missing message ID is not a failure.
			c.logger.WarnContext(ctx, "resend response body unreadable", "error", decErr)
		}
		return &types.SendResult{
			ProviderMessageID: out.ID,
			Status:            types.SendStatusSent,
		}, nil
	}

	// Remaining 4xx: the provider rejected this particular message.
	detail := readErrorBody(resp.Body)
	c.logger.WarnContext(ctx, "resend rejected message",
		"status", resp.StatusCode,
		"detail", detail,
	)
	return &types.SendResult{
		Status:        types.SendStatusFailed,
		FailureReason: fmt.Sprintf("resend error (%d): %s", resp.StatusCode, detail),
	}, nil
}

// readErrorBody extracts a short diagnostic string from a provider error
// response, preferring a JSON "message" field when present.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "no response body"
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}

// wrapProviderError wraps a BaseClient transport error with provider context.
// AppErrors from BaseClient (circuit breaker, retries exhausted) pass through
// unchanged since they already carry the right upstream code.
func wrapProviderError(provider string, code types.ErrorCode, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(code, fmt.Sprintf("%s request failed: %v", provider, err), err)
}

// sendTimeout is a guard used by provider constructors that build their own
// http.Client when the caller passes nil.
const sendTimeout = 10 * time.Second

// httpClientOrDefault returns the given client, or a timeout-bounded default.
func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: sendTimeout}
}
