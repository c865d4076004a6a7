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

// fcmAPIBase is the default Firebase Cloud Messaging base URL.
const fcmAPIBase = "https://fcm.googleapis.com"

// FCMClientConfig holds the configuration for creating an FCMClient.
type FCMClientConfig struct {
	ServerKey string
	BaseURL   string // Override for testing; defaults to fcmAPIBase
	Logger    *slog.Logger
}

// FCMClient implements ChannelSender for PUSH via Firebase Cloud Messaging.
// Push delivery is free on the rate card but still writes a send row per
// attempt so a device-token audit trail exists.
type FCMClient struct {
	base      *BaseClient
	serverKey string
	baseURL   string
	logger    *slog.Logger
}

// NewFCMClient creates a new FCMClient with default resilience settings.
func NewFCMClient(httpClient *http.Client, cfg FCMClientConfig) *FCMClient {
	base := NewBaseClient(
		httpClientOrDefault(httpClient),
		"fcm",
		DefaultRetryPolicy(),
		"Shiksha/1.0",
	)
	return NewFCMClientWithBase(base, cfg)
}

// NewFCMClientWithBase creates an FCMClient with a pre-configured BaseClient.
func NewFCMClientWithBase(base *BaseClient, cfg FCMClientConfig) *FCMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fcmAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FCMClient{
		base:      base,
		serverKey: cfg.ServerKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// Channel returns the channel this sender delivers on.
func (c *FCMClient) Channel() types.Channel { return types.ChannelPush }

// fcmPayload is the JSON request body for POST /fcm/send.
type fcmPayload struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// fcmResponse is the JSON response body. Success carries one result with a
// message_id; failures carry an error string per result.
type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send delivers a push notification to one device token. A stale or
// unregistered token comes back as a FAILED SendResult rather than an error.
func (c *FCMClient) Send(ctx context.Context, msg Message) (*types.SendResult, error) {
	payload := fcmPayload{
		To: msg.To,
		Notification: fcmNotification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal FCM payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fcm/send", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create FCM request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapProviderError("FCM", types.ErrCodeUpstreamPush, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readErrorBody(resp.Body)
		c.logger.WarnContext(ctx, "fcm rejected message",
			"status", resp.StatusCode,
			"detail", detail,
		)
		return &types.SendResult{
			Status:        types.SendStatusFailed,
			FailureReason: fmt.Sprintf("fcm error (%d): %s", resp.StatusCode, detail),
		}, nil
	}

	var out fcmResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPush, "FCM response unreadable", decErr)
	}

	if out.Failure > 0 || out.Success == 0 {
		reason := "delivery failed"
		if len(out.Results) > 0 && out.Results[0].Error != "" {
			reason = out.Results[0].Error
		}
		return &types.SendResult{
			Status:        types.SendStatusFailed,
			FailureReason: "fcm: " + reason,
		}, nil
	}

	result := &types.SendResult{Status: types.SendStatusSent}
	if len(out.Results) > 0 {
		result.ProviderMessageID = out.Results[0].MessageID
	}
	return result, nil
}
