package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shiksha/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient pushes per-channel usage charges to Stripe as invoice items.
// It calls the Stripe REST API directly through BaseClient rather than the
// SDK's transport so all outbound traffic shares the same resilience
// infrastructure; the SDK supplies the pinned API version.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient with default resilience settings.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClientOrDefault(httpClient),
		"stripe",
		DefaultRetryPolicy(),
		"Shiksha/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// InvoiceItemInput describes one usage line to attach to the customer's next
// invoice.
type InvoiceItemInput struct {
	CustomerID  string
	AmountPaise int64
	Currency    string // defaults to "inr"
	Description string
	// IdempotencyKey prevents double-billing when an export task retries.
	IdempotencyKey string
}

// CreateInvoiceItem posts one pending invoice item via POST /v1/invoiceitems.
// Returns the Stripe invoice item ID on success.
func (s *StripeClient) CreateInvoiceItem(ctx context.Context, input InvoiceItemInput) (string, error) {
	currency := input.Currency
	if currency == "" {
		currency = "inr"
	}

	params := url.Values{}
	params.Set("customer", input.CustomerID)
	params.Set("amount", strconv.FormatInt(input.AmountPaise, 10))
	params.Set("currency", currency)
	params.Set("description", input.Description)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/invoiceitems", strings.NewReader(params.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Stripe request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	if input.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", input.IdempotencyKey)
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return "", wrapProviderError("Stripe", types.ErrCodeUpstreamStripe, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateInvoiceItem")
	}

	var item struct {
		ID string `json:"id"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&item); decErr != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamStripe, "Stripe response unreadable", decErr)
	}
	return item.ID, nil
}

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	msg := string(body)
	if json.Unmarshal(body, &stripeErr) == nil && stripeErr.Error.Message != "" {
		msg = stripeErr.Error.Message
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, msg),
		nil,
		map[string]any{"stripe_code": stripeErr.Error.Code},
	)
}
