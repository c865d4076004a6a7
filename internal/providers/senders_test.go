package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shiksha/internal/types"
)

func TestFast2SMSSend_Success(t *testing.T) {
	var receivedAuth string
	var receivedPayload fast2smsPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dev/bulkV2" {
			t.Errorf("expected path /dev/bulkV2, got %s", r.URL.Path)
		}
		receivedAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(fast2smsResponse{Return: true, RequestID: "req_77"})
	}))
	defer server.Close()

	client := NewFast2SMSClientWithBase(newTestBaseClient(0), Fast2SMSClientConfig{
		APIKey:  "f2s_key",
		BaseURL: server.URL,
	})
	result, err := client.Send(context.Background(), Message{To: "+919876543210", Body: "Fee due"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if result.Status != types.SendStatusSent {
		t.Errorf("status = %q, want SENT", result.Status)
	}
	if result.ProviderMessageID != "req_77" {
		t.Errorf("provider message ID = %q, want req_77", result.ProviderMessageID)
	}
	if receivedAuth != "f2s_key" {
		t.Errorf("auth header = %q, want raw API key", receivedAuth)
	}
	if receivedPayload.Numbers != "9876543210" {
		t.Errorf("numbers = %q, want +91 stripped", receivedPayload.Numbers)
	}
	if receivedPayload.Route != "q" {
		t.Errorf("route = %q, want q", receivedPayload.Route)
	}
}

func TestFast2SMSSend_ReturnFalseBecomesFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fast2smsResponse{Return: false, Message: []string{"Invalid number"}})
	}))
	defer server.Close()

	client := NewFast2SMSClientWithBase(newTestBaseClient(0), Fast2SMSClientConfig{BaseURL: server.URL})
	result, err := client.Send(context.Background(), Message{To: "12345", Body: "x"})
	if err != nil {
		t.Fatalf("return=false should not be an error: %v", err)
	}

	if result.Status != types.SendStatusFailed {
		t.Errorf("status = %q, want FAILED", result.Status)
	}
	if result.FailureReason != "fast2sms: Invalid number" {
		t.Errorf("failure reason = %q", result.FailureReason)
	}
}

func TestNormalizeIndianNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+919876543210", "9876543210"},
		{"919876543210", "9876543210"},
		{"9876543210", "9876543210"},
		{" +919876543210 ", "9876543210"},
	}
	for _, tc := range cases {
		if got := normalizeIndianNumber(tc.in); got != tc.want {
			t.Errorf("normalizeIndianNumber(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWhatsAppSend_Success(t *testing.T) {
	var receivedPayload whatsappPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1234567890/messages" {
			t.Errorf("expected phone number ID in path, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer wa_token" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.xyz"}},
		})
	}))
	defer server.Close()

	client := NewWhatsAppClientWithBase(newTestBaseClient(0), WhatsAppClientConfig{
		AccessToken:   "wa_token",
		PhoneNumberID: "1234567890",
		BaseURL:       server.URL,
	})
	result, err := client.Send(context.Background(), Message{To: "+919876543210", Body: "Notice published"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if result.Status != types.SendStatusSent {
		t.Errorf("status = %q, want SENT", result.Status)
	}
	if result.ProviderMessageID != "wamid.xyz" {
		t.Errorf("provider message ID = %q", result.ProviderMessageID)
	}
	if receivedPayload.MessagingProduct != "whatsapp" {
		t.Errorf("messaging_product = %q", receivedPayload.MessagingProduct)
	}
	if receivedPayload.To != "919876543210" {
		t.Errorf("to = %q, want leading + stripped", receivedPayload.To)
	}
}

func TestWhatsAppSend_GraphRejectionBecomesFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Recipient is not a valid WhatsApp user", "code": 131026},
		})
	}))
	defer server.Close()

	client := NewWhatsAppClientWithBase(newTestBaseClient(0), WhatsAppClientConfig{
		PhoneNumberID: "1234567890",
		BaseURL:       server.URL,
	})
	result, err := client.Send(context.Background(), Message{To: "+15550001111", Body: "x"})
	if err != nil {
		t.Fatalf("graph rejection should not be an error: %v", err)
	}

	if result.Status != types.SendStatusFailed {
		t.Errorf("status = %q, want FAILED", result.Status)
	}
	if result.FailureReason == "" {
		t.Error("failure reason should carry the graph error detail")
	}
}

func TestFCMSend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fcm/send" {
			t.Errorf("expected path /fcm/send, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "key=fcm_server_key" {
			t.Errorf("auth header = %q", auth)
		}
		json.NewEncoder(w).Encode(fcmResponse{
			Success: 1,
			Results: []struct {
				MessageID string `json:"message_id"`
				Error     string `json:"error"`
			}{{MessageID: "0:147"}},
		})
	}))
	defer server.Close()

	client := NewFCMClientWithBase(newTestBaseClient(0), FCMClientConfig{
		ServerKey: "fcm_server_key",
		BaseURL:   server.URL,
	})
	result, err := client.Send(context.Background(), Message{
		To:      "device-token-1",
		Subject: "Exam Reminder",
		Body:    "Maths exam tomorrow",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if result.Status != types.SendStatusSent {
		t.Errorf("status = %q, want SENT", result.Status)
	}
	if result.ProviderMessageID != "0:147" {
		t.Errorf("provider message ID = %q", result.ProviderMessageID)
	}
}

func TestFCMSend_StaleTokenBecomesFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fcmResponse{
			Failure: 1,
			Results: []struct {
				MessageID string `json:"message_id"`
				Error     string `json:"error"`
			}{{Error: "NotRegistered"}},
		})
	}))
	defer server.Close()

	client := NewFCMClientWithBase(newTestBaseClient(0), FCMClientConfig{BaseURL: server.URL})
	result, err := client.Send(context.Background(), Message{To: "stale-token", Body: "x"})
	if err != nil {
		t.Fatalf("stale token should not be an error: %v", err)
	}

	if result.Status != types.SendStatusFailed {
		t.Errorf("status = %q, want FAILED", result.Status)
	}
	if result.FailureReason != "fcm: NotRegistered" {
		t.Errorf("failure reason = %q", result.FailureReason)
	}
}

func TestStripeCreateInvoiceItem_Success(t *testing.T) {
	var receivedIdem string
	var receivedForm map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/invoiceitems" {
			t.Errorf("expected path /v1/invoiceitems, got %s", r.URL.Path)
		}
		receivedIdem = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		receivedForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]string{"id": "ii_123"})
	}))
	defer server.Close()

	client := NewStripeClientWithBase(newTestBaseClient(0), StripeClientConfig{
		SecretKey: "sk_test_abc",
		BaseURL:   server.URL,
	})
	id, err := client.CreateInvoiceItem(context.Background(), InvoiceItemInput{
		CustomerID:     "cus_42",
		AmountPaise:    1550,
		Description:    "SMS usage 2026-08",
		IdempotencyKey: "billing-org1-2026-08-SMS",
	})
	if err != nil {
		t.Fatalf("CreateInvoiceItem() error: %v", err)
	}

	if id != "ii_123" {
		t.Errorf("invoice item ID = %q, want ii_123", id)
	}
	if receivedIdem != "billing-org1-2026-08-SMS" {
		t.Errorf("idempotency key = %q", receivedIdem)
	}
	if got := receivedForm["amount"]; len(got) != 1 || got[0] != "1550" {
		t.Errorf("amount = %v, want [1550]", got)
	}
	if got := receivedForm["currency"]; len(got) != 1 || got[0] != "inr" {
		t.Errorf("currency = %v, want default inr", got)
	}
}

func TestStripeCreateInvoiceItem_ErrorMapsToAppError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(stripeErrorResponse{
			Error: stripeErrorBody{Type: "invalid_request_error", Code: "customer_missing", Message: "No such customer"},
		})
	}))
	defer server.Close()

	client := NewStripeClientWithBase(newTestBaseClient(0), StripeClientConfig{BaseURL: server.URL})
	_, err := client.CreateInvoiceItem(context.Background(), InvoiceItemInput{CustomerID: "cus_missing", AmountPaise: 100})
	if err == nil {
		t.Fatal("expected error for Stripe rejection")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error should be *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamStripe {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamStripe)
	}
	if appErr.Details["stripe_code"] != "customer_missing" {
		t.Errorf("stripe_code detail = %v", appErr.Details["stripe_code"])
	}
}
