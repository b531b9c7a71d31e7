package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shilpkart/api/internal/platform/config"
)

const (
	razorpayDefaultBaseURL = "https://api.razorpay.com"
	razorpayMaxBody        = 1 << 20
)

// ErrRazorpayNotConfigured indicates the key pair is missing.
var ErrRazorpayNotConfigured = errors.New("payments: razorpay credentials missing")

// RazorpayProvider drives the hosted Razorpay checkout: it creates gateway
// orders server-side, verifies the signed client callback, and re-queries
// payment state for reconciliation. Amounts are paise throughout.
type RazorpayProvider struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

// RazorpayOption configures optional provider behaviour.
type RazorpayOption func(*RazorpayProvider)

// WithRazorpayHTTPClient overrides the HTTP client, mainly for tests.
func WithRazorpayHTTPClient(client *http.Client) RazorpayOption {
	return func(p *RazorpayProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// NewRazorpayProvider constructs the provider from configuration.
func NewRazorpayProvider(cfg config.RazorpayConfig, opts ...RazorpayOption) (*RazorpayProvider, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, ErrRazorpayNotConfigured
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = razorpayDefaultBaseURL
	}
	p := &RazorpayProvider{
		keyID:     strings.TrimSpace(cfg.KeyID),
		keySecret: strings.TrimSpace(cfg.KeySecret),
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayPaymentResponse struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Captured         bool   `json:"captured"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type razorpayErrorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateCheckoutSession creates a Razorpay order. The hosted checkout opens
// client-side keyed by the session ID; there is no redirect URL.
func (p *RazorpayProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}

	payload := razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  req.Metadata["order_id"],
		Notes:    req.Metadata,
	}

	var created razorpayOrderResponse
	if err := p.do(ctx, http.MethodPost, "/v1/orders", payload, &created); err != nil {
		return CheckoutSession{}, err
	}
	if created.ID == "" {
		return CheckoutSession{}, fmt.Errorf("payments: razorpay order response missing id")
	}

	return CheckoutSession{
		ID:        created.ID,
		Provider:  "razorpay",
		IntentID:  created.ID,
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		Raw: map[string]any{
			"keyId":    p.keyID,
			"amount":   created.Amount,
			"currency": created.Currency,
			"status":   created.Status,
		},
	}, nil
}

// VerifyCallback checks the HMAC-SHA256 signature Razorpay attaches to the
// hosted-checkout success callback: hex(hmac_sha256(orderID + "|" + paymentID)).
func (p *RazorpayProvider) VerifyCallback(req CallbackVerification) error {
	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return errors.New("payments: razorpay callback fields missing")
	}
	mac := hmac.New(sha256.New, []byte(p.keySecret))
	fmt.Fprintf(mac, "%s|%s", req.GatewayOrderID, req.PaymentID)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(req.Signature)))) {
		return errors.New("payments: razorpay callback signature mismatch")
	}
	return nil
}

// Confirm is not used for Razorpay; capture happens automatically or via Capture.
func (p *RazorpayProvider) Confirm(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	return p.LookupPayment(ctx, LookupRequest{IntentID: firstNonEmptyString(req.PaymentID, req.IntentID)})
}

// Capture captures an authorised payment for the given amount.
func (p *RazorpayProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if req.IntentID == "" {
		return PaymentDetails{}, errors.New("payments: razorpay capture requires a payment id")
	}
	payload := map[string]any{}
	if req.Amount != nil {
		payload["amount"] = *req.Amount
	}
	var resp razorpayPaymentResponse
	if err := p.do(ctx, http.MethodPost, "/v1/payments/"+req.IntentID+"/capture", payload, &resp); err != nil {
		return PaymentDetails{}, err
	}
	return p.toDetails(resp), nil
}

// Refund issues a full or partial refund against a captured payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if req.IntentID == "" {
		return PaymentDetails{}, errors.New("payments: razorpay refund requires a payment id")
	}
	payload := map[string]any{}
	if req.Amount != nil {
		payload["amount"] = *req.Amount
	}
	if req.Reason != "" {
		payload["notes"] = map[string]string{"reason": req.Reason}
	}
	var resp razorpayPaymentResponse
	if err := p.do(ctx, http.MethodPost, "/v1/payments/"+req.IntentID+"/refund", payload, &resp); err != nil {
		return PaymentDetails{}, err
	}
	details := p.toDetails(resp)
	details.Status = StatusRefunded
	return details, nil
}

// LookupPayment fetches current gateway state for a payment.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if req.IntentID == "" {
		return PaymentDetails{}, errors.New("payments: razorpay lookup requires a payment id")
	}
	var resp razorpayPaymentResponse
	if err := p.do(ctx, http.MethodGet, "/v1/payments/"+req.IntentID, nil, &resp); err != nil {
		return PaymentDetails{}, err
	}
	return p.toDetails(resp), nil
}

func (p *RazorpayProvider) toDetails(resp razorpayPaymentResponse) PaymentDetails {
	details := PaymentDetails{
		Provider: "razorpay",
		IntentID: resp.ID,
		Amount:   resp.Amount,
		Currency: strings.ToUpper(resp.Currency),
		Captured: resp.Captured,
		Raw: map[string]any{
			"orderId": resp.OrderID,
			"status":  resp.Status,
		},
	}
	switch strings.ToLower(resp.Status) {
	case "captured":
		details.Status = StatusSucceeded
		if resp.CreatedAt > 0 {
			at := time.Unix(resp.CreatedAt, 0).UTC()
			details.CapturedAt = &at
		}
	case "failed":
		details.Status = StatusFailed
		details.Raw["errorCode"] = resp.ErrorCode
		details.Raw["errorDescription"] = resp.ErrorDescription
	case "refunded":
		details.Status = StatusRefunded
	default:
		details.Status = StatusPending
	}
	return details
}

func (p *RazorpayProvider) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("payments: encode razorpay request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: build razorpay request: %w", err)
	}
	req.SetBasicAuth(p.keyID, p.keySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &GatewayError{Provider: "razorpay", Code: FailureNetworkError, RawMessage: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, razorpayMaxBody))
	if err != nil {
		return &GatewayError{Provider: "razorpay", Code: FailureNetworkError, RawMessage: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope razorpayErrorEnvelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
			return NewGatewayError("razorpay", envelope.Error.Code, envelope.Error.Description)
		}
		return NewGatewayError("razorpay", fmt.Sprintf("HTTP_%d", resp.StatusCode), strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payments: decode razorpay response: %w", err)
	}
	return nil
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
