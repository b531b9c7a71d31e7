package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
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
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"
	phonePeRefundPath = "/pg/v1/refund"
	phonePeMaxBody    = 1 << 20
)

// ErrPhonePeNotConfigured indicates merchant credentials are missing.
var ErrPhonePeNotConfigured = errors.New("payments: phonepe credentials missing")

// PhonePeProvider drives the PhonePe PAY_PAGE flow: the shopper is redirected
// to the gateway and sent back to us afterwards, so final state always comes
// from a server-side status lookup rather than the return request itself.
type PhonePeProvider struct {
	merchantID  string
	saltKey     string
	saltIndex   string
	baseURL     string
	redirectURL string
	client      *http.Client
}

// PhonePeOption configures optional provider behaviour.
type PhonePeOption func(*PhonePeProvider)

// WithPhonePeHTTPClient overrides the HTTP client, mainly for tests.
func WithPhonePeHTTPClient(client *http.Client) PhonePeOption {
	return func(p *PhonePeProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// NewPhonePeProvider constructs the provider from configuration.
func NewPhonePeProvider(cfg config.PhonePeConfig, opts ...PhonePeOption) (*PhonePeProvider, error) {
	if strings.TrimSpace(cfg.MerchantID) == "" || strings.TrimSpace(cfg.SaltKey) == "" {
		return nil, ErrPhonePeNotConfigured
	}
	saltIndex := strings.TrimSpace(cfg.SaltIndex)
	if saltIndex == "" {
		saltIndex = "1"
	}
	p := &PhonePeProvider{
		merchantID:  strings.TrimSpace(cfg.MerchantID),
		saltKey:     strings.TrimSpace(cfg.SaltKey),
		saltIndex:   saltIndex,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	if p.baseURL == "" {
		return nil, errors.New("payments: phonepe base url is required")
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type phonePePayRequest struct {
	MerchantID            string                   `json:"merchantId"`
	MerchantTransactionID string                   `json:"merchantTransactionId"`
	MerchantUserID        string                   `json:"merchantUserId,omitempty"`
	Amount                int64                    `json:"amount"`
	RedirectURL           string                   `json:"redirectUrl"`
	RedirectMode          string                   `json:"redirectMode"`
	CallbackURL           string                   `json:"callbackUrl,omitempty"`
	PaymentInstrument     phonePePaymentInstrument `json:"paymentInstrument"`
}

type phonePePaymentInstrument struct {
	Type string `json:"type"`
}

type phonePeEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type phonePePayData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		Type         string `json:"type"`
		RedirectInfo struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type phonePeStatusData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// CreateCheckoutSession initiates a PAY_PAGE transaction. The caller's
// order ID doubles as the merchant transaction ID so the redirect return
// can be correlated without extra storage.
func (p *PhonePeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	txnID := req.Metadata["order_id"]
	if txnID == "" {
		txnID = req.IdempotencyKey
	}
	if txnID == "" {
		return CheckoutSession{}, errors.New("payments: phonepe session requires an order id")
	}

	redirectURL := req.SuccessURL
	if redirectURL == "" {
		redirectURL = p.redirectURL
	}

	payload := phonePePayRequest{
		MerchantID:            p.merchantID,
		MerchantTransactionID: txnID,
		MerchantUserID:        req.CustomerID,
		Amount:                req.Amount,
		RedirectURL:           redirectURL,
		RedirectMode:          "REDIRECT",
		PaymentInstrument:     phonePePaymentInstrument{Type: "PAY_PAGE"},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: encode phonepe request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: encode phonepe envelope: %w", err)
	}

	envelope, err := p.do(ctx, http.MethodPost, phonePePayPath, body, p.sign(encoded+phonePePayPath))
	if err != nil {
		return CheckoutSession{}, err
	}
	if !envelope.Success {
		return CheckoutSession{}, NewGatewayError("phonepe", envelope.Code, envelope.Message)
	}

	var data phonePePayData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return CheckoutSession{}, fmt.Errorf("payments: decode phonepe pay response: %w", err)
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return CheckoutSession{}, errors.New("payments: phonepe pay response missing redirect url")
	}

	return CheckoutSession{
		ID:          txnID,
		Provider:    "phonepe",
		IntentID:    txnID,
		RedirectURL: data.InstrumentResponse.RedirectInfo.URL,
		ExpiresAt:   time.Now().UTC().Add(15 * time.Minute),
		Raw: map[string]any{
			"redirectMethod": data.InstrumentResponse.RedirectInfo.Method,
		},
	}, nil
}

// Confirm is not part of the redirect flow; state comes from LookupPayment.
func (p *PhonePeProvider) Confirm(ctx context.Context, req ConfirmRequest) (PaymentDetails, error) {
	return p.LookupPayment(ctx, LookupRequest{IntentID: firstNonEmptyString(req.IntentID, req.PaymentID)})
}

// Capture is implicit with PhonePe PAY_PAGE; a successful status is captured.
func (p *PhonePeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	return p.LookupPayment(ctx, LookupRequest{IntentID: req.IntentID})
}

// Refund issues a refund against a completed transaction.
func (p *PhonePeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if req.IntentID == "" {
		return PaymentDetails{}, errors.New("payments: phonepe refund requires a transaction id")
	}
	amount := int64(0)
	if req.Amount != nil {
		amount = *req.Amount
	}
	payload := map[string]any{
		"merchantId":            p.merchantID,
		"merchantTransactionId": req.IntentID + "-refund",
		"originalTransactionId": req.IntentID,
		"amount":                amount,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("payments: encode phonepe refund: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("payments: encode phonepe envelope: %w", err)
	}

	envelope, err := p.do(ctx, http.MethodPost, phonePeRefundPath, body, p.sign(encoded+phonePeRefundPath))
	if err != nil {
		return PaymentDetails{}, err
	}
	if !envelope.Success {
		return PaymentDetails{}, NewGatewayError("phonepe", envelope.Code, envelope.Message)
	}
	return PaymentDetails{
		Provider: "phonepe",
		IntentID: req.IntentID,
		Status:   StatusRefunded,
		Amount:   amount,
		Currency: "INR",
	}, nil
}

// LookupPayment queries the transaction status endpoint. This is the source
// of truth after the shopper returns from the gateway.
func (p *PhonePeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if req.IntentID == "" {
		return PaymentDetails{}, errors.New("payments: phonepe lookup requires a transaction id")
	}
	path := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, p.merchantID, req.IntentID)

	envelope, err := p.do(ctx, http.MethodGet, path, nil, p.sign(path))
	if err != nil {
		return PaymentDetails{}, err
	}

	details := PaymentDetails{
		Provider: "phonepe",
		IntentID: req.IntentID,
		Currency: "INR",
		Raw: map[string]any{
			"code":    envelope.Code,
			"message": envelope.Message,
		},
	}

	var data phonePeStatusData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return PaymentDetails{}, fmt.Errorf("payments: decode phonepe status response: %w", err)
		}
		details.Amount = data.Amount
		details.Raw["transactionId"] = data.TransactionID
		details.Raw["state"] = data.State
		details.Raw["responseCode"] = data.ResponseCode
	}

	switch strings.ToUpper(envelope.Code) {
	case "PAYMENT_SUCCESS":
		details.Status = StatusSucceeded
		details.Captured = true
		now := time.Now().UTC()
		details.CapturedAt = &now
	case "PAYMENT_PENDING":
		details.Status = StatusPending
	default:
		details.Status = StatusFailed
	}
	return details, nil
}

// sign computes the X-VERIFY checksum: sha256(payload + saltKey) + "###" + saltIndex.
func (p *PhonePeProvider) sign(payload string) string {
	sum := sha256.Sum256([]byte(payload + p.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + p.saltIndex
}

func (p *PhonePeProvider) do(ctx context.Context, method, path string, body []byte, checksum string) (phonePeEnvelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return phonePeEnvelope{}, fmt.Errorf("payments: build phonepe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", checksum)
	req.Header.Set("X-MERCHANT-ID", p.merchantID)

	resp, err := p.client.Do(req)
	if err != nil {
		return phonePeEnvelope{}, &GatewayError{Provider: "phonepe", Code: FailureNetworkError, RawMessage: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, phonePeMaxBody))
	if err != nil {
		return phonePeEnvelope{}, &GatewayError{Provider: "phonepe", Code: FailureNetworkError, RawMessage: err.Error()}
	}

	var envelope phonePeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return phonePeEnvelope{}, NewGatewayError("phonepe", fmt.Sprintf("HTTP_%d", resp.StatusCode), strings.TrimSpace(string(data)))
		}
		return phonePeEnvelope{}, fmt.Errorf("payments: decode phonepe response: %w", err)
	}
	return envelope, nil
}
