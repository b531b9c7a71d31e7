package payments

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shilpkart/api/internal/platform/config"
)

func newPhonePeTestProvider(t *testing.T, handler http.HandlerFunc) *PhonePeProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewPhonePeProvider(config.PhonePeConfig{
		MerchantID:  "M12TEST",
		SaltKey:     "test-salt-key",
		SaltIndex:   "2",
		BaseURL:     server.URL,
		RedirectURL: "https://shop.example/payment/return",
	}, WithPhonePeHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new phonepe provider: %v", err)
	}
	return provider
}

func phonePeChecksum(payload, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(payload + saltKey))
	return hex.EncodeToString(sum[:]) + "###" + saltIndex
}

func TestPhonePeRequiresConfiguration(t *testing.T) {
	if _, err := NewPhonePeProvider(config.PhonePeConfig{MerchantID: "M12TEST"}); !errors.Is(err, ErrPhonePeNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if _, err := NewPhonePeProvider(config.PhonePeConfig{MerchantID: "M12TEST", SaltKey: "k"}); err == nil {
		t.Fatalf("expected missing base url error")
	}
}

func TestPhonePeCreateCheckoutSession(t *testing.T) {
	provider := newPhonePeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/pg/v1/pay" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MERCHANT-ID") != "M12TEST" {
			t.Fatalf("missing merchant header")
		}

		var body struct {
			Request string `json:"request"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if got, want := r.Header.Get("X-VERIFY"), phonePeChecksum(body.Request+"/pg/v1/pay", "test-salt-key", "2"); got != want {
			t.Fatalf("checksum mismatch: got %s want %s", got, want)
		}

		raw, err := base64.StdEncoding.DecodeString(body.Request)
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		var payload phonePePayRequest
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.MerchantTransactionID != "ord_1" || payload.Amount != 31600 {
			t.Fatalf("unexpected payload %+v", payload)
		}
		if payload.RedirectURL != "https://shop.example/payment/return" {
			t.Fatalf("expected configured redirect url, got %s", payload.RedirectURL)
		}
		if payload.PaymentInstrument.Type != "PAY_PAGE" {
			t.Fatalf("expected PAY_PAGE instrument, got %s", payload.PaymentInstrument.Type)
		}

		fmt.Fprint(w, `{"success":true,"code":"PAYMENT_INITIATED","message":"ok","data":{
			"merchantTransactionId":"ord_1",
			"instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://pg.example/pay/abc","method":"GET"}}
		}}`)
	})

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:   31600,
		Metadata: map[string]string{"order_id": "ord_1"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "ord_1" || session.IntentID != "ord_1" {
		t.Fatalf("session must be keyed by the merchant transaction id, got %+v", session)
	}
	if session.RedirectURL != "https://pg.example/pay/abc" {
		t.Fatalf("unexpected redirect url %s", session.RedirectURL)
	}
}

func TestPhonePeCreateSessionRequiresOrderID(t *testing.T) {
	provider := newPhonePeTestProvider(t, func(http.ResponseWriter, *http.Request) {
		t.Fatalf("no request expected")
	})
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 100}); err == nil {
		t.Fatalf("expected missing order id error")
	}
}

func TestPhonePeCreateSessionMapsGatewayRefusal(t *testing.T) {
	provider := newPhonePeTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"code":"TRANSACTION_LIMIT_EXCEEDED","message":"limit exceeded"}`)
	})

	_, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:   5000000,
		Metadata: map[string]string{"order_id": "ord_1"},
	})
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.Code != FailureUPILimitExceeded {
		t.Fatalf("expected limit classification, got %v", err)
	}
}

func TestPhonePeLookupStatusMapping(t *testing.T) {
	cases := []struct {
		code string
		want Status
	}{
		{"PAYMENT_SUCCESS", StatusSucceeded},
		{"PAYMENT_PENDING", StatusPending},
		{"PAYMENT_ERROR", StatusFailed},
		{"TIMED_OUT", StatusFailed},
	}
	for _, tc := range cases {
		provider := newPhonePeTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			wantPath := "/pg/v1/status/M12TEST/ord_1"
			if r.URL.Path != wantPath {
				t.Fatalf("unexpected path %s, want %s", r.URL.Path, wantPath)
			}
			if got, want := r.Header.Get("X-VERIFY"), phonePeChecksum(wantPath, "test-salt-key", "2"); got != want {
				t.Fatalf("status checksum mismatch: got %s want %s", got, want)
			}
			fmt.Fprintf(w, `{"success":true,"code":%q,"message":"state","data":{
				"merchantTransactionId":"ord_1","transactionId":"T240001","amount":31600,"state":"terminal","responseCode":"SUCCESS"
			}}`, tc.code)
		})

		details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ord_1"})
		if err != nil {
			t.Fatalf("code %s: lookup: %v", tc.code, err)
		}
		if details.Status != tc.want {
			t.Fatalf("code %s mapped to %s, want %s", tc.code, details.Status, tc.want)
		}
		if details.Raw["transactionId"] != "T240001" {
			t.Fatalf("expected gateway transaction id, got %#v", details.Raw)
		}
		if tc.want == StatusSucceeded && (!details.Captured || details.CapturedAt == nil) {
			t.Fatalf("success must be captured, got %+v", details)
		}
	}
}

func TestPhonePeTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	provider, err := NewPhonePeProvider(config.PhonePeConfig{
		MerchantID: "M12TEST", SaltKey: "test-salt-key", BaseURL: serverURL,
	})
	if err != nil {
		t.Fatalf("new phonepe provider: %v", err)
	}

	_, err = provider.LookupPayment(context.Background(), LookupRequest{IntentID: "ord_1"})
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.Code != FailureNetworkError {
		t.Fatalf("expected network error, got %v", err)
	}
}
