package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/payments"
	"github.com/shilpkart/api/internal/platform/auth"
	"github.com/shilpkart/api/internal/services"
)

type stubCheckoutService struct {
	checkoutFn func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
	callbackFn func(ctx context.Context, cmd services.PaymentCallbackCommand) (services.Order, error)
	returnFn   func(ctx context.Context, cmd services.PaymentReturnCommand) (services.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("unexpected Checkout call")
}

func (s *stubCheckoutService) HandlePaymentCallback(ctx context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
	if s.callbackFn != nil {
		return s.callbackFn(ctx, cmd)
	}
	return services.Order{}, errors.New("unexpected HandlePaymentCallback call")
}

func (s *stubCheckoutService) HandlePaymentReturn(ctx context.Context, cmd services.PaymentReturnCommand) (services.Order, error) {
	if s.returnFn != nil {
		return s.returnFn(ctx, cmd)
	}
	return services.Order{}, errors.New("unexpected HandlePaymentReturn call")
}

func checkoutTestRouter(t *testing.T, svc services.CheckoutService, limit int) chi.Router {
	t.Helper()
	h, err := NewCheckoutHandlers(CheckoutHandlersDeps{
		Checkout:       svc,
		CheckoutLimit:  limit,
		CheckoutWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewCheckoutHandlers: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/checkout", h.Register)
	r.Route("/payments", h.RegisterPayments)
	return r
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	identity := &auth.Identity{UID: "user-1", Email: "asha@example.com"}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func checkoutBody(t *testing.T, paymentMethod string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"paymentMethod": paymentMethod,
		"contact": map[string]any{
			"fullName":   "Asha Rao",
			"phone":      "+919876543210",
			"email":      "asha@example.com",
			"line1":      "14 Brigade Road",
			"city":       "Bengaluru",
			"state":      "Karnataka",
			"postalCode": "560001",
		},
		"delivery": map[string]any{"method": "courier"},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestCheckoutRequiresAuthentication(t *testing.T) {
	router := checkoutTestRouter(t, &stubCheckoutService{}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout/", bytes.NewReader(checkoutBody(t, "cod"))))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestCheckoutReturnsOrderAndSession(t *testing.T) {
	var captured services.CheckoutCommand
	svc := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				Order: services.Order{
					ID:            "ord_1",
					OrderNumber:   "SK-000123",
					Status:        domain.OrderStatusPending,
					PaymentStatus: domain.PaymentStatusPending,
					PaymentMethod: domain.PaymentMethodRazorpay,
					Totals:        domain.OrderTotals{GrandTotal: domain.Money(31600)},
				},
				Session: &domain.CheckoutSession{
					SessionID: "gwo_99",
					Provider:  "razorpay",
					OrderID:   "ord_1",
					Amount:    domain.Money(31600),
				},
			}, nil
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "razorpay")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected UID from context, got %q", captured.UserID)
	}
	if captured.PaymentMethod != domain.PaymentMethodRazorpay {
		t.Fatalf("unexpected payment method %q", captured.PaymentMethod)
	}
	if captured.Form.Contact.FullName != "Asha Rao" {
		t.Fatalf("contact not mapped: %+v", captured.Form.Contact)
	}

	payload := decodeBody(t, rec)
	order, ok := payload["order"].(map[string]any)
	if !ok {
		t.Fatalf("missing order in %v", payload)
	}
	if order["id"] != "ord_1" || order["orderNumber"] != "SK-000123" {
		t.Fatalf("unexpected order view %v", order)
	}
	session, ok := payload["paymentSession"].(map[string]any)
	if !ok {
		t.Fatalf("missing paymentSession in %v", payload)
	}
	if session["sessionId"] != "gwo_99" || session["provider"] != "razorpay" {
		t.Fatalf("unexpected session view %v", session)
	}
	amount, ok := session["amount"].(map[string]any)
	if !ok || amount["paise"] != float64(31600) {
		t.Fatalf("unexpected amount %v", session["amount"])
	}
}

func TestCheckoutOmitsSessionForCOD(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: services.Order{
				ID:            "ord_1",
				Status:        domain.OrderStatusConfirmed,
				PaymentStatus: domain.PaymentStatusCompleted,
				PaymentMethod: domain.PaymentMethodCOD,
			}}, nil
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "cod")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if _, present := payload["paymentSession"]; present {
		t.Fatalf("paymentSession should be absent for COD: %v", payload)
	}
}

func TestCheckoutMapsStockShortfallsToConflict(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, &services.StockValidationError{Shortfalls: []domain.StockShortfall{{
				VariantID: "var-1",
				ItemName:  "Brass Trophy (Large)",
				Requested: 2,
				Available: 1,
				Reason:    domain.ShortfallInsufficient,
				Message:   "Only 1 available (you have 2 in cart)",
			}}}
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "cod")))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "insufficient_stock" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
	items, ok := payload["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one shortfall item, got %v", payload["items"])
	}
	item := items[0].(map[string]any)
	if item["message"] != "Only 1 available (you have 2 in cart)" {
		t.Fatalf("unexpected shortfall message %v", item["message"])
	}
}

func TestCheckoutMapsGatewayFailureToPaymentRequired(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			gatewayErr := payments.NewGatewayError("razorpay", "BAD_REQUEST_ERROR", "card invalid")
			return services.CheckoutResult{}, errors.Join(services.ErrCheckoutPaymentFailed, gatewayErr)
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "razorpay")))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	failure, ok := payload["failure"].(map[string]any)
	if !ok {
		t.Fatalf("missing failure details in %v", payload)
	}
	if failure["title"] == "" || failure["action"] == "" {
		t.Fatalf("failure view should render the full message triple: %v", failure)
	}
	if failure["code"] != string(payments.FailureInvalidCard) {
		t.Fatalf("unexpected failure code %v", failure["code"])
	}
}

func TestCheckoutRateLimitsRepeatAttempts(t *testing.T) {
	svc := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: services.Order{ID: "ord_1"}}, nil
		},
	}
	router := checkoutTestRouter(t, svc, 1)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "cod")))
	if first.Code != http.StatusCreated {
		t.Fatalf("first attempt should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, authedRequest(http.MethodPost, "/checkout/", checkoutBody(t, "cod")))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second attempt should be limited, got %d", second.Code)
	}
}

func TestPaymentCallbackMapsRequest(t *testing.T) {
	var captured services.PaymentCallbackCommand
	svc := &stubCheckoutService{
		callbackFn: func(_ context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            cmd.OrderID,
				Status:        domain.OrderStatusConfirmed,
				PaymentStatus: domain.PaymentStatusCompleted,
			}, nil
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	body, _ := json.Marshal(map[string]any{
		"orderId":        "ord_1",
		"provider":       "razorpay",
		"success":        true,
		"paymentId":      "pay_123",
		"gatewayOrderId": "gwo_99",
		"signature":      "sig",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/callback", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.PaymentID != "pay_123" || captured.GatewayOrderID != "gwo_99" {
		t.Fatalf("callback command not mapped: %+v", captured)
	}
	if !captured.Success || captured.Signature != "sig" {
		t.Fatalf("callback command not mapped: %+v", captured)
	}
	payload := decodeBody(t, rec)
	order := payload["order"].(map[string]any)
	if order["paymentStatus"] != string(domain.PaymentStatusCompleted) {
		t.Fatalf("unexpected payment status %v", order["paymentStatus"])
	}
}

func TestPaymentCallbackRequiresOrderID(t *testing.T) {
	router := checkoutTestRouter(t, &stubCheckoutService{}, 0)

	body, _ := json.Marshal(map[string]any{"provider": "razorpay", "success": true})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/callback", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPaymentReturnMapsQueryParams(t *testing.T) {
	var captured services.PaymentReturnCommand
	svc := &stubCheckoutService{
		returnFn: func(_ context.Context, cmd services.PaymentReturnCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: "ord_1", Status: domain.OrderStatusConfirmed}, nil
		},
	}
	router := checkoutTestRouter(t, svc, 0)

	rec := httptest.NewRecorder()
	target := "/payments/return?orderId=ord_1&transactionId=T240001&status=SUCCESS&message=ok"
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if captured.OrderID != "ord_1" || captured.TransactionID != "T240001" || captured.Status != "SUCCESS" {
		t.Fatalf("return command not mapped: %+v", captured)
	}
}

func TestPaymentReturnRequiresIdentifier(t *testing.T) {
	router := checkoutTestRouter(t, &stubCheckoutService{}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/return", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
