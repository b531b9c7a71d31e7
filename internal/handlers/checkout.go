package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/auth"
	"github.com/shilpkart/api/internal/services"
)

// CheckoutHandlers serves checkout initiation plus the two payment
// finalization surfaces: the signed gateway callback and the redirect return.
// Checkout is rate limited per user so a stuck client retrying in a loop
// cannot pile up pending orders and stock reservations.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	limiter  rateLimiter
}

type CheckoutHandlersDeps struct {
	Checkout services.CheckoutService

	// CheckoutLimit caps checkout attempts per user per CheckoutWindow.
	// Zero disables rate limiting.
	CheckoutLimit  int
	CheckoutWindow time.Duration
}

func NewCheckoutHandlers(deps CheckoutHandlersDeps) (*CheckoutHandlers, error) {
	if deps.Checkout == nil {
		return nil, errors.New("handlers: checkout service is required")
	}
	return &CheckoutHandlers{
		checkout: deps.Checkout,
		limiter:  newSimpleRateLimiter(deps.CheckoutLimit, deps.CheckoutWindow, nil),
	}, nil
}

// Register mounts the checkout route on the provided router group.
func (h *CheckoutHandlers) Register(r chi.Router) {
	r.Post("/", h.Checkout)
}

// RegisterPayments mounts the payment finalization routes. The callback is
// authenticated by its gateway signature, not by a Firebase token, so these
// live in their own group without the auth middleware.
func (h *CheckoutHandlers) RegisterPayments(r chi.Router) {
	r.Post("/callback", h.PaymentCallback)
	r.Get("/return", h.PaymentReturn)
}

type checkoutRequest struct {
	PaymentMethod string          `json:"paymentMethod"`
	Contact       contactRequest  `json:"contact"`
	Delivery      deliveryRequest `json:"delivery"`
	OrderNotes    string          `json:"orderNotes,omitempty"`
}

type contactRequest struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

type deliveryRequest struct {
	Method       string     `json:"method"`
	Instructions string     `json:"instructions,omitempty"`
	PreferredAt  *time.Time `json:"preferredAt,omitempty"`
}

type paymentCallbackRequest struct {
	OrderID          string `json:"orderId"`
	Provider         string `json:"provider"`
	Success          bool   `json:"success"`
	PaymentID        string `json:"paymentId,omitempty"`
	GatewayOrderID   string `json:"gatewayOrderId,omitempty"`
	Signature        string `json:"signature,omitempty"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

func (h *CheckoutHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		writeRateLimited(ctx, w)
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:        identity.UID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Form: services.CheckoutForm{
			Contact: domain.Address{
				FullName:   req.Contact.FullName,
				Phone:      req.Contact.Phone,
				Email:      req.Contact.Email,
				Line1:      req.Contact.Line1,
				Line2:      req.Contact.Line2,
				City:       req.Contact.City,
				State:      req.Contact.State,
				PostalCode: req.Contact.PostalCode,
				Country:    req.Contact.Country,
			},
			Delivery: domain.DeliveryInfo{
				Method:       req.Delivery.Method,
				Instructions: req.Delivery.Instructions,
				PreferredAt:  req.Delivery.PreferredAt,
			},
			OrderNotes: req.OrderNotes,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := map[string]any{"order": newOrderView(result.Order)}
	if result.Session != nil {
		payload["paymentSession"] = newCheckoutSessionView(*result.Session)
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *CheckoutHandlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req paymentCallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if req.OrderID == "" {
		writeBadRequest(ctx, w, "orderId is required")
		return
	}

	order, err := h.checkout.HandlePaymentCallback(ctx, services.PaymentCallbackCommand{
		OrderID:          req.OrderID,
		Provider:         req.Provider,
		Success:          req.Success,
		PaymentID:        req.PaymentID,
		GatewayOrderID:   req.GatewayOrderID,
		Signature:        req.Signature,
		ErrorCode:        req.ErrorCode,
		ErrorDescription: req.ErrorDescription,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newOrderView(order)})
}

func (h *CheckoutHandlers) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	orderID := query.Get("orderId")
	transactionID := query.Get("transactionId")
	if orderID == "" && transactionID == "" {
		writeBadRequest(ctx, w, "orderId or transactionId is required")
		return
	}

	order, err := h.checkout.HandlePaymentReturn(ctx, services.PaymentReturnCommand{
		OrderID:       orderID,
		TransactionID: transactionID,
		Status:        query.Get("status"),
		Message:       query.Get("message"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newOrderView(order)})
}
