package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/payments"
	"github.com/shilpkart/api/internal/platform/textutil"
	"github.com/shilpkart/api/internal/repositories"
)

const (
	checkoutReleaseReasonPaymentFailed = "payment_failed"

	deliveryMethodCourier     = "courier"
	deliveryMethodStorePickup = "store_pickup"
)

var (
	// ErrCheckoutInvalidForm indicates the contact or delivery form failed validation.
	ErrCheckoutInvalidForm = errors.New("checkout: invalid form")
	// ErrCheckoutCartNotReady indicates the cart is empty or a line is missing its variant.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutPricingData indicates tax or price data could not be loaded for a line.
	ErrCheckoutPricingData = errors.New("checkout: pricing data unavailable")
	// ErrCheckoutStock indicates the advisory stock check reported shortfalls.
	ErrCheckoutStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutUnavailable indicates a downstream dependency failed.
	ErrCheckoutUnavailable = errors.New("checkout: temporarily unavailable")
	// ErrCheckoutPaymentFailed indicates the gateway reported a terminal failure.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// StockValidationError itemizes the shortfalls behind ErrCheckoutStock so the
// client can render per-line messages.
type StockValidationError struct {
	Shortfalls []domain.StockShortfall
}

func (e *StockValidationError) Error() string {
	return fmt.Sprintf("checkout: insufficient stock for %d line(s)", len(e.Shortfalls))
}

func (e *StockValidationError) Unwrap() error {
	return ErrCheckoutStock
}

// PaymentGateway is the slice of the payments manager checkout needs.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	VerifyCallback(paymentCtx payments.PaymentContext, req payments.CallbackVerification) error
}

// CheckoutServiceDeps wires the checkout orchestrator.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Catalog   repositories.CatalogRepository
	Inventory InventoryService
	Orders    OrderService
	Store     repositories.OrderRepository
	Gateway   PaymentGateway
	Events    OrderEventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)

	AllowCOD    bool
	AllowStripe bool
}

type checkoutService struct {
	carts     repositories.CartRepository
	catalog   repositories.CatalogRepository
	inventory InventoryService
	orders    OrderService
	store     repositories.OrderRepository
	gateway   PaymentGateway
	events    OrderEventPublisher
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)

	allowCOD    bool
	allowStripe bool
}

// NewCheckoutService validates dependencies and returns the checkout orchestrator.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("checkout service: inventory service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Store == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		orders:    deps.Orders,
		store:     deps.Store,
		gateway:   deps.Gateway,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:      logger,
		allowCOD:    deps.AllowCOD,
		allowStripe: deps.AllowStripe,
	}, nil
}

// Checkout runs the pre-payment guards in a fixed order, creates the order,
// and either settles it immediately (COD) or opens a gateway session.
// The guard order is load-bearing: a client with a broken form must hear
// about the form before it hears about stock.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidForm)
	}

	form, err := s.validateForm(cmd.Form)
	if err != nil {
		return CheckoutResult{}, err
	}
	method, err := s.validatePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, fmt.Errorf("%w: cart is empty", ErrCheckoutCartNotReady)
		}
		return CheckoutResult{}, fmt.Errorf("%w: load cart: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Lines) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart is empty", ErrCheckoutCartNotReady)
	}
	for _, line := range cart.Lines {
		if strings.TrimSpace(line.VariantID) == "" {
			return CheckoutResult{}, fmt.Errorf("%w: %s has no variant selected", ErrCheckoutCartNotReady, lineDisplayName(line))
		}
	}

	if err := s.checkPricingData(ctx, cart.Lines); err != nil {
		return CheckoutResult{}, err
	}

	shortfalls, err := s.inventory.ValidateAvailability(ctx, cart.Lines)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: validate stock: %v", ErrCheckoutUnavailable, err)
	}
	if len(shortfalls) > 0 {
		return CheckoutResult{}, &StockValidationError{Shortfalls: shortfalls}
	}

	order, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
		UserID:        userID,
		Lines:         cart.Lines,
		ShippingInfo:  form.Contact,
		Delivery:      form.Delivery,
		PaymentMethod: method,
		OrderNotes:    form.OrderNotes,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	if method == domain.PaymentMethodCOD {
		settled, err := s.settleCOD(ctx, order)
		if err != nil {
			return CheckoutResult{}, err
		}
		return CheckoutResult{Order: settled}, nil
	}

	return s.openGatewaySession(ctx, order, method)
}

func (s *checkoutService) validateForm(form CheckoutForm) (CheckoutForm, error) {
	required := []struct {
		field string
		value string
	}{
		{"fullName", form.Contact.FullName},
		{"phone", form.Contact.Phone},
		{"email", form.Contact.Email},
		{"addressLine1", form.Contact.Line1},
		{"city", form.Contact.City},
		{"state", form.Contact.State},
		{"postalCode", form.Contact.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return CheckoutForm{}, fmt.Errorf("%w: %s is required", ErrCheckoutInvalidForm, r.field)
		}
	}
	if !strings.Contains(form.Contact.Email, "@") {
		return CheckoutForm{}, fmt.Errorf("%w: email is not valid", ErrCheckoutInvalidForm)
	}

	switch strings.TrimSpace(form.Delivery.Method) {
	case "":
		form.Delivery.Method = deliveryMethodCourier
	case deliveryMethodCourier, deliveryMethodStorePickup:
	default:
		return CheckoutForm{}, fmt.Errorf("%w: unknown delivery method %q", ErrCheckoutInvalidForm, form.Delivery.Method)
	}

	form.OrderNotes = textutil.SanitizeFreeText(form.OrderNotes)
	form.Delivery.Instructions = textutil.SanitizeFreeText(form.Delivery.Instructions)
	return form, nil
}

func (s *checkoutService) validatePaymentMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	switch method {
	case domain.PaymentMethodRazorpay, domain.PaymentMethodPhonePe:
		return method, nil
	case domain.PaymentMethodStripe:
		if !s.allowStripe {
			return "", fmt.Errorf("%w: stripe payments are not enabled", ErrCheckoutInvalidForm)
		}
		return method, nil
	case domain.PaymentMethodCOD:
		if !s.allowCOD {
			return "", fmt.Errorf("%w: cash on delivery is not enabled", ErrCheckoutInvalidForm)
		}
		return method, nil
	case "":
		return domain.PaymentMethodRazorpay, nil
	default:
		return "", fmt.Errorf("%w: unknown payment method %q", ErrCheckoutInvalidForm, method)
	}
}

// checkPricingData confirms every line resolves to a live product row so tax
// flags come from the catalog rather than the cart snapshot.
func (s *checkoutService) checkPricingData(ctx context.Context, lines []CartLine) error {
	productIDs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return fmt.Errorf("%w: %s has no product reference", ErrCheckoutPricingData, lineDisplayName(line))
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		productIDs = append(productIDs, id)
	}

	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("%w: load products: %v", ErrCheckoutUnavailable, err)
	}
	for _, line := range lines {
		if _, ok := products[line.ProductID]; !ok {
			return fmt.Errorf("%w: tax data missing for %s", ErrCheckoutPricingData, lineDisplayName(line))
		}
	}
	return nil
}

func (s *checkoutService) settleCOD(ctx context.Context, order Order) (Order, error) {
	now := s.clock()
	updated, err := s.store.UpdatePaymentState(ctx, repositories.OrderPaymentStateUpdate{
		OrderID:       order.ID,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusCompleted,
		Now:           now,
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: confirm cod order: %v", ErrCheckoutUnavailable, err)
	}

	s.clearCart(ctx, updated)
	s.publishEvent(ctx, OrderEventPaymentConfirmed, updated)
	return updated, nil
}

func (s *checkoutService) openGatewaySession(ctx context.Context, order Order, method domain.PaymentMethod) (CheckoutResult, error) {
	paymentCtx := payments.PaymentContext{
		PreferredProvider: string(method),
		Currency:          "INR",
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, paymentCtx, payments.CheckoutSessionRequest{
		Amount:     order.Totals.GrandTotal.Paise(),
		Currency:   "INR",
		CustomerID: order.CustomerID,
		Metadata: textutil.NormalizeStringMap(map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"user_id":      order.UserID,
		}),
		IdempotencyKey: order.ID,
	})
	if err != nil {
		return CheckoutResult{}, s.failSession(ctx, order, err)
	}

	// The session reference lets callbacks and returns correlate gateway
	// state back to the order before any payment id exists.
	updated, err := s.store.UpdatePaymentState(ctx, repositories.OrderPaymentStateUpdate{
		OrderID:       order.ID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TransactionID: valuePtr(session.ID),
		Now:           s.clock(),
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: record session: %v", ErrCheckoutUnavailable, err)
	}

	return CheckoutResult{
		Order: updated,
		Session: &domain.CheckoutSession{
			SessionID:   session.ID,
			Provider:    session.Provider,
			RedirectURL: session.RedirectURL,
			OrderID:     order.ID,
			Amount:      order.Totals.GrandTotal,
			ExpiresAt:   session.ExpiresAt,
		},
	}, nil
}

// failSession marks the order failed when the gateway refuses to open a
// session, frees its reservations, and surfaces the classified gateway error.
func (s *checkoutService) failSession(ctx context.Context, order Order, cause error) error {
	now := s.clock()

	var gatewayErr *payments.GatewayError
	if !errors.As(cause, &gatewayErr) {
		gatewayErr = payments.NewGatewayError(string(order.PaymentMethod), "", cause.Error())
	}
	notes := gatewayErr.Message().Description

	if _, err := s.store.UpdatePaymentState(ctx, repositories.OrderPaymentStateUpdate{
		OrderID:       order.ID,
		Status:        domain.OrderStatusCancelled,
		PaymentStatus: domain.PaymentStatusFailed,
		OrderNotes:    &notes,
		CancelledAt:   &now,
		Now:           now,
	}); err != nil {
		s.logger(ctx, "checkout.session_failure_not_recorded", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	s.releaseOrderReservations(ctx, order)
	s.publishEvent(ctx, OrderEventPaymentFailed, order)

	return fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, gatewayErr)
}

// HandlePaymentCallback settles a hosted-checkout callback (Razorpay style).
// Repeated callbacks for the same order are absorbed by the processed latch.
func (s *checkoutService) HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error) {
	order, err := s.store.FindByID(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, cmd.OrderID)
		}
		return Order{}, fmt.Errorf("%w: load order: %v", ErrCheckoutUnavailable, err)
	}
	if order.PaymentTerminal() {
		return order, nil
	}

	provider := strings.TrimSpace(cmd.Provider)
	if provider == "" {
		provider = string(order.PaymentMethod)
	}
	paymentCtx := payments.PaymentContext{PreferredProvider: provider, Currency: "INR"}

	if !cmd.Success {
		gatewayErr := payments.NewGatewayError(provider, cmd.ErrorCode, cmd.ErrorDescription)
		return s.settleFailure(ctx, order, gatewayErr)
	}

	if err := s.gateway.VerifyCallback(paymentCtx, payments.CallbackVerification{
		GatewayOrderID: cmd.GatewayOrderID,
		PaymentID:      cmd.PaymentID,
		Signature:      cmd.Signature,
	}); err != nil {
		s.logger(ctx, "checkout.callback_rejected", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return Order{}, fmt.Errorf("%w: callback verification: %v", ErrCheckoutPaymentFailed, err)
	}

	return s.settleSuccess(ctx, order, cmd.PaymentID)
}

// HandlePaymentReturn settles a redirect return (PhonePe style). The return
// parameters only trigger a server-side lookup; the gateway's answer decides.
func (s *checkoutService) HandlePaymentReturn(ctx context.Context, cmd PaymentReturnCommand) (Order, error) {
	order, err := s.findReturnedOrder(ctx, cmd)
	if err != nil {
		return Order{}, err
	}
	if order.PaymentTerminal() {
		return order, nil
	}

	paymentCtx := payments.PaymentContext{PreferredProvider: string(order.PaymentMethod), Currency: "INR"}
	details, err := s.gateway.LookupPayment(ctx, paymentCtx, payments.LookupRequest{IntentID: order.ID})
	if err != nil {
		return Order{}, fmt.Errorf("%w: payment lookup: %v", ErrCheckoutUnavailable, err)
	}

	switch details.Status {
	case payments.StatusSucceeded:
		transactionID := cmd.TransactionID
		if raw, ok := details.Raw["transactionId"].(string); ok && raw != "" {
			transactionID = raw
		}
		return s.settleSuccess(ctx, order, transactionID)
	case payments.StatusFailed:
		code, _ := details.Raw["code"].(string)
		message, _ := details.Raw["message"].(string)
		gatewayErr := payments.NewGatewayError(details.Provider, code, message)
		return s.settleFailure(ctx, order, gatewayErr)
	default:
		// Pending: leave the order untouched, the sweeper or a later
		// return attempt will resolve it.
		return order, nil
	}
}

func (s *checkoutService) findReturnedOrder(ctx context.Context, cmd PaymentReturnCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID != "" {
		order, err := s.store.FindByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: load order: %v", ErrCheckoutUnavailable, err)
		}
	}
	if txn := strings.TrimSpace(cmd.TransactionID); txn != "" {
		order, err := s.store.FindByTransactionID(ctx, txn)
		if err == nil {
			return order, nil
		}
		if !isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: load order: %v", ErrCheckoutUnavailable, err)
		}
	}
	return Order{}, fmt.Errorf("%w: no order matches return parameters", ErrOrderNotFound)
}

// settleSuccess claims the processed latch then records the completed payment.
// A lost claim means another request already settled the order.
func (s *checkoutService) settleSuccess(ctx context.Context, order Order, transactionID string) (Order, error) {
	now := s.clock()

	claimed, err := s.store.MarkPaymentProcessed(ctx, order.ID, now)
	if err != nil {
		return Order{}, fmt.Errorf("%w: claim payment: %v", ErrCheckoutUnavailable, err)
	}
	if !claimed {
		current, err := s.store.FindByID(ctx, order.ID)
		if err != nil {
			return Order{}, fmt.Errorf("%w: reload order: %v", ErrCheckoutUnavailable, err)
		}
		return current, nil
	}

	update := repositories.OrderPaymentStateUpdate{
		OrderID:       order.ID,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusCompleted,
		PaidAt:        &now,
		Now:           now,
	}
	if txn := strings.TrimSpace(transactionID); txn != "" {
		update.TransactionID = &txn
	}
	updated, err := s.store.UpdatePaymentState(ctx, update)
	if err != nil {
		return Order{}, fmt.Errorf("%w: record payment: %v", ErrCheckoutUnavailable, err)
	}

	s.clearCart(ctx, updated)
	s.publishEvent(ctx, OrderEventPaymentConfirmed, updated)
	return updated, nil
}

func (s *checkoutService) settleFailure(ctx context.Context, order Order, gatewayErr *payments.GatewayError) (Order, error) {
	now := s.clock()

	claimed, err := s.store.MarkPaymentProcessed(ctx, order.ID, now)
	if err != nil {
		return Order{}, fmt.Errorf("%w: claim payment: %v", ErrCheckoutUnavailable, err)
	}
	if !claimed {
		current, err := s.store.FindByID(ctx, order.ID)
		if err != nil {
			return Order{}, fmt.Errorf("%w: reload order: %v", ErrCheckoutUnavailable, err)
		}
		return current, nil
	}

	notes := gatewayErr.Message().Description
	updated, err := s.store.UpdatePaymentState(ctx, repositories.OrderPaymentStateUpdate{
		OrderID:       order.ID,
		Status:        domain.OrderStatusCancelled,
		PaymentStatus: domain.PaymentStatusFailed,
		OrderNotes:    &notes,
		CancelledAt:   &now,
		Now:           now,
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: record failure: %v", ErrCheckoutUnavailable, err)
	}

	s.releaseOrderReservations(ctx, updated)
	s.publishEvent(ctx, OrderEventPaymentFailed, updated)
	return updated, fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, gatewayErr)
}

// clearCart empties the cart after a confirmed payment. The order is already
// settled, so a cart failure is logged rather than surfaced.
func (s *checkoutService) clearCart(ctx context.Context, order Order) {
	if err := s.carts.ClearCart(ctx, order.UserID, s.clock()); err != nil {
		s.logger(ctx, "checkout.cart_not_cleared", map[string]any{
			"orderId": order.ID,
			"userId":  order.UserID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) releaseOrderReservations(ctx context.Context, order Order) {
	if len(order.ReservationIDs) == 0 {
		return
	}
	if err := s.inventory.ReleaseReservations(ctx, order.ReservationIDs, checkoutReleaseReasonPaymentFailed); err != nil {
		s.logger(ctx, "checkout.reservations_not_released", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) publishEvent(ctx context.Context, eventType OrderEventType, order Order) {
	if s.events == nil {
		return
	}
	message := OrderEventMessage{
		EventType:     eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		AmountPaise:   order.Totals.GrandTotal.Paise(),
		OccurredAt:    s.clock(),
	}
	if order.TransactionID != nil {
		message.TransactionID = *order.TransactionID
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "checkout.event_not_published", map[string]any{
			"orderId":   order.ID,
			"eventType": string(eventType),
			"error":     err.Error(),
		})
	}
}

func valuePtr[T any](v T) *T {
	return &v
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
