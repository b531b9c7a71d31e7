package services

import (
	"context"
	"time"

	domain "github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Money                = domain.Money
	GSTRate              = domain.GSTRate
	Address              = domain.Address
	DeliveryInfo         = domain.DeliveryInfo
	Cart                 = domain.Cart
	CartLine             = domain.CartLine
	Customization        = domain.Customization
	UploadFile           = domain.UploadFile
	DesignAsset          = domain.DesignAsset
	ItemPricing          = domain.ItemPricing
	OrderTotals          = domain.OrderTotals
	Order                = domain.Order
	OrderItem            = domain.OrderItem
	OrderStatus          = domain.OrderStatus
	PaymentStatus        = domain.PaymentStatus
	PaymentMethod        = domain.PaymentMethod
	CustomizationRequest = domain.CustomizationRequest
	Customer             = domain.Customer
	Product              = domain.Product
	ProductVariant       = domain.ProductVariant
	VariantStock         = domain.VariantStock
	StockReservation     = domain.StockReservation
	StockShortfall       = domain.StockShortfall
	CheckoutSession      = domain.CheckoutSession
)

// PricingService computes per-item and order-level GST breakdowns. Pure:
// implementations must not perform I/O and must be fed freshly fetched
// catalog rows by the caller.
type PricingService interface {
	CalculateItemPricing(ctx context.Context, line CartLine, variant ProductVariant, product Product) ItemPricing
	CalculateOrderTotals(items []ItemPricing, shippingCost Money) OrderTotals
	ShippingCost(subtotal Money) Money
}

// InventoryService centralizes stock reservation, confirm, and release workflows.
type InventoryService interface {
	AvailableStock(ctx context.Context, variantID string) (int, error)
	ReserveStock(ctx context.Context, cmd ReserveStockCommand) (StockReservation, error)
	ConfirmReservations(ctx context.Context, cmd ConfirmReservationsCommand) error
	ReleaseReservations(ctx context.Context, reservationIDs []string, reason string) error
	ValidateAvailability(ctx context.Context, lines []CartLine) ([]StockShortfall, error)
}

// UploadService pushes customer artwork to the external asset host with
// bounded retries and returns the hosted asset descriptor.
type UploadService interface {
	UploadCustomizationImage(ctx context.Context, file UploadFile, itemName string) (DesignAsset, error)
}

// OrderService assembles and persists the order aggregate from validated cart
// contents, compensating partial writes when a later step fails.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// CheckoutService is the checkout entry point: it sequences the guards, order
// creation, and payment initiation or finalization.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error)
	HandlePaymentReturn(ctx context.Context, cmd PaymentReturnCommand) (Order, error)
}

// CartService manages mutable cart state ahead of checkout.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (Cart, error)
	RemoveLine(ctx context.Context, userID, variantID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CatalogService exposes read-only product and variant lookups.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error)
	ListVariants(ctx context.Context, productID string) ([]ProductVariant, error)
}

// OrderEventType names the order lifecycle events emitted to Pub/Sub.
type OrderEventType string

const (
	// OrderEventCreated fires after the order aggregate is fully persisted.
	OrderEventCreated OrderEventType = "order.created"
	// OrderEventPaymentConfirmed fires when a gateway confirms capture or COD is accepted.
	OrderEventPaymentConfirmed OrderEventType = "order.payment_confirmed"
	// OrderEventPaymentFailed fires on a terminal gateway failure.
	OrderEventPaymentFailed OrderEventType = "order.payment_failed"
	// OrderEventCancelled fires when the reconciler or a failure path cancels an order.
	OrderEventCancelled OrderEventType = "order.cancelled"
)

// OrderEventMessage is the Pub/Sub payload for order lifecycle events.
type OrderEventMessage struct {
	EventType     OrderEventType       `json:"eventType"`
	OrderID       string               `json:"orderId"`
	OrderNumber   string               `json:"orderNumber"`
	UserID        string               `json:"userId"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	AmountPaise   int64                `json:"amountPaise"`
	TransactionID string               `json:"transactionId,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// ArtworkArchiver copies original customer artwork bytes into long-term
// storage and returns the stored object reference.
type ArtworkArchiver interface {
	ArchiveArtwork(ctx context.Context, orderID, orderItemID, fileName, contentType string, data []byte) (string, error)
}

// Command and DTO definitions ------------------------------------------------

// ReserveStockCommand places a hold on a single variant. Reservation is
// per-line and sequential so a mid-batch failure leaves an enumerable set to
// roll back.
type ReserveStockCommand struct {
	VariantID string
	Quantity  int
	UserID    string
	OrderID   string
	TTL       time.Duration
	Reason    string
}

// ConfirmReservationsCommand converts a batch of holds into committed
// decrements. All-or-nothing from the caller's perspective.
type ConfirmReservationsCommand struct {
	ReservationIDs []string
	OrderID        string
}

// CreateOrderCommand carries validated checkout input into order assembly.
type CreateOrderCommand struct {
	UserID        string
	Lines         []CartLine
	ShippingInfo  Address
	Delivery      DeliveryInfo
	PaymentMethod PaymentMethod
	OrderNotes    string
}

// OrderListFilter narrows order listings for user history and admin views.
type OrderListFilter = repositories.OrderListFilter

// CheckoutForm is the contact/shipping data collected before payment.
type CheckoutForm struct {
	Contact    Address
	Delivery   DeliveryInfo
	OrderNotes string
}

// CheckoutCommand starts a checkout for the user's current cart.
type CheckoutCommand struct {
	UserID        string
	Form          CheckoutForm
	PaymentMethod PaymentMethod
}

// CheckoutResult reports the created order and, for online payment methods,
// the gateway session the client must complete.
type CheckoutResult struct {
	Order   Order
	Session *CheckoutSession
}

// PaymentCallbackCommand carries a hosted-checkout callback (Razorpay style)
// posted by the client after the gateway UI closes.
type PaymentCallbackCommand struct {
	OrderID          string
	Provider         string
	Success          bool
	PaymentID        string
	GatewayOrderID   string
	Signature        string
	ErrorCode        string
	ErrorDescription string
}

// PaymentReturnCommand carries redirect-return parameters (PhonePe style).
// The parameters are a trigger to re-check gateway state, never proof of
// payment by themselves.
type PaymentReturnCommand struct {
	OrderID       string
	TransactionID string
	Status        string
	Message       string
}

// UpsertCartLineCommand adds or updates one cart line.
type UpsertCartLineCommand struct {
	UserID        string
	ProductID     string
	VariantID     string
	Quantity      int
	Customization *Customization
}
