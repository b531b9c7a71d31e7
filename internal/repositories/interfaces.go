package repositories

import (
	"context"
	"time"

	domain "github.com/shilpkart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Catalog() CatalogRepository
	Customers() CustomerRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository stores per-user cart documents keyed by user ID.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string, now time.Time) error
}

// CatalogRepository reads product and variant rows. Checkout always reads
// fresh rows here rather than trusting client-supplied prices or tax flags.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	GetVariant(ctx context.Context, variantID string) (domain.ProductVariant, error)
	GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error)
}

// CustomerRepository persists billing identities linked to authenticated users.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByUserID(ctx context.Context, userID string) (domain.Customer, error)
}

// InventoryRepository manages stock levels and reservation lifecycle with transactional guarantees.
type InventoryRepository interface {
	Reserve(ctx context.Context, req InventoryReserveRequest) (InventoryReserveResult, error)
	Confirm(ctx context.Context, req InventoryConfirmRequest) (InventoryConfirmResult, error)
	Release(ctx context.Context, req InventoryReleaseRequest) (InventoryReleaseResult, error)
	GetReservation(ctx context.Context, reservationID string) (domain.StockReservation, error)
	GetStock(ctx context.Context, variantID string) (domain.VariantStock, error)
	GetStocks(ctx context.Context, variantIDs []string) (map[string]domain.VariantStock, error)
	ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]domain.StockReservation, error)
}

// InventoryReserveRequest encapsulates reservation creation metadata for the repository.
type InventoryReserveRequest struct {
	Reservation domain.StockReservation
	Now         time.Time
}

// InventoryReserveResult returns the saved reservation and the updated stock projection.
type InventoryReserveResult struct {
	Reservation domain.StockReservation
	Stock       domain.VariantStock
}

// InventoryConfirmRequest finalises a reservation and decrements on-hand counts.
type InventoryConfirmRequest struct {
	ReservationID string
	OrderRef      string
	Now           time.Time
}

// InventoryConfirmResult reports the updated reservation and stock metrics after confirm.
type InventoryConfirmResult struct {
	Reservation domain.StockReservation
	Stock       domain.VariantStock
}

// InventoryReleaseRequest restores reserved stock back to availability.
type InventoryReleaseRequest struct {
	ReservationID string
	Reason        string
	Now           time.Time
}

// InventoryReleaseResult reports the reservation and stock metrics after release.
type InventoryReleaseResult struct {
	Reservation domain.StockReservation
	Stock       domain.VariantStock
}

// OrderRepository persists order aggregates: the header, item snapshots, and
// customization requests live as separate writes so that each checkout step
// can be undone individually when a later step fails.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	InsertCustomizationRequest(ctx context.Context, request domain.CustomizationRequest) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	UpdatePaymentState(ctx context.Context, update OrderPaymentStateUpdate) (domain.Order, error)
	MarkPaymentProcessed(ctx context.Context, orderID string, at time.Time) (bool, error)
	DeleteCustomizationRequests(ctx context.Context, orderID string) error
	DeleteItems(ctx context.Context, orderID string) error
	Delete(ctx context.Context, orderID string) error
}

// OrderPaymentStateUpdate carries a gateway outcome into the order document.
type OrderPaymentStateUpdate struct {
	OrderID       string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	TransactionID *string
	OrderNotes    *string
	PaidAt        *time.Time
	CancelledAt   *time.Time
	Now           time.Time
}

// CounterRepository provides monotonic sequences used for human-facing order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig seeds or adjusts a counter document.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category   string
	OnlyActive bool
	Pagination domain.Pagination
	Sort       domain.SortOrder
}

// OrderListFilter narrows order queries for user history and admin views.
type OrderListFilter struct {
	UserID        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Pagination    domain.Pagination
	Sort          domain.SortOrder
}
