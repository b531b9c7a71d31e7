package domain

import "time"

// Pagination captures cursor-based pagination parameters shared by list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder designates result ordering in list queries.
type SortOrder string

const (
	// SortAscending sorts results from oldest/lowest first.
	SortAscending SortOrder = "asc"
	// SortDescending sorts results from newest/highest first.
	SortDescending SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address is the shipping/contact snapshot collected at checkout.
type Address struct {
	FullName   string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// DeliveryInfo captures fulfilment preferences supplied with the order.
type DeliveryInfo struct {
	Method       string // "courier" or "store_pickup"
	Instructions string
	PreferredAt  *time.Time
}

// CustomizationType enumerates the supported personalisation kinds.
type CustomizationType string

const (
	// CustomizationImage means the customer supplied artwork to engrave/print.
	CustomizationImage CustomizationType = "image"
	// CustomizationText means the customer supplied text to engrave/print.
	CustomizationText CustomizationType = "text"
	// CustomizationImageAndText combines both.
	CustomizationImageAndText CustomizationType = "image_and_text"
)

// UploadFile is a customer-supplied artwork file awaiting upload to the asset host.
type UploadFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DesignAsset is the asset-host record for a successfully uploaded artwork file.
type DesignAsset struct {
	URL      string
	PublicID string
	Format   string
	Width    int
	Height   int
	Bytes    int64
}

// Customization is the normalised personalisation payload attached to a cart line.
// Empty strings, nil files, and false flags are stripped before persistence.
type Customization struct {
	Type         CustomizationType
	Text         string
	Requirements string
	Files        []UploadFile
	Assets       []DesignAsset
}

// IsEmpty reports whether the customization carries no usable data after normalisation.
func (c *Customization) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Text == "" && c.Requirements == "" && len(c.Files) == 0 && len(c.Assets) == 0
}

// CartLine is a single purchasable entry in a cart. VariantID is mandatory for
// checkout; a line without one is rejected before any mutation occurs.
type CartLine struct {
	ProductID     string
	VariantID     string
	Name          string
	Quantity      int
	BasePrice     Money
	GSTRate       GSTRate
	Customization *Customization
	AddedAt       time.Time
}

// Cart is the per-user cart aggregate. The document ID equals the user ID.
type Cart struct {
	ID        string
	UserID    string
	Lines     []CartLine
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPending indicates the order exists but checkout has not finished.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment completed (or COD accepted).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the workshop has started production.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the workshop.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the courier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled or provisioning failed.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment lifecycle states. Once terminal
// (completed/failed) the order is immutable except for notes and transaction id.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no terminal gateway outcome yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted indicates the gateway confirmed capture (or COD).
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates a terminal gateway failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentMethod identifies how the customer chose to pay.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; no gateway interaction.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay is the hosted Razorpay checkout.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodPhonePe is the PhonePe redirect flow.
	PaymentMethodPhonePe PaymentMethod = "phonepe"
	// PaymentMethodStripe is the card fallback for non-INR customers.
	PaymentMethodStripe PaymentMethod = "stripe"
)

// Order is the persisted aggregate root created by checkout.
type Order struct {
	ID                    string
	OrderNumber           string
	UserID                string
	CustomerID            string
	ShippingInfo          Address
	Delivery              DeliveryInfo
	Totals                OrderTotals
	Status                OrderStatus
	PaymentStatus         PaymentStatus
	PaymentMethod         PaymentMethod
	TransactionID         *string
	OrderNotes            *string
	RequiresCustomization bool
	CustomizationSummary  string
	ReservationIDs        []string
	PaymentProcessedAt    *time.Time
	Items                 []OrderItem
	Metadata              map[string]any
	CreatedAt             time.Time
	UpdatedAt             time.Time
	PaidAt                *time.Time
	CancelledAt           *time.Time
}

// PaymentTerminal reports whether the order's payment state can no longer change.
func (o Order) PaymentTerminal() bool {
	return o.PaymentStatus == PaymentStatusCompleted || o.PaymentStatus == PaymentStatusFailed
}

// OrderItem snapshots one cart line with pricing computed from a fresh catalog
// read at order-creation time. ItemTotal == UnitPriceWithGST * Quantity.
type OrderItem struct {
	ID                 string
	OrderID            string
	ProductID          string
	VariantID          string
	ProductName        string
	VariantSizeDisplay string
	Pricing            ItemPricing
	Customization      *Customization
}

// CustomizationRequestStatus tracks the admin review lifecycle of a request.
type CustomizationRequestStatus string

const (
	// CustomizationPending awaits admin review.
	CustomizationPending CustomizationRequestStatus = "pending"
	// CustomizationApproved was accepted for production.
	CustomizationApproved CustomizationRequestStatus = "approved"
	// CustomizationRejected was declined; the order needs follow-up.
	CustomizationRejected CustomizationRequestStatus = "rejected"
)

// CustomizationRequest is the admin-reviewable personalisation record, created
// only when an order item carries non-empty normalised customization data.
type CustomizationRequest struct {
	ID                   string
	OrderID              string
	OrderItemID          string
	CustomizationType    CustomizationType
	CustomerRequirements string
	DesignFiles          []DesignAsset
	ArchiveRefs          []string
	Status               CustomizationRequestStatus
	AdminNotes           *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Customer is the billing identity linked to the authenticated user.
type Customer struct {
	ID        string
	UserID    string
	FullName  string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is a catalog entry. Exactly one of GST5Pct/GST18Pct should be true;
// rows violating that are resolved by ResolveGSTRate and logged upstream.
type Product struct {
	ID           string
	Name         string
	Description  string
	Category     string
	GST5Pct      bool
	GST18Pct     bool
	Customizable bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductVariant is the purchasable size/SKU of a product; inventory is tracked
// against variants, never against products.
type ProductVariant struct {
	ID          string
	ProductID   string
	SizeDisplay string
	Price       Money
	Active      bool
	UpdatedAt   time.Time
}

// VariantStock is the live inventory snapshot for a variant.
type VariantStock struct {
	VariantID  string
	ProductRef string
	OnHand     int
	Reserved   int
	Available  int
	UpdatedAt  time.Time
}

// ReservationStatus enumerates stock reservation lifecycle states.
type ReservationStatus string

const (
	// ReservationReserved is a provisional hold awaiting confirm or release.
	ReservationReserved ReservationStatus = "reserved"
	// ReservationConfirmed is a hold converted into a committed decrement.
	ReservationConfirmed ReservationStatus = "confirmed"
	// ReservationReleased is a hold returned to the pool.
	ReservationReleased ReservationStatus = "released"
)

// StockReservation is a provisional hold on variant stock tied to an order.
type StockReservation struct {
	ID          string
	VariantID   string
	Quantity    int
	UserRef     string
	OrderRef    string
	Status      ReservationStatus
	Reason      string
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	ReleasedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShortfallReason classifies why a cart line failed the advisory stock check.
type ShortfallReason string

const (
	// ShortfallOutOfStock means zero units are available.
	ShortfallOutOfStock ShortfallReason = "out_of_stock"
	// ShortfallInsufficient means some units exist but fewer than requested.
	ShortfallInsufficient ShortfallReason = "insufficient_quantity"
	// ShortfallReserved means nominal stock exists but other holders' in-flight
	// reservations consume it.
	ShortfallReserved ShortfallReason = "reserved_by_others"
	// ShortfallUnverifiable means the stock record could not be read.
	ShortfallUnverifiable ShortfallReason = "unverifiable"
)

// StockShortfall is one itemised advisory-check failure.
type StockShortfall struct {
	VariantID string
	ItemName  string
	Requested int
	Available int
	Reason    ShortfallReason
	Message   string
}

// CheckoutSession is the gateway session handed back to the client to complete
// an online payment.
type CheckoutSession struct {
	SessionID   string
	Provider    string
	RedirectURL string
	OrderID     string
	Amount      Money
	ExpiresAt   time.Time
}
