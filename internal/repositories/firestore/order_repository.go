package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shilpkart/api/internal/domain"
	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/repositories"
)

const (
	ordersCollection                = "orders"
	orderItemsCollection            = "orderItems"
	customizationRequestsCollection = "customizationRequests"
)

// OrderRepository persists order headers, item snapshots, and customization
// requests as separate top-level collections. Items and requests carry an
// orderRef field so each can be deleted independently when checkout unwinds.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	items    *pfirestore.BaseRepository[orderItemDocument]
	requests *pfirestore.BaseRepository[customizationRequestDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		items:    pfirestore.NewBaseRepository[orderItemDocument](provider, orderItemsCollection, nil, nil),
		requests: pfirestore.NewBaseRepository[customizationRequestDocument](provider, customizationRequestsCollection, nil, nil),
	}, nil
}

// Insert stores a new order header. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order header with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.orders.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// InsertItems stores the item snapshots of an order.
func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if r == nil || r.items == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	for _, item := range items {
		itemID := strings.TrimSpace(item.ID)
		if itemID == "" {
			return errors.New("order repository: order item id is required")
		}
		docRef, err := r.items.DocumentRef(ctx, itemID)
		if err != nil {
			return err
		}
		if _, err := docRef.Create(ctx, encodeOrderItemDocument(orderID, item)); err != nil {
			return pfirestore.WrapError("orderItems.insert", err)
		}
	}
	return nil
}

// InsertCustomizationRequest stores one admin-reviewable customization record.
func (r *OrderRepository) InsertCustomizationRequest(ctx context.Context, request domain.CustomizationRequest) error {
	if r == nil || r.requests == nil {
		return errors.New("order repository not initialised")
	}
	requestID := strings.TrimSpace(request.ID)
	if requestID == "" {
		return errors.New("order repository: customization request id is required")
	}
	docRef, err := r.requests.DocumentRef(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeCustomizationRequestDocument(request)); err != nil {
		return pfirestore.WrapError("customizationRequests.insert", err)
	}
	return nil
}

// FindByID fetches a single order with its item snapshots.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := decodeOrderDocument(doc.ID, doc.Data)

	itemDocs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderRef", "==", orderID).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	for _, itemDoc := range itemDocs {
		order.Items = append(order.Items, decodeOrderItemDocument(itemDoc.ID, itemDoc.Data))
	}
	return order, nil
}

// FindByTransactionID resolves an order from a gateway transaction reference.
// Redirect-return flows only carry the gateway's ID, not ours.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Order{}, errors.New("order repository: transaction id is required")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("transactionId", "==", transactionID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByTransaction", status.Error(codes.NotFound, fmt.Sprintf("order with transaction %s not found", transactionID)))
	}
	return r.FindByID(ctx, docs[0].ID)
}

// List returns orders matching the filter ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	direction := firestore.Desc
	if filter.Sort == domain.SortAscending {
		direction = firestore.Asc
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
		}
		if filter.CreatedAfter != nil && !filter.CreatedAfter.IsZero() {
			q = q.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		if filter.CreatedBefore != nil && !filter.CreatedBefore.IsZero() {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ListStalePending returns orders stuck in pending/pending state created
// before cutoff. The reconciliation sweeper cancels them.
func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusPending)).
			Where("paymentStatus", "==", string(domain.PaymentStatusPending)).
			Where("createdAt", "<=", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

// UpdatePaymentState writes a gateway outcome into the order header. Writes
// are rejected once the payment state is terminal; only notes and the
// transaction reference may still change.
func (r *OrderRepository) UpdatePaymentState(ctx context.Context, update repositories.OrderPaymentStateUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(update.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	now := update.Now.UTC()
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := decodeOrderDocument(orderID, doc)
		if current.PaymentTerminal() && update.PaymentStatus != current.PaymentStatus {
			return pfirestore.WrapError("orders.updatePayment",
				status.Error(codes.FailedPrecondition, fmt.Sprintf("order %s payment state is terminal", orderID)))
		}

		if update.Status != "" {
			doc.Status = string(update.Status)
		}
		if update.PaymentStatus != "" {
			doc.PaymentStatus = string(update.PaymentStatus)
		}
		if update.TransactionID != nil {
			doc.TransactionID = strings.TrimSpace(*update.TransactionID)
		}
		if update.OrderNotes != nil {
			doc.OrderNotes = strings.TrimSpace(*update.OrderNotes)
		}
		if update.PaidAt != nil {
			paidAt := update.PaidAt.UTC()
			doc.PaidAt = &paidAt
		}
		if update.CancelledAt != nil {
			cancelledAt := update.CancelledAt.UTC()
			doc.CancelledAt = &cancelledAt
		}
		doc.UpdatedAt = now

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}
		updated = decodeOrderDocument(orderID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updatePayment", err)
	}
	return updated, nil
}

// MarkPaymentProcessed flips the one-shot processed latch. It returns false
// without writing when another caller already claimed the order, which is how
// duplicate gateway callbacks and races between callback and redirect-return
// are collapsed into a single side effect.
func (r *OrderRepository) MarkPaymentProcessed(ctx context.Context, orderID string, at time.Time) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, errors.New("order repository: order id is required")
	}

	claimed := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.PaymentProcessedAt != nil {
			claimed = false
			return nil
		}
		processedAt := at.UTC()
		if err := tx.Update(docRef, []firestore.Update{
			{Path: "paymentProcessedAt", Value: processedAt},
			{Path: "updatedAt", Value: processedAt},
		}); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, pfirestore.WrapError("orders.markProcessed", err)
	}
	return claimed, nil
}

// DeleteCustomizationRequests removes all customization requests of an order.
func (r *OrderRepository) DeleteCustomizationRequests(ctx context.Context, orderID string) error {
	return r.deleteByOrderRef(ctx, customizationRequestsCollection, orderID)
}

// DeleteItems removes all item snapshots of an order.
func (r *OrderRepository) DeleteItems(ctx context.Context, orderID string) error {
	return r.deleteByOrderRef(ctx, orderItemsCollection, orderID)
}

// Delete removes the order header.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) deleteByOrderRef(ctx context.Context, collection, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError(collection+".delete", err)
	}

	iter := client.Collection(collection).Where("orderRef", "==", orderID).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pfirestore.WrapError(collection+".delete", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return pfirestore.WrapError(collection+".delete", err)
		}
	}
	return nil
}

// Document encoding ----------------------------------------------------------

type orderDocument struct {
	OrderNumber           string         `firestore:"orderNumber"`
	UserID                string         `firestore:"userId"`
	CustomerID            string         `firestore:"customerId"`
	Shipping              addressDoc     `firestore:"shipping"`
	Delivery              deliveryDoc    `firestore:"delivery"`
	Totals                orderTotalsDoc `firestore:"totals"`
	Status                string         `firestore:"status"`
	PaymentStatus         string         `firestore:"paymentStatus"`
	PaymentMethod         string         `firestore:"paymentMethod"`
	TransactionID         string         `firestore:"transactionId,omitempty"`
	OrderNotes            string         `firestore:"orderNotes,omitempty"`
	RequiresCustomization bool           `firestore:"requiresCustomization"`
	CustomizationSummary  string         `firestore:"customizationSummary,omitempty"`
	ReservationIDs        []string       `firestore:"reservationIds,omitempty"`
	PaymentProcessedAt    *time.Time     `firestore:"paymentProcessedAt,omitempty"`
	Metadata              map[string]any `firestore:"metadata,omitempty"`
	CreatedAt             time.Time      `firestore:"createdAt"`
	UpdatedAt             time.Time      `firestore:"updatedAt"`
	PaidAt                *time.Time     `firestore:"paidAt,omitempty"`
	CancelledAt           *time.Time     `firestore:"cancelledAt,omitempty"`
}

type addressDoc struct {
	FullName   string `firestore:"fullName"`
	Phone      string `firestore:"phone"`
	Email      string `firestore:"email"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type deliveryDoc struct {
	Method       string     `firestore:"method"`
	Instructions string     `firestore:"instructions,omitempty"`
	PreferredAt  *time.Time `firestore:"preferredAt,omitempty"`
}

type orderTotalsDoc struct {
	Subtotal     int64 `firestore:"subtotalPaise"`
	GST5Total    int64 `firestore:"gst5TotalPaise"`
	GST18Total   int64 `firestore:"gst18TotalPaise"`
	TotalGST     int64 `firestore:"totalGstPaise"`
	ShippingCost int64 `firestore:"shippingPaise"`
	GrandTotal   int64 `firestore:"grandTotalPaise"`
}

type orderItemDocument struct {
	OrderRef           string                 `firestore:"orderRef"`
	ProductID          string                 `firestore:"productId"`
	VariantID          string                 `firestore:"variantId"`
	ProductName        string                 `firestore:"productName"`
	VariantSizeDisplay string                 `firestore:"variantSizeDisplay,omitempty"`
	Quantity           int                    `firestore:"qty"`
	BasePrice          int64                  `firestore:"basePricePaise"`
	GSTRate            int                    `firestore:"gstRate"`
	GSTAmount          int64                  `firestore:"gstAmountPaise"`
	UnitPriceWithGST   int64                  `firestore:"unitPriceWithGstPaise"`
	ItemSubtotal       int64                  `firestore:"itemSubtotalPaise"`
	ItemGSTTotal       int64                  `firestore:"itemGstTotalPaise"`
	ItemTotal          int64                  `firestore:"itemTotalPaise"`
	Customization      *customizationDocument `firestore:"customization,omitempty"`
}

type customizationRequestDocument struct {
	OrderRef             string                `firestore:"orderRef"`
	OrderItemRef         string                `firestore:"orderItemRef"`
	CustomizationType    string                `firestore:"customizationType"`
	CustomerRequirements string                `firestore:"customerRequirements,omitempty"`
	DesignFiles          []designAssetDocument `firestore:"designFiles,omitempty"`
	ArchiveRefs          []string              `firestore:"archiveRefs,omitempty"`
	Status               string                `firestore:"status"`
	AdminNotes           string                `firestore:"adminNotes,omitempty"`
	CreatedAt            time.Time             `firestore:"createdAt"`
	UpdatedAt            time.Time             `firestore:"updatedAt"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		CustomerID:  strings.TrimSpace(order.CustomerID),
		Shipping:    encodeAddress(order.ShippingInfo),
		Delivery: deliveryDoc{
			Method:       strings.TrimSpace(order.Delivery.Method),
			Instructions: strings.TrimSpace(order.Delivery.Instructions),
			PreferredAt:  normalizeTimePointer(order.Delivery.PreferredAt),
		},
		Totals: orderTotalsDoc{
			Subtotal:     order.Totals.Subtotal.Paise(),
			GST5Total:    order.Totals.GST5Total.Paise(),
			GST18Total:   order.Totals.GST18Total.Paise(),
			TotalGST:     order.Totals.TotalGST.Paise(),
			ShippingCost: order.Totals.ShippingCost.Paise(),
			GrandTotal:   order.Totals.GrandTotal.Paise(),
		},
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		PaymentMethod:         string(order.PaymentMethod),
		RequiresCustomization: order.RequiresCustomization,
		CustomizationSummary:  strings.TrimSpace(order.CustomizationSummary),
		ReservationIDs:        cloneStrings(order.ReservationIDs),
		PaymentProcessedAt:    normalizeTimePointer(order.PaymentProcessedAt),
		Metadata:              cloneAnyMap(order.Metadata),
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
		PaidAt:                normalizeTimePointer(order.PaidAt),
		CancelledAt:           normalizeTimePointer(order.CancelledAt),
	}
	if order.TransactionID != nil {
		doc.TransactionID = strings.TrimSpace(*order.TransactionID)
	}
	if order.OrderNotes != nil {
		doc.OrderNotes = strings.TrimSpace(*order.OrderNotes)
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: strings.TrimSpace(doc.OrderNumber),
		UserID:      strings.TrimSpace(doc.UserID),
		CustomerID:  strings.TrimSpace(doc.CustomerID),
		ShippingInfo: domain.Address{
			FullName:   doc.Shipping.FullName,
			Phone:      doc.Shipping.Phone,
			Email:      doc.Shipping.Email,
			Line1:      doc.Shipping.Line1,
			Line2:      doc.Shipping.Line2,
			City:       doc.Shipping.City,
			State:      doc.Shipping.State,
			PostalCode: doc.Shipping.PostalCode,
			Country:    doc.Shipping.Country,
		},
		Delivery: domain.DeliveryInfo{
			Method:       doc.Delivery.Method,
			Instructions: doc.Delivery.Instructions,
			PreferredAt:  doc.Delivery.PreferredAt,
		},
		Totals: domain.OrderTotals{
			Subtotal:     domain.Money(doc.Totals.Subtotal),
			GST5Total:    domain.Money(doc.Totals.GST5Total),
			GST18Total:   domain.Money(doc.Totals.GST18Total),
			TotalGST:     domain.Money(doc.Totals.TotalGST),
			ShippingCost: domain.Money(doc.Totals.ShippingCost),
			GrandTotal:   domain.Money(doc.Totals.GrandTotal),
		},
		Status:                domain.OrderStatus(doc.Status),
		PaymentStatus:         domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:         domain.PaymentMethod(doc.PaymentMethod),
		RequiresCustomization: doc.RequiresCustomization,
		CustomizationSummary:  strings.TrimSpace(doc.CustomizationSummary),
		ReservationIDs:        cloneStrings(doc.ReservationIDs),
		PaymentProcessedAt:    doc.PaymentProcessedAt,
		Metadata:              cloneAnyMap(doc.Metadata),
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
		PaidAt:                doc.PaidAt,
		CancelledAt:           doc.CancelledAt,
	}
	if txn := strings.TrimSpace(doc.TransactionID); txn != "" {
		order.TransactionID = &txn
	}
	if notes := strings.TrimSpace(doc.OrderNotes); notes != "" {
		order.OrderNotes = &notes
	}
	return order
}

func encodeAddress(addr domain.Address) addressDoc {
	return addressDoc{
		FullName:   strings.TrimSpace(addr.FullName),
		Phone:      strings.TrimSpace(addr.Phone),
		Email:      strings.TrimSpace(addr.Email),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func encodeOrderItemDocument(orderID string, item domain.OrderItem) orderItemDocument {
	return orderItemDocument{
		OrderRef:           orderID,
		ProductID:          strings.TrimSpace(item.ProductID),
		VariantID:          strings.TrimSpace(item.VariantID),
		ProductName:        strings.TrimSpace(item.ProductName),
		VariantSizeDisplay: strings.TrimSpace(item.VariantSizeDisplay),
		Quantity:           item.Pricing.Quantity,
		BasePrice:          item.Pricing.BasePrice.Paise(),
		GSTRate:            int(item.Pricing.GSTRate),
		GSTAmount:          item.Pricing.GSTAmount.Paise(),
		UnitPriceWithGST:   item.Pricing.UnitPriceWithGST.Paise(),
		ItemSubtotal:       item.Pricing.ItemSubtotal.Paise(),
		ItemGSTTotal:       item.Pricing.ItemGSTTotal.Paise(),
		ItemTotal:          item.Pricing.ItemTotal.Paise(),
		Customization:      newCustomizationDocument(item.Customization),
	}
}

func decodeOrderItemDocument(id string, doc orderItemDocument) domain.OrderItem {
	return domain.OrderItem{
		ID:                 id,
		OrderID:            strings.TrimSpace(doc.OrderRef),
		ProductID:          strings.TrimSpace(doc.ProductID),
		VariantID:          strings.TrimSpace(doc.VariantID),
		ProductName:        strings.TrimSpace(doc.ProductName),
		VariantSizeDisplay: strings.TrimSpace(doc.VariantSizeDisplay),
		Pricing: domain.ItemPricing{
			Quantity:         doc.Quantity,
			BasePrice:        domain.Money(doc.BasePrice),
			GSTRate:          domain.GSTRate(doc.GSTRate),
			GSTAmount:        domain.Money(doc.GSTAmount),
			UnitPriceWithGST: domain.Money(doc.UnitPriceWithGST),
			ItemSubtotal:     domain.Money(doc.ItemSubtotal),
			ItemGSTTotal:     domain.Money(doc.ItemGSTTotal),
			ItemTotal:        domain.Money(doc.ItemTotal),
		},
		Customization: customizationToDomain(doc.Customization),
	}
}

func encodeCustomizationRequestDocument(request domain.CustomizationRequest) customizationRequestDocument {
	doc := customizationRequestDocument{
		OrderRef:             strings.TrimSpace(request.OrderID),
		OrderItemRef:         strings.TrimSpace(request.OrderItemID),
		CustomizationType:    string(request.CustomizationType),
		CustomerRequirements: strings.TrimSpace(request.CustomerRequirements),
		ArchiveRefs:          cloneStrings(request.ArchiveRefs),
		Status:               string(request.Status),
		CreatedAt:            request.CreatedAt.UTC(),
		UpdatedAt:            request.UpdatedAt.UTC(),
	}
	for _, asset := range request.DesignFiles {
		doc.DesignFiles = append(doc.DesignFiles, designAssetDocument{
			URL:      asset.URL,
			PublicID: asset.PublicID,
			Format:   asset.Format,
			Width:    asset.Width,
			Height:   asset.Height,
			Bytes:    asset.Bytes,
		})
	}
	if request.AdminNotes != nil {
		doc.AdminNotes = strings.TrimSpace(*request.AdminNotes)
	}
	return doc
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	normalized := value.UTC()
	return &normalized
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
