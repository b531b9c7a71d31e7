package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/textutil"
	"github.com/shilpkart/api/internal/repositories"
)

const (
	orderIDPrefix    = "ord_"
	itemIDPrefix     = "itm_"
	requestIDPrefix  = "csr_"
	customerIDPrefix = "cus_"

	orderReservationReason       = "order_assembly"
	orderReleaseReasonProvision  = "order_provisioning_failed"
	orderCounterID               = "orders"
	maxCustomizationSummaryItems = 5
)

var (
	// ErrOrderValidation signals client-correctable input problems such as a
	// cart line without a variant. Nothing is persisted.
	ErrOrderValidation = errors.New("order: validation failed")
	// ErrOrderPricingUnavailable indicates the fresh catalog/tax lookup failed.
	ErrOrderPricingUnavailable = errors.New("order: pricing data unavailable")
	// ErrOrderPersistence indicates a database write failed; compensation has run.
	ErrOrderPersistence = errors.New("order: persistence failed")
	// ErrOrderProvisioning indicates upload or reservation failed after the
	// order row existed; compensation has run.
	ErrOrderProvisioning = errors.New("order: provisioning failed")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the order belongs to a different user.
	ErrOrderForbidden = errors.New("order: forbidden")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Catalog     repositories.CatalogRepository
	Counters    repositories.CounterRepository
	Inventory   InventoryService
	Uploads     UploadService
	Pricing     PricingService
	Events      OrderEventPublisher
	Archive     ArtworkArchiver
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	customers repositories.CustomerRepository
	catalog   repositories.CatalogRepository
	counters  repositories.CounterRepository
	inventory InventoryService
	uploads   UploadService
	pricing   PricingService
	events    OrderEventPublisher
	archive   ArtworkArchiver
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		customers: deps.Customers,
		catalog:   deps.Catalog,
		counters:  deps.Counters,
		inventory: deps.Inventory,
		uploads:   deps.Uploads,
		pricing:   deps.Pricing,
		events:    deps.Events,
		archive:   deps.Archive,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// undoLog records compensating actions for completed steps. On failure it is
// replayed newest-first, so reservations taken last are released before the
// order row they reference is deleted.
type undoLog struct {
	actions []undoAction
}

type undoAction struct {
	name string
	fn   func(ctx context.Context) error
}

func (l *undoLog) push(name string, fn func(ctx context.Context) error) {
	l.actions = append(l.actions, undoAction{name: name, fn: fn})
}

func (l *undoLog) replay(ctx context.Context, logger func(context.Context, string, map[string]any)) {
	for i := len(l.actions) - 1; i >= 0; i-- {
		action := l.actions[i]
		if err := action.fn(ctx); err != nil {
			logger(ctx, "order.compensation_failed", map[string]any{
				"step":  action.name,
				"error": err.Error(),
			})
		}
	}
}

// CreateOrder persists the order aggregate from validated cart lines. There is
// no database transaction spanning the steps; instead each completed step
// pushes a compensating action onto an undo log that is replayed in reverse on
// any later failure. A crash between a step and its compensation leaves an
// orphaned pending order for the reconciler to sweep. Retrying after a failure
// creates a brand-new order; there is no idempotent resume.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderValidation)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: cart must contain at least one item", ErrOrderValidation)
	}

	// Variant presence is validated before any read or write.
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.VariantID) == "" {
			return Order{}, fmt.Errorf("%w: %s has no variant selected", ErrOrderValidation, lineDisplayName(line))
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: %s has an invalid quantity", ErrOrderValidation, lineDisplayName(line))
		}
	}

	// Fresh catalog read. Client-cached prices and GST flags are never trusted.
	products, variants, err := s.fetchCatalog(ctx, cmd.Lines)
	if err != nil {
		return Order{}, err
	}

	customer, err := s.findOrCreateCustomer(ctx, userID, cmd.ShippingInfo)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	pricings := make([]ItemPricing, len(cmd.Lines))
	for i, line := range cmd.Lines {
		variant := variants[line.VariantID]
		product := products[variant.ProductID]
		pricings[i] = s.pricing.CalculateItemPricing(ctx, line, variant, product)
	}
	shipping := s.pricing.ShippingCost(subtotalOf(pricings))
	totals := s.pricing.CalculateOrderTotals(pricings, shipping)

	orderNumber, err := s.nextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("%w: order number: %v", ErrOrderPersistence, err)
	}

	order := Order{
		ID:            orderIDPrefix + s.newID(),
		OrderNumber:   orderNumber,
		UserID:        userID,
		CustomerID:    customer.ID,
		ShippingInfo:  cmd.ShippingInfo,
		Delivery:      cmd.Delivery,
		Totals:        totals,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: cmd.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if notes := textutil.SanitizeFreeText(cmd.OrderNotes); notes != "" {
		order.OrderNotes = &notes
	}

	var undo undoLog
	fail := func(sentinel error, cause error) (Order, error) {
		undo.replay(ctx, s.logger)
		return Order{}, fmt.Errorf("%w: %v", sentinel, cause)
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, fmt.Errorf("%w: insert order: %v", ErrOrderPersistence, err)
	}
	undo.push("delete_order", func(ctx context.Context) error {
		return s.orders.Delete(ctx, order.ID)
	})

	// Resolve customization uploads and normalise customization payloads.
	items := make([]OrderItem, len(cmd.Lines))
	requiresCustomization := false
	for i, line := range cmd.Lines {
		variant := variants[line.VariantID]
		product := products[variant.ProductID]

		customization, uploadErr := s.resolveCustomization(ctx, line.Customization, product.Name)
		if uploadErr != nil {
			return fail(ErrOrderProvisioning, uploadErr)
		}
		if customization != nil {
			requiresCustomization = true
		}

		items[i] = OrderItem{
			ID:                 itemIDPrefix + s.newID(),
			OrderID:            order.ID,
			ProductID:          product.ID,
			VariantID:          variant.ID,
			ProductName:        product.Name,
			VariantSizeDisplay: variant.SizeDisplay,
			Pricing:            pricings[i],
			Customization:      customization,
		}
	}

	if err := s.orders.InsertItems(ctx, order.ID, items); err != nil {
		return fail(ErrOrderPersistence, fmt.Errorf("insert items: %v", err))
	}
	undo.push("delete_order_items", func(ctx context.Context) error {
		return s.orders.DeleteItems(ctx, order.ID)
	})

	insertedRequests := false
	for i, item := range items {
		if item.Customization == nil {
			continue
		}
		request := domain.CustomizationRequest{
			ID:                   requestIDPrefix + s.newID(),
			OrderID:              order.ID,
			OrderItemID:          item.ID,
			CustomizationType:    item.Customization.Type,
			CustomerRequirements: item.Customization.Requirements,
			DesignFiles:          item.Customization.Assets,
			ArchiveRefs:          s.archiveArtwork(ctx, order.ID, item.ID, cmd.Lines[i].Customization),
			Status:               domain.CustomizationPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.orders.InsertCustomizationRequest(ctx, request); err != nil {
			if insertedRequests {
				undo.push("delete_customization_requests", func(ctx context.Context) error {
					return s.orders.DeleteCustomizationRequests(ctx, order.ID)
				})
			}
			return fail(ErrOrderPersistence, fmt.Errorf("insert customization request: %v", err))
		}
		insertedRequests = true
	}
	if insertedRequests {
		undo.push("delete_customization_requests", func(ctx context.Context) error {
			return s.orders.DeleteCustomizationRequests(ctx, order.ID)
		})
	}

	// Reserve stock per line, sequentially, so a failure on line k leaves a
	// deterministic set {1..k-1} on the undo log.
	reservationIDs := make([]string, 0, len(items))
	for _, item := range items {
		reservation, reserveErr := s.inventory.ReserveStock(ctx, ReserveStockCommand{
			VariantID: item.VariantID,
			Quantity:  item.Pricing.Quantity,
			UserID:    userID,
			OrderID:   order.ID,
			Reason:    orderReservationReason,
		})
		if reserveErr != nil {
			return fail(ErrOrderProvisioning, fmt.Errorf("reserve %s: %w", item.ProductName, reserveErr))
		}
		reservationID := reservation.ID
		reservationIDs = append(reservationIDs, reservationID)
		undo.push("release_reservation", func(ctx context.Context) error {
			return s.inventory.ReleaseReservations(ctx, []string{reservationID}, orderReleaseReasonProvision)
		})
	}

	if err := s.inventory.ConfirmReservations(ctx, ConfirmReservationsCommand{
		ReservationIDs: reservationIDs,
		OrderID:        order.ID,
	}); err != nil {
		return fail(ErrOrderProvisioning, fmt.Errorf("confirm reservations: %w", err))
	}

	order.Items = items
	order.ReservationIDs = reservationIDs
	order.RequiresCustomization = requiresCustomization
	order.CustomizationSummary = buildCustomizationSummary(items)
	order.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, order); err != nil {
		return fail(ErrOrderPersistence, fmt.Errorf("finalize order: %v", err))
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventType:     OrderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		AmountPaise:   order.Totals.GrandTotal.Paise(),
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderForUser(ctx context.Context, orderID, userID string) (Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != strings.TrimSpace(userID) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) fetchCatalog(ctx context.Context, lines []CartLine) (map[string]Product, map[string]ProductVariant, error) {
	variantIDs := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.VariantID)
		if !seen[id] {
			seen[id] = true
			variantIDs = append(variantIDs, id)
		}
	}

	variants, err := s.catalog.GetVariants(ctx, variantIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: variants: %v", ErrOrderPricingUnavailable, err)
	}
	productIDs := make([]string, 0, len(variants))
	productSeen := make(map[string]bool, len(variants))
	for _, line := range lines {
		variant, ok := variants[strings.TrimSpace(line.VariantID)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown variant for %s", ErrOrderValidation, lineDisplayName(line))
		}
		if !productSeen[variant.ProductID] {
			productSeen[variant.ProductID] = true
			productIDs = append(productIDs, variant.ProductID)
		}
	}

	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: products: %v", ErrOrderPricingUnavailable, err)
	}
	for _, id := range productIDs {
		if _, ok := products[id]; !ok {
			return nil, nil, fmt.Errorf("%w: product %s missing", ErrOrderPricingUnavailable, id)
		}
	}

	return products, variants, nil
}

func (s *orderService) findOrCreateCustomer(ctx context.Context, userID string, contact Address) (Customer, error) {
	customer, err := s.customers.FindByUserID(ctx, userID)
	if err == nil {
		return customer, nil
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Customer{}, fmt.Errorf("%w: customer lookup: %v", ErrOrderPersistence, err)
	}

	now := s.clock()
	customer = Customer{
		ID:        customerIDPrefix + s.newID(),
		UserID:    userID,
		FullName:  strings.TrimSpace(contact.FullName),
		Email:     strings.TrimSpace(contact.Email),
		Phone:     strings.TrimSpace(contact.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, fmt.Errorf("%w: create customer: %v", ErrOrderPersistence, err)
	}
	return customer, nil
}

// resolveCustomization normalises the payload and uploads any pending files.
// Returns nil when nothing usable remains after stripping empty fields.
func (s *orderService) resolveCustomization(ctx context.Context, c *Customization, itemName string) (*Customization, error) {
	if c == nil {
		return nil, nil
	}

	normalised := Customization{
		Type:         c.Type,
		Text:         strings.TrimSpace(c.Text),
		Requirements: textutil.SanitizeFreeText(c.Requirements),
		Assets:       append([]DesignAsset(nil), c.Assets...),
	}

	for _, file := range c.Files {
		if len(file.Data) == 0 {
			continue
		}
		if s.uploads == nil {
			return nil, fmt.Errorf("upload service not configured for %s", itemName)
		}
		asset, err := s.uploads.UploadCustomizationImage(ctx, file, itemName)
		if err != nil {
			return nil, err
		}
		normalised.Assets = append(normalised.Assets, asset)
	}

	if normalised.IsEmpty() {
		return nil, nil
	}
	if normalised.Type == "" {
		switch {
		case len(normalised.Assets) > 0 && normalised.Text != "":
			normalised.Type = domain.CustomizationImageAndText
		case len(normalised.Assets) > 0:
			normalised.Type = domain.CustomizationImage
		default:
			normalised.Type = domain.CustomizationText
		}
	}
	return &normalised, nil
}

// archiveArtwork copies the original uploaded files to the archive bucket.
// Archiving is best effort; the asset-host copy created during upload is the
// source of record, so a failed archive write logs and moves on.
func (s *orderService) archiveArtwork(ctx context.Context, orderID, itemID string, c *Customization) []string {
	if s.archive == nil || c == nil || len(c.Files) == 0 {
		return nil
	}
	refs := make([]string, 0, len(c.Files))
	for _, file := range c.Files {
		if len(file.Data) == 0 {
			continue
		}
		ref, err := s.archive.ArchiveArtwork(ctx, orderID, itemID, file.FileName, file.ContentType, file.Data)
		if err != nil {
			s.logger(ctx, "order.artwork_archive_failed", map[string]any{
				"orderId":     orderID,
				"orderItemId": itemID,
				"fileName":    file.FileName,
				"error":       err.Error(),
			})
			continue
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func (s *orderService) nextOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SK-%06d", seq), nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderPersistence, err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"eventType": string(message.EventType),
			"orderId":   message.OrderID,
			"error":     err.Error(),
		})
	}
}

func subtotalOf(pricings []ItemPricing) Money {
	var subtotal Money
	for _, p := range pricings {
		subtotal += p.ItemSubtotal
	}
	return subtotal
}

func lineDisplayName(line CartLine) string {
	if name := strings.TrimSpace(line.Name); name != "" {
		return name
	}
	if id := strings.TrimSpace(line.VariantID); id != "" {
		return id
	}
	return strings.TrimSpace(line.ProductID)
}

func buildCustomizationSummary(items []OrderItem) string {
	var parts []string
	for _, item := range items {
		if item.Customization == nil {
			continue
		}
		if len(parts) == maxCustomizationSummaryItems {
			parts = append(parts, "…")
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", item.ProductName, item.Customization.Type))
	}
	return strings.Join(parts, ", ")
}
