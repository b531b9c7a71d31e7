package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/repositories"
)

type stubOrderRepo struct {
	insertFn         func(ctx context.Context, order domain.Order) error
	updateFn         func(ctx context.Context, order domain.Order) error
	insertItemsFn    func(ctx context.Context, orderID string, items []domain.OrderItem) error
	insertRequestFn  func(ctx context.Context, request domain.CustomizationRequest) error
	findByIDFn       func(ctx context.Context, orderID string) (domain.Order, error)
	findByTxnFn      func(ctx context.Context, transactionID string) (domain.Order, error)
	listFn           func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	listStaleFn      func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	updateStateFn    func(ctx context.Context, update repositories.OrderPaymentStateUpdate) (domain.Order, error)
	markProcessedFn  func(ctx context.Context, orderID string, at time.Time) (bool, error)
	deleteRequestsFn func(ctx context.Context, orderID string) error
	deleteItemsFn    func(ctx context.Context, orderID string) error
	deleteFn         func(ctx context.Context, orderID string) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) InsertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if s.insertItemsFn != nil {
		return s.insertItemsFn(ctx, orderID, items)
	}
	return nil
}

func (s *stubOrderRepo) InsertCustomizationRequest(ctx context.Context, request domain.CustomizationRequest) error {
	if s.insertRequestFn != nil {
		return s.insertRequestFn(ctx, request)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByTransactionID(ctx context.Context, transactionID string) (domain.Order, error) {
	if s.findByTxnFn != nil {
		return s.findByTxnFn(ctx, transactionID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if s.listStaleFn != nil {
		return s.listStaleFn(ctx, cutoff, limit)
	}
	return nil, nil
}

func (s *stubOrderRepo) UpdatePaymentState(ctx context.Context, update repositories.OrderPaymentStateUpdate) (domain.Order, error) {
	if s.updateStateFn != nil {
		return s.updateStateFn(ctx, update)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) MarkPaymentProcessed(ctx context.Context, orderID string, at time.Time) (bool, error) {
	if s.markProcessedFn != nil {
		return s.markProcessedFn(ctx, orderID, at)
	}
	return true, nil
}

func (s *stubOrderRepo) DeleteCustomizationRequests(ctx context.Context, orderID string) error {
	if s.deleteRequestsFn != nil {
		return s.deleteRequestsFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) DeleteItems(ctx context.Context, orderID string) error {
	if s.deleteItemsFn != nil {
		return s.deleteItemsFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

type stubCustomerRepo struct {
	findByUserFn func(ctx context.Context, userID string) (domain.Customer, error)
	insertFn     func(ctx context.Context, customer domain.Customer) error
}

func (s *stubCustomerRepo) Insert(ctx context.Context, customer domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, customer domain.Customer) error {
	return errors.New("not implemented")
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	return domain.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerRepo) FindByUserID(ctx context.Context, userID string) (domain.Customer, error) {
	if s.findByUserFn != nil {
		return s.findByUserFn(ctx, userID)
	}
	return domain.Customer{ID: "cus_existing", UserID: userID}, nil
}

type stubCatalogRepo struct {
	getProductFn   func(ctx context.Context, productID string) (domain.Product, error)
	getProductsFn  func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	getVariantFn   func(ctx context.Context, variantID string) (domain.ProductVariant, error)
	getVariantsFn  func(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error)
	listProductsFn func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	listVariantsFn func(ctx context.Context, productID string) ([]domain.ProductVariant, error)
}

func (s *stubCatalogRepo) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getProductFn != nil {
		return s.getProductFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.getProductsFn != nil {
		return s.getProductsFn(ctx, productIDs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogRepo) GetVariant(ctx context.Context, variantID string) (domain.ProductVariant, error) {
	if s.getVariantFn != nil {
		return s.getVariantFn(ctx, variantID)
	}
	return domain.ProductVariant{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	if s.getVariantsFn != nil {
		return s.getVariantsFn(ctx, variantIDs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogRepo) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listProductsFn != nil {
		return s.listProductsFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubCatalogRepo) ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	if s.listVariantsFn != nil {
		return s.listVariantsFn(ctx, productID)
	}
	return nil, nil
}

type stubCounterRepo struct {
	next int64
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.next += step
	return s.next, nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

type stubInventoryService struct {
	reserveFn  func(ctx context.Context, cmd ReserveStockCommand) (StockReservation, error)
	confirmFn  func(ctx context.Context, cmd ConfirmReservationsCommand) error
	releaseFn  func(ctx context.Context, reservationIDs []string, reason string) error
	validateFn func(ctx context.Context, lines []CartLine) ([]StockShortfall, error)
}

func (s *stubInventoryService) AvailableStock(ctx context.Context, variantID string) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *stubInventoryService) ReserveStock(ctx context.Context, cmd ReserveStockCommand) (StockReservation, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	return StockReservation{ID: "sr_" + cmd.VariantID, VariantID: cmd.VariantID, Quantity: cmd.Quantity}, nil
}

func (s *stubInventoryService) ConfirmReservations(ctx context.Context, cmd ConfirmReservationsCommand) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return nil
}

func (s *stubInventoryService) ReleaseReservations(ctx context.Context, reservationIDs []string, reason string) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, reservationIDs, reason)
	}
	return nil
}

func (s *stubInventoryService) ValidateAvailability(ctx context.Context, lines []CartLine) ([]StockShortfall, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, lines)
	}
	return nil, nil
}

type stubUploadService struct {
	uploadFn func(ctx context.Context, file UploadFile, itemName string) (DesignAsset, error)
}

func (s *stubUploadService) UploadCustomizationImage(ctx context.Context, file UploadFile, itemName string) (DesignAsset, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, file, itemName)
	}
	return DesignAsset{URL: "https://assets.example.com/" + file.FileName, PublicID: file.FileName}, nil
}

type stubArtworkArchiver struct {
	archiveFn func(ctx context.Context, orderID, orderItemID, fileName, contentType string, data []byte) (string, error)
}

func (s *stubArtworkArchiver) ArchiveArtwork(ctx context.Context, orderID, orderItemID, fileName, contentType string, data []byte) (string, error) {
	if s.archiveFn != nil {
		return s.archiveFn(ctx, orderID, orderItemID, fileName, contentType, data)
	}
	return fmt.Sprintf("gs://archive/orders/%s/items/%s/artwork/%s", orderID, orderItemID, fileName), nil
}

type captureOrderEvents struct {
	messages []OrderEventMessage
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	c.messages = append(c.messages, message)
	return fmt.Sprintf("msg-%d", len(c.messages)), nil
}

type orderTestFixture struct {
	orders    *stubOrderRepo
	customers *stubCustomerRepo
	catalog   *stubCatalogRepo
	counters  *stubCounterRepo
	inventory *stubInventoryService
	uploads   *stubUploadService
	events    *captureOrderEvents
	archive   ArtworkArchiver
}

func newOrderFixture() *orderTestFixture {
	f := &orderTestFixture{
		orders:    &stubOrderRepo{},
		customers: &stubCustomerRepo{},
		catalog:   &stubCatalogRepo{},
		counters:  &stubCounterRepo{next: 122},
		inventory: &stubInventoryService{},
		uploads:   &stubUploadService{},
		events:    &captureOrderEvents{},
	}
	f.catalog.getVariantsFn = func(_ context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
		variants := make(map[string]domain.ProductVariant, len(variantIDs))
		for _, id := range variantIDs {
			variants[id] = domain.ProductVariant{
				ID:        id,
				ProductID: "prod-" + strings.TrimPrefix(id, "var-"),
				Price:     domain.RupeesToPaise(100),
				Active:    true,
			}
		}
		return variants, nil
	}
	f.catalog.getProductsFn = func(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
		products := make(map[string]domain.Product, len(productIDs))
		for _, id := range productIDs {
			products[id] = domain.Product{ID: id, Name: "Product " + id, GST18Pct: true, Active: true, Customizable: true}
		}
		return products, nil
	}
	return f
}

func (f *orderTestFixture) service(t *testing.T) OrderService {
	t.Helper()
	pricing, err := NewPricingEngine(PricingEngineDeps{FlatShipping: 8000})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	id := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Customers: f.customers,
		Catalog:   f.catalog,
		Counters:  f.counters,
		Inventory: f.inventory,
		Uploads:   f.uploads,
		Pricing:   pricing,
		Events:    f.events,
		Archive:   f.archive,
		Clock:     func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			id++
			return fmt.Sprintf("id%02d", id)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestCreateOrderAssemblesAggregate(t *testing.T) {
	f := newOrderFixture()

	var inserted domain.Order
	f.orders.insertFn = func(_ context.Context, order domain.Order) error {
		inserted = order
		return nil
	}
	var finalized domain.Order
	f.orders.updateFn = func(_ context.Context, order domain.Order) error {
		finalized = order
		return nil
	}
	var confirmedIDs []string
	f.inventory.confirmFn = func(_ context.Context, cmd ConfirmReservationsCommand) error {
		confirmedIDs = cmd.ReservationIDs
		return nil
	}

	svc := f.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{
			{ProductID: "prod-1", VariantID: "var-1", Name: "Brass Trophy", Quantity: 2},
			{ProductID: "prod-2", VariantID: "var-2", Name: "Wood Plaque", Quantity: 1},
		},
		ShippingInfo:  domain.Address{FullName: "Asha Rao", Email: "asha@example.com", Phone: "9000000000"},
		PaymentMethod: domain.PaymentMethodRazorpay,
		OrderNotes:    "  gift wrap please  ",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ prefix, got %s", order.ID)
	}
	if order.OrderNumber != "SK-000123" {
		t.Fatalf("expected order number SK-000123, got %s", order.OrderNumber)
	}
	if inserted.Status != domain.OrderStatusPending || inserted.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending/pending insert, got %s/%s", inserted.Status, inserted.PaymentStatus)
	}
	if inserted.OrderNotes == nil || *inserted.OrderNotes != "gift wrap please" {
		t.Fatalf("expected sanitized notes, got %v", inserted.OrderNotes)
	}

	// 2x10000p + 1x10000p base, each at 18%.
	if order.Totals.Subtotal != 30000 {
		t.Fatalf("expected subtotal 30000p, got %d", order.Totals.Subtotal)
	}
	if order.Totals.GrandTotal != order.Totals.Subtotal+order.Totals.TotalGST+order.Totals.ShippingCost {
		t.Fatalf("grand total invariant broken: %+v", order.Totals)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if !strings.HasPrefix(item.ID, "itm_") {
			t.Fatalf("expected itm_ prefix, got %s", item.ID)
		}
		if item.Pricing.ItemTotal != item.Pricing.UnitPriceWithGST*domain.Money(item.Pricing.Quantity) {
			t.Fatalf("item total mismatch: %+v", item.Pricing)
		}
	}

	if len(order.ReservationIDs) != 2 {
		t.Fatalf("expected 2 reservations, got %v", order.ReservationIDs)
	}
	if len(confirmedIDs) != 2 {
		t.Fatalf("expected batch confirm of 2, got %v", confirmedIDs)
	}
	if finalized.ID != order.ID || len(finalized.Items) != 2 {
		t.Fatalf("expected finalizing update with items, got %+v", finalized)
	}

	if len(f.events.messages) != 1 || f.events.messages[0].EventType != OrderEventCreated {
		t.Fatalf("expected order.created event, got %+v", f.events.messages)
	}
}

func TestCreateOrderValidatesBeforeAnyWrite(t *testing.T) {
	f := newOrderFixture()
	wrote := false
	f.orders.insertFn = func(_ context.Context, _ domain.Order) error {
		wrote = true
		return nil
	}
	svc := f.service(t)

	cases := []CreateOrderCommand{
		{},
		{UserID: "user-1"},
		{UserID: "user-1", Lines: []CartLine{{ProductID: "prod-1", Quantity: 1}}},
		{UserID: "user-1", Lines: []CartLine{{ProductID: "prod-1", VariantID: "var-1", Quantity: 0}}},
	}
	for i, cmd := range cases {
		if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if wrote {
		t.Fatalf("validation failures must not write")
	}
}

func TestCreateOrderUploadFailureDeletesOrder(t *testing.T) {
	f := newOrderFixture()

	var deletedOrder string
	f.orders.deleteFn = func(_ context.Context, orderID string) error {
		deletedOrder = orderID
		return nil
	}
	itemsWritten := false
	f.orders.insertItemsFn = func(_ context.Context, _ string, _ []domain.OrderItem) error {
		itemsWritten = true
		return nil
	}
	f.uploads.uploadFn = func(_ context.Context, _ UploadFile, itemName string) (DesignAsset, error) {
		return DesignAsset{}, fmt.Errorf("%w: %s: HTTP 400", ErrUploadFailed, itemName)
	}

	svc := f.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{{
			ProductID: "prod-1", VariantID: "var-1", Name: "Brass Trophy", Quantity: 1,
			Customization: &domain.Customization{Files: []domain.UploadFile{{FileName: "logo.png", Data: []byte{1}}}},
		}},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if !errors.Is(err, ErrOrderProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if deletedOrder == "" {
		t.Fatalf("expected order row deleted on upload failure")
	}
	if itemsWritten {
		t.Fatalf("items must not be written when upload fails")
	}
}

func TestCreateOrderArchivesOriginalArtwork(t *testing.T) {
	f := newOrderFixture()
	f.archive = &stubArtworkArchiver{}

	var request domain.CustomizationRequest
	f.orders.insertRequestFn = func(_ context.Context, r domain.CustomizationRequest) error {
		request = r
		return nil
	}

	svc := f.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{{
			ProductID: "prod-1", VariantID: "var-1", Name: "Brass Trophy", Quantity: 1,
			Customization: &domain.Customization{Files: []domain.UploadFile{
				{FileName: "logo.png", ContentType: "image/png", Data: []byte{1, 2}},
			}},
		}},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if len(request.ArchiveRefs) != 1 {
		t.Fatalf("expected 1 archive ref, got %v", request.ArchiveRefs)
	}
	want := fmt.Sprintf("gs://archive/orders/%s/items/%s/artwork/logo.png", order.ID, order.Items[0].ID)
	if request.ArchiveRefs[0] != want {
		t.Fatalf("expected archive ref %s, got %s", want, request.ArchiveRefs[0])
	}
}

func TestCreateOrderArchiveFailureDoesNotBlockOrder(t *testing.T) {
	f := newOrderFixture()
	f.archive = &stubArtworkArchiver{
		archiveFn: func(_ context.Context, _, _, _, _ string, _ []byte) (string, error) {
			return "", errors.New("bucket unavailable")
		},
	}

	var request domain.CustomizationRequest
	f.orders.insertRequestFn = func(_ context.Context, r domain.CustomizationRequest) error {
		request = r
		return nil
	}

	svc := f.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{{
			ProductID: "prod-1", VariantID: "var-1", Name: "Brass Trophy", Quantity: 1,
			Customization: &domain.Customization{Files: []domain.UploadFile{
				{FileName: "logo.png", ContentType: "image/png", Data: []byte{1}},
			}},
		}},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if err != nil {
		t.Fatalf("archive failure must not fail the order: %v", err)
	}
	if len(request.ArchiveRefs) != 0 {
		t.Fatalf("expected no archive refs, got %v", request.ArchiveRefs)
	}
}

func TestCreateOrderReservationFailureCompensatesInReverse(t *testing.T) {
	f := newOrderFixture()

	var undoSteps []string
	f.orders.deleteFn = func(_ context.Context, _ string) error {
		undoSteps = append(undoSteps, "delete_order")
		return nil
	}
	f.orders.deleteItemsFn = func(_ context.Context, _ string) error {
		undoSteps = append(undoSteps, "delete_items")
		return nil
	}
	var releasedIDs []string
	f.inventory.releaseFn = func(_ context.Context, reservationIDs []string, reason string) error {
		undoSteps = append(undoSteps, "release")
		releasedIDs = append(releasedIDs, reservationIDs...)
		if reason != "order_provisioning_failed" {
			t.Fatalf("unexpected release reason %q", reason)
		}
		return nil
	}
	f.inventory.reserveFn = func(_ context.Context, cmd ReserveStockCommand) (StockReservation, error) {
		if cmd.VariantID == "var-3" {
			return StockReservation{}, fmt.Errorf("%w: only 1 left", ErrInventoryInsufficientStock)
		}
		return StockReservation{ID: "sr_" + cmd.VariantID, VariantID: cmd.VariantID}, nil
	}

	svc := f.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{
			{ProductID: "prod-1", VariantID: "var-1", Quantity: 1},
			{ProductID: "prod-2", VariantID: "var-2", Quantity: 1},
			{ProductID: "prod-3", VariantID: "var-3", Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if !errors.Is(err, ErrOrderProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected wrapped inventory cause, got %v", err)
	}

	// Newest-first: the two successful reservations come back before the
	// item rows and order row are removed.
	want := []string{"release", "release", "delete_items", "delete_order"}
	if len(undoSteps) != len(want) {
		t.Fatalf("unexpected undo steps %v", undoSteps)
	}
	for i := range want {
		if undoSteps[i] != want[i] {
			t.Fatalf("undo step %d: expected %s, got %v", i, want[i], undoSteps)
		}
	}
	if len(releasedIDs) != 2 || releasedIDs[0] != "sr_var-2" || releasedIDs[1] != "sr_var-1" {
		t.Fatalf("expected reverse release order, got %v", releasedIDs)
	}
}

func TestCreateOrderConfirmFailureReleasesEverything(t *testing.T) {
	f := newOrderFixture()

	released := 0
	f.inventory.releaseFn = func(_ context.Context, reservationIDs []string, _ string) error {
		released += len(reservationIDs)
		return nil
	}
	f.inventory.confirmFn = func(_ context.Context, _ ConfirmReservationsCommand) error {
		return fmt.Errorf("%w: expired under us", ErrInventoryInvalidState)
	}
	orderDeleted := false
	f.orders.deleteFn = func(_ context.Context, _ string) error {
		orderDeleted = true
		return nil
	}

	svc := f.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{
			{ProductID: "prod-1", VariantID: "var-1", Quantity: 1},
			{ProductID: "prod-2", VariantID: "var-2", Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if !errors.Is(err, ErrOrderProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if released != 2 {
		t.Fatalf("expected both reservations released, got %d", released)
	}
	if !orderDeleted {
		t.Fatalf("expected order row deleted")
	}
}

func TestCreateOrderCustomizationRequestsOnlyForCustomizedItems(t *testing.T) {
	f := newOrderFixture()

	var requests []domain.CustomizationRequest
	f.orders.insertRequestFn = func(_ context.Context, request domain.CustomizationRequest) error {
		requests = append(requests, request)
		return nil
	}

	svc := f.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID: "user-1",
		Lines: []CartLine{
			{ProductID: "prod-1", VariantID: "var-1", Quantity: 1,
				Customization: &domain.Customization{Text: "To Appa, with love"}},
			{ProductID: "prod-2", VariantID: "var-2", Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodRazorpay,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if len(requests) != 1 {
		t.Fatalf("expected one customization request, got %d", len(requests))
	}
	if !strings.HasPrefix(requests[0].ID, "csr_") {
		t.Fatalf("expected csr_ prefix, got %s", requests[0].ID)
	}
	if requests[0].CustomizationType != domain.CustomizationText {
		t.Fatalf("expected inferred text type, got %s", requests[0].CustomizationType)
	}
	if !order.RequiresCustomization {
		t.Fatalf("expected requiresCustomization true")
	}
	if order.CustomizationSummary == "" {
		t.Fatalf("expected a customization summary")
	}
}

func TestCreateOrderCreatesCustomerWhenMissing(t *testing.T) {
	f := newOrderFixture()

	f.customers.findByUserFn = func(_ context.Context, _ string) (domain.Customer, error) {
		return domain.Customer{}, notFoundRepoError{}
	}
	var created domain.Customer
	f.customers.insertFn = func(_ context.Context, customer domain.Customer) error {
		created = customer
		return nil
	}

	svc := f.service(t)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		UserID:        "user-9",
		Lines:         []CartLine{{ProductID: "prod-1", VariantID: "var-1", Quantity: 1}},
		ShippingInfo:  domain.Address{FullName: " Ravi Kumar ", Email: " ravi@example.com ", Phone: "9111111111"},
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !strings.HasPrefix(created.ID, "cus_") || created.FullName != "Ravi Kumar" {
		t.Fatalf("unexpected customer %+v", created)
	}
	if order.CustomerID != created.ID {
		t.Fatalf("expected order linked to new customer")
	}
}

func TestGetOrderForUserEnforcesOwnership(t *testing.T) {
	f := newOrderFixture()
	f.orders.findByIDFn = func(_ context.Context, orderID string) (domain.Order, error) {
		return domain.Order{ID: orderID, UserID: "user-1"}, nil
	}

	svc := f.service(t)
	if _, err := svc.GetOrderForUser(context.Background(), "ord_1", "user-2"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.GetOrderForUser(context.Background(), "ord_1", "user-1"); err != nil {
		t.Fatalf("expected owner access, got %v", err)
	}
}

// notFoundRepoError satisfies repositories.RepositoryError for stubbing.
type notFoundRepoError struct{}

func (notFoundRepoError) Error() string       { return "not found" }
func (notFoundRepoError) IsNotFound() bool    { return true }
func (notFoundRepoError) IsConflict() bool    { return false }
func (notFoundRepoError) IsUnavailable() bool { return false }
