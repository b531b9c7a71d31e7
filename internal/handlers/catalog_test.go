package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/repositories"
	"github.com/shilpkart/api/internal/services"
)

type stubCatalogService struct {
	getFn      func(ctx context.Context, productID string) (services.Product, error)
	listFn     func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[services.Product], error)
	variantsFn func(ctx context.Context, productID string) ([]services.ProductVariant, error)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, fmt.Errorf("unexpected GetProduct call")
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, fmt.Errorf("unexpected ListProducts call")
}

func (s *stubCatalogService) ListVariants(ctx context.Context, productID string) ([]services.ProductVariant, error) {
	if s.variantsFn != nil {
		return s.variantsFn(ctx, productID)
	}
	return nil, fmt.Errorf("unexpected ListVariants call")
}

func catalogTestRouter(t *testing.T, svc services.CatalogService) chi.Router {
	t.Helper()
	h, err := NewCatalogHandlers(svc)
	if err != nil {
		t.Fatalf("NewCatalogHandlers: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/products", h.Register)
	return r
}

func TestListProductsAppliesCategoryFilter(t *testing.T) {
	var captured repositories.ProductListFilter
	svc := &stubCatalogService{
		listFn: func(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{
					ID:        "prd_1",
					Name:      "Engraved Brass Trophy",
					Category:  "trophies",
					GST18Pct:  true,
					Active:    true,
					UpdatedAt: time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
				}},
				NextPageToken: "tok-2",
			}, nil
		},
	}
	router := catalogTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/?filter=category==trophies&pageSize=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !captured.OnlyActive {
		t.Fatalf("expected listing to be scoped to active products")
	}
	if captured.Category != "trophies" {
		t.Fatalf("unexpected category filter %q", captured.Category)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected page size %d", captured.Pagination.PageSize)
	}

	payload := decodeBody(t, rec)
	if payload["nextPageToken"] != "tok-2" {
		t.Fatalf("unexpected nextPageToken %v", payload["nextPageToken"])
	}
	products, ok := payload["products"].([]any)
	if !ok || len(products) != 1 {
		t.Fatalf("expected one product, got %v", payload["products"])
	}
	first := products[0].(map[string]any)
	if first["name"] != "Engraved Brass Trophy" {
		t.Fatalf("unexpected product name %v", first["name"])
	}
	if first["gstRatePct"] != float64(18) {
		t.Fatalf("expected 18%% GST in view, got %v", first["gstRatePct"])
	}
}

func TestListProductsRejectsUnknownFilterField(t *testing.T) {
	router := catalogTestRouter(t, &stubCatalogService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/?filter=sku==ABC", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported filter, got %d", rec.Code)
	}
}

func TestGetProductMapsNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(_ context.Context, productID string) (services.Product, error) {
			return services.Product{}, fmt.Errorf("%w: %s", services.ErrCatalogNotFound, productID)
		},
	}
	router := catalogTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListVariantsReturnsPriceViews(t *testing.T) {
	svc := &stubCatalogService{
		variantsFn: func(_ context.Context, productID string) ([]services.ProductVariant, error) {
			if productID != "prd_1" {
				t.Fatalf("unexpected product id %s", productID)
			}
			return []services.ProductVariant{{
				ID:          "var_12in",
				ProductID:   "prd_1",
				SizeDisplay: "12 inch",
				Price:       domain.RupeesToPaise(1499),
				Active:      true,
			}}, nil
		},
	}
	router := catalogTestRouter(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/prd_1/variants", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	variants, ok := payload["variants"].([]any)
	if !ok || len(variants) != 1 {
		t.Fatalf("expected one variant, got %v", payload["variants"])
	}
	first := variants[0].(map[string]any)
	if first["productId"] != "prd_1" {
		t.Fatalf("unexpected productId %v", first["productId"])
	}
	price, ok := first["price"].(map[string]any)
	if !ok || price["paise"] != float64(149900) {
		t.Fatalf("unexpected price view %v", first["price"])
	}
}
