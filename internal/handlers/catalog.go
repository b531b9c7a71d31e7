package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/pagination"
	"github.com/shilpkart/api/internal/repositories"
	"github.com/shilpkart/api/internal/services"
)

// CatalogHandlers serves the public product browse endpoints. No
// authentication is required; only active products and variants are returned.
type CatalogHandlers struct {
	catalog services.CatalogService
}

func NewCatalogHandlers(catalog services.CatalogService) (*CatalogHandlers, error) {
	if catalog == nil {
		return nil, errors.New("handlers: catalog service is required")
	}
	return &CatalogHandlers{catalog: catalog}, nil
}

// Register mounts the catalog routes on the provided router group.
func (h *CatalogHandlers) Register(r chi.Router) {
	r.Get("/", h.ListProducts)
	r.Get("/{productID}", h.GetProduct)
	r.Get("/{productID}/variants", h.ListVariants)
}

func (h *CatalogHandlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize:    20,
		MaxPageSize:        100,
		AllowedOrderFields: []string{"createdAt", "name"},
		AllowedFilterFields: map[string][]pagination.Operator{
			"category": {pagination.OperatorEqual},
		},
	})
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	filter := repositories.ProductListFilter{
		OnlyActive: true,
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
		Sort:       domain.SortAscending,
	}
	for _, f := range params.Filters {
		if f.Field == "category" {
			filter.Category = f.Value
		}
	}
	for _, order := range params.Orders {
		if order.Desc {
			filter.Sort = domain.SortDescending
		}
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	products := make([]productView, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, newProductView(product))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":      products,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *CatalogHandlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(product))
}

func (h *CatalogHandlers) ListVariants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	variants, err := h.catalog.ListVariants(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]variantView, 0, len(variants))
	for _, variant := range variants {
		views = append(views, newVariantView(variant))
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": views})
}
