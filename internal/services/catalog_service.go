package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/repositories"
)

var (
	// ErrCatalogNotFound indicates the product does not exist or is inactive.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates the backing store failed.
	ErrCatalogUnavailable = errors.New("catalog: temporarily unavailable")
)

// CatalogServiceDeps wires the read-only catalog facade.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	catalog repositories.CatalogRepository
}

// NewCatalogService validates dependencies and returns the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	return &catalogService{catalog: deps.Catalog}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogNotFound)
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return Product{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
		}
		return Product{}, fmt.Errorf("%w: load product: %v", ErrCatalogUnavailable, err)
	}
	if !product.Active {
		return Product{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: list products: %v", ErrCatalogUnavailable, err)
	}
	return page, nil
}

func (s *catalogService) ListVariants(ctx context.Context, productID string) ([]ProductVariant, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrCatalogNotFound)
	}
	variants, err := s.catalog.ListVariants(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
		}
		return nil, fmt.Errorf("%w: list variants: %v", ErrCatalogUnavailable, err)
	}

	active := variants[:0]
	for _, v := range variants {
		if v.Active {
			active = append(active, v)
		}
	}
	return active, nil
}
