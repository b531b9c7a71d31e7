package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/shilpkart/api/internal/domain"
	pfirestore "github.com/shilpkart/api/internal/platform/firestore"
	"github.com/shilpkart/api/internal/repositories"
)

const (
	productsCollection = "products"
	variantsCollection = "productVariants"
)

// CatalogRepository reads product and variant rows from Firestore. Pricing
// and tax decisions are always made from these reads, never from what the
// client sent.
type CatalogRepository struct {
	products *pfirestore.BaseRepository[productDocument]
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		variants: pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil),
	}, nil
}

// GetProduct fetches a single product row.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// GetProducts fetches a batch of products. Missing IDs are omitted from the
// result, not errors, so checkout can report which line is stale.
func (r *CatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	products := make(map[string]domain.Product, len(productIDs))
	for _, productID := range productIDs {
		productID = strings.TrimSpace(productID)
		if productID == "" {
			continue
		}
		if _, ok := products[productID]; ok {
			continue
		}
		doc, err := r.products.Get(ctx, productID)
		if err != nil {
			if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		products[productID] = decodeProductDocument(doc.ID, doc.Data)
	}
	return products, nil
}

// GetVariant fetches a single variant row.
func (r *CatalogRepository) GetVariant(ctx context.Context, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.variants == nil {
		return domain.ProductVariant{}, errors.New("catalog repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.ProductVariant{}, errors.New("catalog repository: variant id is required")
	}
	doc, err := r.variants.Get(ctx, variantID)
	if err != nil {
		return domain.ProductVariant{}, err
	}
	return decodeVariantDocument(doc.ID, doc.Data), nil
}

// GetVariants fetches a batch of variants, omitting missing IDs.
func (r *CatalogRepository) GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	if r == nil || r.variants == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	variants := make(map[string]domain.ProductVariant, len(variantIDs))
	for _, variantID := range variantIDs {
		variantID = strings.TrimSpace(variantID)
		if variantID == "" {
			continue
		}
		if _, ok := variants[variantID]; ok {
			continue
		}
		doc, err := r.variants.Get(ctx, variantID)
		if err != nil {
			if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		variants[variantID] = decodeVariantDocument(doc.ID, doc.Data)
	}
	return variants, nil
}

// ListProducts returns catalog rows matching the filter ordered by name.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("catalog repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.OnlyActive {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
			q = q.StartAfter(token)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		valueDocs = valueDocs[:limit]
		nextToken = valueDocs[len(valueDocs)-1].Data.Name
	}

	items := make([]domain.Product, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// ListVariants returns all variants of a product.
func (r *CatalogRepository) ListVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	if r == nil || r.variants == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, errors.New("catalog repository: product id is required")
	}
	docs, err := r.variants.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).OrderBy("sizeDisplay", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	variants := make([]domain.ProductVariant, 0, len(docs))
	for _, doc := range docs {
		variants = append(variants, decodeVariantDocument(doc.ID, doc.Data))
	}
	return variants, nil
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description,omitempty"`
	Category     string    `firestore:"category"`
	GST5Pct      bool      `firestore:"gst5Pct"`
	GST18Pct     bool      `firestore:"gst18Pct"`
	Customizable bool      `firestore:"customizable"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type variantDocument struct {
	ProductID   string    `firestore:"productId"`
	SizeDisplay string    `firestore:"sizeDisplay"`
	Price       int64     `firestore:"pricePaise"`
	Active      bool      `firestore:"active"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         strings.TrimSpace(doc.Name),
		Description:  strings.TrimSpace(doc.Description),
		Category:     strings.TrimSpace(doc.Category),
		GST5Pct:      doc.GST5Pct,
		GST18Pct:     doc.GST18Pct,
		Customizable: doc.Customizable,
		Active:       doc.Active,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func decodeVariantDocument(id string, doc variantDocument) domain.ProductVariant {
	return domain.ProductVariant{
		ID:          id,
		ProductID:   strings.TrimSpace(doc.ProductID),
		SizeDisplay: strings.TrimSpace(doc.SizeDisplay),
		Price:       domain.Money(doc.Price),
		Active:      doc.Active,
		UpdatedAt:   doc.UpdatedAt,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
