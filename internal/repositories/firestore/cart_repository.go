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
	cartCollection = "carts"
)

// CartRepository persists cart documents within Firestore. The document ID
// equals the user ID, so each user owns at most one cart.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart persists the cart document using the user ID as document
// identifier. When expectedUpdate is set it is enforced as a last-update-time
// precondition, so concurrent writers lose cleanly instead of clobbering.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := strings.TrimSpace(firstCartID(cart))
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Lines:      newCartLineDocuments(cart.Lines),
		Metadata:   cloneAnyMap(cart.Metadata),
		ItemsCount: len(cart.Lines),
		UpdatedAt:  now,
		CreatedAt:  createdAt,
	}

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, cartID, doc)
		if err != nil {
			return domain.Cart{}, err
		}

		saved := cloneCart(cart)
		saved.ID = cartID
		saved.UserID = cartID
		saved.Metadata = cloneAnyMap(cart.Metadata)
		saved.CreatedAt = doc.CreatedAt
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "lines", Value: doc.Lines},
		{Path: "itemsCount", Value: doc.ItemsCount},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	if len(doc.Metadata) == 0 {
		updates = append(updates, firestore.Update{Path: "metadata", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "metadata", Value: doc.Metadata})
	}

	result, err := r.base.Update(ctx, cartID, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cloneCart(cart)
	saved.ID = cartID
	saved.UserID = cartID
	saved.Metadata = cloneAnyMap(cart.Metadata)
	saved.CreatedAt = cart.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:       doc.ID,
		UserID:   doc.ID,
		Lines:    cartLinesToDomain(doc.Data.Lines),
		Metadata: cloneAnyMap(doc.Data.Metadata),
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return doc.Data.UpdatedAt
		}(),
		CreatedAt: func() time.Time {
			if !doc.Data.CreatedAt.IsZero() {
				return doc.Data.CreatedAt
			}
			return doc.UpdateTime
		}(),
	}

	return cart, nil
}

// ClearCart empties the cart after a successful checkout. The document stays
// behind with zero lines so the client keeps its cart metadata.
func (r *CartRepository) ClearCart(ctx context.Context, userID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	updates := []firestore.Update{
		{Path: "lines", Value: []cartLineDocument{}},
		{Path: "itemsCount", Value: 0},
		{Path: "updatedAt", Value: now.UTC()},
	}
	_, err := r.base.Update(ctx, uid, updates)
	return err
}

func firstCartID(cart domain.Cart) string {
	if strings.TrimSpace(cart.ID) != "" {
		return strings.TrimSpace(cart.ID)
	}
	return strings.TrimSpace(cart.UserID)
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Lines != nil {
		dup.Lines = make([]domain.CartLine, len(cart.Lines))
		copy(dup.Lines, cart.Lines)
	}
	if cart.Metadata != nil {
		dup.Metadata = cloneAnyMap(cart.Metadata)
	}
	return dup
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type cartDocument struct {
	Lines      []cartLineDocument `firestore:"lines"`
	Metadata   map[string]any     `firestore:"metadata,omitempty"`
	ItemsCount int                `firestore:"itemsCount"`
	CreatedAt  time.Time          `firestore:"createdAt"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ProductID     string                 `firestore:"productId"`
	VariantID     string                 `firestore:"variantId"`
	Name          string                 `firestore:"name"`
	Quantity      int                    `firestore:"qty"`
	BasePrice     int64                  `firestore:"basePricePaise"`
	GSTRate       int                    `firestore:"gstRate"`
	Customization *customizationDocument `firestore:"customization,omitempty"`
	AddedAt       time.Time              `firestore:"addedAt"`
}

type customizationDocument struct {
	Type         string                `firestore:"type"`
	Text         string                `firestore:"text,omitempty"`
	Requirements string                `firestore:"requirements,omitempty"`
	Assets       []designAssetDocument `firestore:"assets,omitempty"`
}

type designAssetDocument struct {
	URL      string `firestore:"url"`
	PublicID string `firestore:"publicId"`
	Format   string `firestore:"format,omitempty"`
	Width    int    `firestore:"width,omitempty"`
	Height   int    `firestore:"height,omitempty"`
	Bytes    int64  `firestore:"bytes,omitempty"`
}

func newCartLineDocuments(lines []domain.CartLine) []cartLineDocument {
	docs := make([]cartLineDocument, len(lines))
	for i, line := range lines {
		docs[i] = cartLineDocument{
			ProductID:     strings.TrimSpace(line.ProductID),
			VariantID:     strings.TrimSpace(line.VariantID),
			Name:          strings.TrimSpace(line.Name),
			Quantity:      line.Quantity,
			BasePrice:     line.BasePrice.Paise(),
			GSTRate:       int(line.GSTRate),
			Customization: newCustomizationDocument(line.Customization),
			AddedAt:       line.AddedAt.UTC(),
		}
	}
	return docs
}

func cartLinesToDomain(docs []cartLineDocument) []domain.CartLine {
	lines := make([]domain.CartLine, len(docs))
	for i, doc := range docs {
		lines[i] = domain.CartLine{
			ProductID:     strings.TrimSpace(doc.ProductID),
			VariantID:     strings.TrimSpace(doc.VariantID),
			Name:          strings.TrimSpace(doc.Name),
			Quantity:      doc.Quantity,
			BasePrice:     domain.Money(doc.BasePrice),
			GSTRate:       domain.GSTRate(doc.GSTRate),
			Customization: customizationToDomain(doc.Customization),
			AddedAt:       doc.AddedAt,
		}
	}
	return lines
}

func newCustomizationDocument(c *domain.Customization) *customizationDocument {
	if c == nil || c.IsEmpty() {
		return nil
	}
	doc := &customizationDocument{
		Type:         string(c.Type),
		Text:         strings.TrimSpace(c.Text),
		Requirements: strings.TrimSpace(c.Requirements),
	}
	for _, asset := range c.Assets {
		doc.Assets = append(doc.Assets, designAssetDocument{
			URL:      asset.URL,
			PublicID: asset.PublicID,
			Format:   asset.Format,
			Width:    asset.Width,
			Height:   asset.Height,
			Bytes:    asset.Bytes,
		})
	}
	return doc
}

func customizationToDomain(doc *customizationDocument) *domain.Customization {
	if doc == nil {
		return nil
	}
	c := &domain.Customization{
		Type:         domain.CustomizationType(doc.Type),
		Text:         strings.TrimSpace(doc.Text),
		Requirements: strings.TrimSpace(doc.Requirements),
	}
	for _, asset := range doc.Assets {
		c.Assets = append(c.Assets, domain.DesignAsset{
			URL:      asset.URL,
			PublicID: asset.PublicID,
			Format:   asset.Format,
			Width:    asset.Width,
			Height:   asset.Height,
			Bytes:    asset.Bytes,
		})
	}
	return c
}

var _ repositories.CartRepository = (*CartRepository)(nil)
