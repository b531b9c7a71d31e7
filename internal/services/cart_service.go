package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/textutil"
	"github.com/shilpkart/api/internal/repositories"
)

const maxCartLineQuantity = 99

var (
	// ErrCartInvalidInput indicates caller supplied data failed validation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartVariantNotFound indicates the requested variant is unknown or inactive.
	ErrCartVariantNotFound = errors.New("cart: variant not found")
	// ErrCartLineNotFound indicates no line matches the requested variant.
	ErrCartLineNotFound = errors.New("cart: line not found")
	// ErrCartConflict indicates a concurrent cart update won.
	ErrCartConflict = errors.New("cart: concurrent update")
	// ErrCartUnavailable indicates the backing store failed.
	ErrCartUnavailable = errors.New("cart: temporarily unavailable")
)

// CartServiceDeps wires the cart service.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCartService validates dependencies and returns the cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetOrCreateCart returns the user's cart, or an empty one when none exists
// yet. The empty cart is not persisted; the first upsert writes it.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			now := s.clock()
			return Cart{ID: userID, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Cart{}, fmt.Errorf("%w: load cart: %v", ErrCartUnavailable, err)
	}
	return cart, nil
}

// UpsertLine adds or replaces the line for a variant. Name, price, and tax
// flags are snapshotted from a fresh catalog read; the client's copy of those
// fields is never trusted.
func (s *cartService) UpsertLine(ctx context.Context, cmd UpsertCartLineCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	variantID := strings.TrimSpace(cmd.VariantID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if variantID == "" {
		return Cart{}, fmt.Errorf("%w: variant id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	variant, err := s.catalog.GetVariant(ctx, variantID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartVariantNotFound, variantID)
		}
		return Cart{}, fmt.Errorf("%w: load variant: %v", ErrCartUnavailable, err)
	}
	if !variant.Active {
		return Cart{}, fmt.Errorf("%w: %s is no longer available", ErrCartVariantNotFound, variantID)
	}
	product, err := s.catalog.GetProduct(ctx, variant.ProductID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: product for %s", ErrCartVariantNotFound, variantID)
		}
		return Cart{}, fmt.Errorf("%w: load product: %v", ErrCartUnavailable, err)
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("%w: %s is no longer available", ErrCartVariantNotFound, variantID)
	}

	customization := cmd.Customization
	if customization != nil {
		if !product.Customizable {
			return Cart{}, fmt.Errorf("%w: %s does not support customization", ErrCartInvalidInput, product.Name)
		}
		normalized := *customization
		normalized.Text = strings.TrimSpace(normalized.Text)
		normalized.Requirements = textutil.SanitizeFreeText(normalized.Requirements)
		if normalized.IsEmpty() {
			customization = nil
		} else {
			customization = &normalized
		}
	}

	cart, created, err := s.loadOrStartCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	line := CartLine{
		ProductID:     product.ID,
		VariantID:     variant.ID,
		Name:          cartLineName(product, variant),
		Quantity:      cmd.Quantity,
		BasePrice:     variant.Price,
		GSTRate:       domain.ResolveGSTRate(product.GST5Pct, product.GST18Pct),
		Customization: customization,
		AddedAt:       now,
	}

	replaced := false
	for i := range cart.Lines {
		if cart.Lines[i].VariantID == variant.ID {
			line.AddedAt = cart.Lines[i].AddedAt
			cart.Lines[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		cart.Lines = append(cart.Lines, line)
	}

	return s.saveCart(ctx, cart, created, now)
}

// RemoveLine drops the line for a variant.
func (s *cartService) RemoveLine(ctx context.Context, userID, variantID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	variantID = strings.TrimSpace(variantID)
	if userID == "" || variantID == "" {
		return Cart{}, fmt.Errorf("%w: user id and variant id are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartLineNotFound, variantID)
		}
		return Cart{}, fmt.Errorf("%w: load cart: %v", ErrCartUnavailable, err)
	}

	kept := cart.Lines[:0]
	removed := false
	for _, line := range cart.Lines {
		if line.VariantID == variantID {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartLineNotFound, variantID)
	}
	cart.Lines = kept

	return s.saveCart(ctx, cart, false, s.clock())
}

// ClearCart empties the cart. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.ClearCart(ctx, userID, s.clock()); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: clear cart: %v", ErrCartUnavailable, err)
	}
	return nil
}

func (s *cartService) loadOrStartCart(ctx context.Context, userID string) (Cart, bool, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err == nil {
		return cart, false, nil
	}
	if isRepoNotFound(err) {
		now := s.clock()
		return Cart{ID: userID, UserID: userID, CreatedAt: now, UpdatedAt: now}, true, nil
	}
	return Cart{}, false, fmt.Errorf("%w: load cart: %v", ErrCartUnavailable, err)
}

func (s *cartService) saveCart(ctx context.Context, cart Cart, created bool, now time.Time) (Cart, error) {
	var expected *time.Time
	if !created {
		expected = valuePtr(cart.UpdatedAt)
	}
	cart.UpdatedAt = now

	saved, err := s.carts.UpsertCart(ctx, cart, expected)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Cart{}, fmt.Errorf("%w: retry the change", ErrCartConflict)
		}
		return Cart{}, fmt.Errorf("%w: save cart: %v", ErrCartUnavailable, err)
	}
	return saved, nil
}

func cartLineName(product domain.Product, variant domain.ProductVariant) string {
	if strings.TrimSpace(variant.SizeDisplay) == "" {
		return product.Name
	}
	return fmt.Sprintf("%s (%s)", product.Name, variant.SizeDisplay)
}
