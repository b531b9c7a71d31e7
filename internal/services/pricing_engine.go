package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/shilpkart/api/internal/domain"
)

// ErrPricingInvalidInput signals bad pricing input such as non-positive quantity.
var ErrPricingInvalidInput = errors.New("pricing: invalid input")

// PricingEngineDeps bundles the configuration for the pricing engine.
type PricingEngineDeps struct {
	// FreeShippingMin is the subtotal (paise) at or above which shipping is free.
	// Zero disables the free-shipping threshold.
	FreeShippingMin domain.Money
	// FlatShipping is the flat courier charge (paise) below the threshold.
	FlatShipping domain.Money
	Logger       func(ctx context.Context, event string, fields map[string]any)
	Now          func() time.Time
}

type pricingEngine struct {
	freeShippingMin domain.Money
	flatShipping    domain.Money
	logger          func(context.Context, string, map[string]any)
}

// NewPricingEngine constructs the GST pricing engine. All arithmetic is in
// integer paise; rupee decimals exist only at gateway and display boundaries.
func NewPricingEngine(deps PricingEngineDeps) (PricingService, error) {
	if deps.FreeShippingMin < 0 || deps.FlatShipping < 0 {
		return nil, errors.New("pricing engine: shipping amounts must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		freeShippingMin: deps.FreeShippingMin,
		flatShipping:    deps.FlatShipping,
		logger:          logger,
	}, nil
}

// CalculateItemPricing computes the per-line breakdown from freshly fetched
// catalog rows. Client-supplied prices and tax flags are never consulted.
func (e *pricingEngine) CalculateItemPricing(ctx context.Context, line CartLine, variant ProductVariant, product Product) ItemPricing {
	if product.GST5Pct && product.GST18Pct {
		// The catalog flags are supposed to be mutually exclusive; 18% wins.
		e.logger(ctx, "pricing.gst_flags_conflict", map[string]any{
			"productId": product.ID,
			"variantId": variant.ID,
		})
	}

	rate := domain.ResolveGSTRate(product.GST5Pct, product.GST18Pct)
	quantity := line.Quantity
	if quantity < 0 {
		quantity = 0
	}

	basePrice := variant.Price
	gstAmount := perUnitGST(basePrice, rate)
	unitWithGST := basePrice + gstAmount
	qty := domain.Money(quantity)

	return ItemPricing{
		Quantity:         quantity,
		BasePrice:        basePrice,
		GSTRate:          rate,
		GSTAmount:        gstAmount,
		UnitPriceWithGST: unitWithGST,
		ItemSubtotal:     basePrice * qty,
		ItemGSTTotal:     gstAmount * qty,
		ItemTotal:        unitWithGST * qty,
	}
}

// CalculateOrderTotals rolls up line breakdowns by GST slab. Invariants:
// totalGST == gst5Total + gst18Total and grandTotal == subtotal + totalGST +
// shippingCost, exactly, with no rounding drift.
func (e *pricingEngine) CalculateOrderTotals(items []ItemPricing, shippingCost Money) OrderTotals {
	totals := OrderTotals{ShippingCost: shippingCost}
	for _, item := range items {
		totals.Subtotal += item.ItemSubtotal
		switch item.GSTRate {
		case domain.GSTRate5:
			totals.GST5Total += item.ItemGSTTotal
		case domain.GSTRate18:
			totals.GST18Total += item.ItemGSTTotal
		}
	}
	totals.TotalGST = totals.GST5Total + totals.GST18Total
	totals.GrandTotal = totals.Subtotal + totals.TotalGST + totals.ShippingCost
	return totals
}

// ShippingCost resolves the courier charge for a given item subtotal.
func (e *pricingEngine) ShippingCost(subtotal Money) Money {
	if e.freeShippingMin > 0 && subtotal >= e.freeShippingMin {
		return 0
	}
	return e.flatShipping
}

// perUnitGST computes the tax for one unit at the given slab, rounding half
// up to the nearest paisa.
func perUnitGST(base domain.Money, rate domain.GSTRate) domain.Money {
	if base <= 0 || rate == domain.GSTRateZero {
		return 0
	}
	return (base*domain.Money(rate) + 50) / 100
}
