package domain

// GSTRate is the applicable Goods and Services Tax percentage for a product.
type GSTRate int

const (
	// GSTRateZero marks GST-exempt products.
	GSTRateZero GSTRate = 0
	// GSTRate5 is the concessional 5% slab used for most handicraft items.
	GSTRate5 GSTRate = 5
	// GSTRate18 is the standard 18% slab used for trophies and awards.
	GSTRate18 GSTRate = 18
)

// ResolveGSTRate maps the catalog's per-product tax flags to an effective rate.
// When both flags are set the 18% slab wins; callers are expected to log the
// inconsistent catalog row (the flags are supposed to be mutually exclusive).
func ResolveGSTRate(gst5, gst18 bool) GSTRate {
	switch {
	case gst18:
		return GSTRate18
	case gst5:
		return GSTRate5
	default:
		return GSTRateZero
	}
}

// ItemPricing is the per-line breakdown computed at order-creation time from a
// fresh catalog read. It is snapshotted onto the order item and never
// recomputed afterwards.
type ItemPricing struct {
	Quantity         int
	BasePrice        Money
	GSTRate          GSTRate
	GSTAmount        Money
	UnitPriceWithGST Money
	ItemSubtotal     Money
	ItemGSTTotal     Money
	ItemTotal        Money
}

// OrderTotals holds the rolled-up monetary fields of an order, split by GST slab.
type OrderTotals struct {
	Subtotal     Money
	GST5Total    Money
	GST18Total   Money
	TotalGST     Money
	ShippingCost Money
	GrandTotal   Money
}
