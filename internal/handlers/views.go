package handlers

import (
	"time"

	"github.com/shilpkart/api/internal/domain"
)

// View models keep the wire shape decoupled from domain structs. All monetary
// amounts travel as integer paise plus a pre-rendered display string so clients
// never do float arithmetic on money.

type moneyView struct {
	Paise   int64  `json:"paise"`
	Display string `json:"display"`
}

func newMoneyView(m domain.Money) moneyView {
	return moneyView{Paise: m.Paise(), Display: m.Display()}
}

type productView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	GSTRate      int       `json:"gstRatePct"`
	Customizable bool      `json:"customizable"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newProductView(p domain.Product) productView {
	return productView{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Category:     p.Category,
		GSTRate:      int(domain.ResolveGSTRate(p.GST5Pct, p.GST18Pct)),
		Customizable: p.Customizable,
		UpdatedAt:    p.UpdatedAt,
	}
}

type variantView struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	SizeDisplay string    `json:"sizeDisplay,omitempty"`
	Price       moneyView `json:"price"`
}

func newVariantView(v domain.ProductVariant) variantView {
	return variantView{
		ID:          v.ID,
		ProductID:   v.ProductID,
		SizeDisplay: v.SizeDisplay,
		Price:       newMoneyView(v.Price),
	}
}

type customizationView struct {
	Type         string   `json:"type"`
	Text         string   `json:"text,omitempty"`
	Requirements string   `json:"requirements,omitempty"`
	AssetURLs    []string `json:"assetUrls,omitempty"`
}

func newCustomizationView(c *domain.Customization) *customizationView {
	if c.IsEmpty() {
		return nil
	}
	view := &customizationView{
		Type:         string(c.Type),
		Text:         c.Text,
		Requirements: c.Requirements,
	}
	for _, asset := range c.Assets {
		view.AssetURLs = append(view.AssetURLs, asset.URL)
	}
	return view
}

type cartLineView struct {
	ProductID     string             `json:"productId"`
	VariantID     string             `json:"variantId"`
	Name          string             `json:"name"`
	Quantity      int                `json:"quantity"`
	BasePrice     moneyView          `json:"basePrice"`
	GSTRate       int                `json:"gstRatePct"`
	Customization *customizationView `json:"customization,omitempty"`
	AddedAt       time.Time          `json:"addedAt"`
}

type cartView struct {
	UserID    string         `json:"userId"`
	Lines     []cartLineView `json:"lines"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func newCartView(cart domain.Cart) cartView {
	view := cartView{
		UserID:    cart.UserID,
		Lines:     make([]cartLineView, 0, len(cart.Lines)),
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		view.Lines = append(view.Lines, cartLineView{
			ProductID:     line.ProductID,
			VariantID:     line.VariantID,
			Name:          line.Name,
			Quantity:      line.Quantity,
			BasePrice:     newMoneyView(line.BasePrice),
			GSTRate:       int(line.GSTRate),
			Customization: newCustomizationView(line.Customization),
			AddedAt:       line.AddedAt,
		})
	}
	return view
}

type orderTotalsView struct {
	Subtotal     moneyView `json:"subtotal"`
	GST5Total    moneyView `json:"gst5Total"`
	GST18Total   moneyView `json:"gst18Total"`
	TotalGST     moneyView `json:"totalGst"`
	ShippingCost moneyView `json:"shippingCost"`
	GrandTotal   moneyView `json:"grandTotal"`
}

type orderItemView struct {
	ID                 string             `json:"id"`
	ProductID          string             `json:"productId"`
	VariantID          string             `json:"variantId"`
	ProductName        string             `json:"productName"`
	VariantSizeDisplay string             `json:"variantSizeDisplay,omitempty"`
	Quantity           int                `json:"quantity"`
	UnitPriceWithGST   moneyView          `json:"unitPriceWithGst"`
	ItemTotal          moneyView          `json:"itemTotal"`
	Customization      *customizationView `json:"customization,omitempty"`
}

type orderView struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus"`
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID *string         `json:"transactionId,omitempty"`
	OrderNotes    *string         `json:"orderNotes,omitempty"`
	Totals        orderTotalsView `json:"totals"`
	Items         []orderItemView `json:"items,omitempty"`
	ShippingInfo  addressView     `json:"shippingInfo"`
	Delivery      deliveryView    `json:"delivery"`
	CreatedAt     time.Time       `json:"createdAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
}

type addressView struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type deliveryView struct {
	Method       string     `json:"method"`
	Instructions string     `json:"instructions,omitempty"`
	PreferredAt  *time.Time `json:"preferredAt,omitempty"`
}

func newOrderView(order domain.Order) orderView {
	view := orderView{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		TransactionID: order.TransactionID,
		OrderNotes:    order.OrderNotes,
		Totals: orderTotalsView{
			Subtotal:     newMoneyView(order.Totals.Subtotal),
			GST5Total:    newMoneyView(order.Totals.GST5Total),
			GST18Total:   newMoneyView(order.Totals.GST18Total),
			TotalGST:     newMoneyView(order.Totals.TotalGST),
			ShippingCost: newMoneyView(order.Totals.ShippingCost),
			GrandTotal:   newMoneyView(order.Totals.GrandTotal),
		},
		ShippingInfo: addressView{
			FullName:   order.ShippingInfo.FullName,
			Phone:      order.ShippingInfo.Phone,
			Email:      order.ShippingInfo.Email,
			Line1:      order.ShippingInfo.Line1,
			Line2:      order.ShippingInfo.Line2,
			City:       order.ShippingInfo.City,
			State:      order.ShippingInfo.State,
			PostalCode: order.ShippingInfo.PostalCode,
			Country:    order.ShippingInfo.Country,
		},
		Delivery: deliveryView{
			Method:       order.Delivery.Method,
			Instructions: order.Delivery.Instructions,
			PreferredAt:  order.Delivery.PreferredAt,
		},
		CreatedAt:   order.CreatedAt,
		PaidAt:      order.PaidAt,
		CancelledAt: order.CancelledAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, orderItemView{
			ID:                 item.ID,
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			ProductName:        item.ProductName,
			VariantSizeDisplay: item.VariantSizeDisplay,
			Quantity:           item.Pricing.Quantity,
			UnitPriceWithGST:   newMoneyView(item.Pricing.UnitPriceWithGST),
			ItemTotal:          newMoneyView(item.Pricing.ItemTotal),
			Customization:      newCustomizationView(item.Customization),
		})
	}
	return view
}

type checkoutSessionView struct {
	SessionID   string    `json:"sessionId"`
	Provider    string    `json:"provider"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	Amount      moneyView `json:"amount"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func newCheckoutSessionView(session domain.CheckoutSession) checkoutSessionView {
	return checkoutSessionView{
		SessionID:   session.SessionID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		Amount:      newMoneyView(session.Amount),
		ExpiresAt:   session.ExpiresAt,
	}
}
