package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/auth"
	"github.com/shilpkart/api/internal/platform/httpx"
	"github.com/shilpkart/api/internal/platform/pagination"
	"github.com/shilpkart/api/internal/platform/storage"
	"github.com/shilpkart/api/internal/services"
)

// OrderHandlers serves the authenticated order-history endpoints. Every lookup
// is scoped to the caller's UID; there is no cross-user access on this surface.
type OrderHandlers struct {
	orders        services.OrderService
	invoiceSigner *storage.Client
	invoiceBucket string
}

// OrderHandlersDeps bundles collaborators for the order endpoints. The invoice
// signer and bucket are optional; without them the invoice route is not mounted.
type OrderHandlersDeps struct {
	Orders        services.OrderService
	InvoiceSigner *storage.Client
	InvoiceBucket string
}

func NewOrderHandlers(deps OrderHandlersDeps) (*OrderHandlers, error) {
	if deps.Orders == nil {
		return nil, errors.New("handlers: order service is required")
	}
	return &OrderHandlers{
		orders:        deps.Orders,
		invoiceSigner: deps.InvoiceSigner,
		invoiceBucket: deps.InvoiceBucket,
	}, nil
}

// Register mounts the order routes on the provided router group.
func (h *OrderHandlers) Register(r chi.Router) {
	r.Get("/", h.ListOrders)
	r.Get("/{orderID}", h.GetOrder)
	if h.invoiceSigner != nil && h.invoiceBucket != "" {
		r.Get("/{orderID}/invoice-url", h.InvoiceURL)
	}
}

func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize:    20,
		MaxPageSize:        50,
		AllowedOrderFields: []string{"createdAt"},
		AllowedFilterFields: map[string][]pagination.Operator{
			"status":        {pagination.OperatorEqual},
			"paymentStatus": {pagination.OperatorEqual},
		},
	})
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	filter := services.OrderListFilter{
		UserID:     identity.UID,
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
		Sort:       domain.SortDescending,
	}
	for _, f := range params.Filters {
		switch f.Field {
		case "status":
			filter.Status = domain.OrderStatus(f.Value)
		case "paymentStatus":
			filter.PaymentStatus = domain.PaymentStatus(f.Value)
		}
	}
	for _, order := range params.Orders {
		if !order.Desc {
			filter.Sort = domain.SortAscending
		}
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]orderView, 0, len(page.Items))
	for _, order := range page.Items {
		views = append(views, newOrderView(order))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":        views,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	order, err := h.orders.GetOrderForUser(ctx, chi.URLParam(r, "orderID"), identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// InvoiceURL issues a short-lived signed download URL for the order invoice
// PDF. Staff and admin identities may fetch invoices for any order; customers
// only for their own.
func (h *OrderHandlers) InvoiceURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if order.PaymentStatus != domain.PaymentStatusCompleted {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_ready", "invoice is available after payment completes", http.StatusConflict))
		return
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeInvoice, storage.PathParams{
		OrderID:       order.ID,
		InvoiceNumber: order.OrderNumber,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	result, err := h.invoiceSigner.SignedURL(ctx, h.invoiceBucket, objectPath, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			ExpiresIn:    10 * time.Minute,
			Disposition:  fmt.Sprintf("attachment; filename=%q", order.OrderNumber+".pdf"),
			ResponseType: "application/pdf",
			OwnerID:      order.UserID,
			Identity:     identity,
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you do not have access to this invoice", http.StatusForbidden))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":       result.URL,
		"expiresAt": result.ExpiresAt,
	})
}
