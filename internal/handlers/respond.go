package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shilpkart/api/internal/payments"
	"github.com/shilpkart/api/internal/platform/httpx"
	"github.com/shilpkart/api/internal/services"
)

const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps service sentinels onto the API error envelope. The
// mapping is deliberately exhaustive: an unmapped error becomes an opaque 500
// rather than leaking internals.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.StockValidationError
	if errors.As(err, &stockErr) {
		items := make([]map[string]any, 0, len(stockErr.Shortfalls))
		for _, shortfall := range stockErr.Shortfalls {
			items = append(items, map[string]any{
				"variantId": shortfall.VariantID,
				"itemName":  shortfall.ItemName,
				"requested": shortfall.Requested,
				"available": shortfall.Available,
				"reason":    string(shortfall.Reason),
				"message":   shortfall.Message,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "some items are no longer available", http.StatusConflict).
			WithDetails(map[string]any{"items": items}))
		return
	}

	var gatewayErr *payments.GatewayError
	if errors.As(err, &gatewayErr) {
		message := gatewayErr.Message()
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", message.Description, http.StatusPaymentRequired).
			WithDetails(map[string]any{
				"failure": map[string]any{
					"code":        string(gatewayErr.Code),
					"title":       message.Title,
					"description": message.Description,
					"action":      message.Action,
				},
			}))
		return
	}

	switch {
	case errors.Is(err, services.ErrCheckoutInvalidForm),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrOrderValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPricingData),
		errors.Is(err, services.ErrOrderPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_data_missing", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrCartVariantNotFound),
		errors.Is(err, services.ErrCartLineNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "you do not have access to this resource", http.StatusForbidden))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryInsufficientStock),
		errors.Is(err, services.ErrInventoryReservedByOthers):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderProvisioning):
		httpx.WriteError(ctx, w, httpx.NewError("order_provisioning_failed", "the order could not be created, nothing was charged", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrCartUnavailable),
		errors.Is(err, services.ErrCatalogUnavailable),
		errors.Is(err, services.ErrInventoryUnavailable),
		errors.Is(err, services.ErrOrderPersistence):
		httpx.WriteError(ctx, w, httpx.NewError("temporarily_unavailable", "please retry shortly", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func writeRateLimited(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many attempts, slow down", http.StatusTooManyRequests))
}
