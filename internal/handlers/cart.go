package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/auth"
	"github.com/shilpkart/api/internal/services"
)

// CartHandlers serves the authenticated cart endpoints. The cart is keyed by
// the Firebase UID; there is no cart ID in the URL.
type CartHandlers struct {
	cart services.CartService
}

func NewCartHandlers(cart services.CartService) (*CartHandlers, error) {
	if cart == nil {
		return nil, errors.New("handlers: cart service is required")
	}
	return &CartHandlers{cart: cart}, nil
}

// Register mounts the cart routes on the provided router group.
func (h *CartHandlers) Register(r chi.Router) {
	r.Get("/", h.GetCart)
	r.Put("/items", h.UpsertLine)
	r.Delete("/items/{variantID}", h.RemoveLine)
	r.Delete("/", h.ClearCart)
}

type upsertCartLineRequest struct {
	ProductID     string                `json:"productId"`
	VariantID     string                `json:"variantId"`
	Quantity      int                   `json:"quantity"`
	Customization *customizationRequest `json:"customization,omitempty"`
}

type customizationRequest struct {
	Type         string              `json:"type"`
	Text         string              `json:"text,omitempty"`
	Requirements string              `json:"requirements,omitempty"`
	Files        []uploadFileRequest `json:"files,omitempty"`
}

type uploadFileRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

func (c *customizationRequest) toDomain() *domain.Customization {
	if c == nil {
		return nil
	}
	customization := &domain.Customization{
		Type:         domain.CustomizationType(c.Type),
		Text:         c.Text,
		Requirements: c.Requirements,
	}
	for _, file := range c.Files {
		customization.Files = append(customization.Files, domain.UploadFile{
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Data:        file.Data,
		})
	}
	return customization
}

func (h *CartHandlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	cart, err := h.cart.GetOrCreateCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandlers) UpsertLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req upsertCartLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	cart, err := h.cart.UpsertLine(ctx, services.UpsertCartLineCommand{
		UserID:        identity.UID,
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		Quantity:      req.Quantity,
		Customization: req.Customization.toDomain(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandlers) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	cart, err := h.cart.RemoveLine(ctx, identity.UID, chi.URLParam(r, "variantID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	if err := h.cart.ClearCart(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
