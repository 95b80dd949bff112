package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
)

type AddCartItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=10000"`
	Color     string `json:"color,omitempty" validate:"max=64"`
	Size      string `json:"size,omitempty" validate:"max=64"`
}

// UpdateCartItemRequest accepts zero or negative quantities, which remove
// the line.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=10000"`
}

type CartLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Color     string    `json:"color,omitempty"`
	Size      string    `json:"size,omitempty"`
	UnitPrice int64     `json:"unitPrice"`
	LineTotal int64     `json:"lineTotal"`
}

type CartResponse struct {
	ID         uuid.UUID          `json:"id"`
	OwnerID    uuid.UUID          `json:"ownerId"`
	Lines      []CartLineResponse `json:"lines"`
	Subtotal   int64              `json:"subtotal"`
	Shipping   int64              `json:"shipping"`
	Tax        int64              `json:"tax"`
	TaxRate    string             `json:"taxRate"`
	GrandTotal int64              `json:"grandTotal"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func toCartResponse(c *cart.Cart) CartResponse {
	lines := make([]CartLineResponse, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = CartLineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Color:     l.Color,
			Size:      l.Size,
			UnitPrice: l.UnitPrice,
			LineTotal: l.UnitPrice * int64(l.Quantity),
		}
	}
	return CartResponse{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		Lines:      lines,
		Subtotal:   c.Totals.Subtotal,
		Shipping:   c.Totals.Shipping,
		Tax:        c.Totals.Tax,
		TaxRate:    c.Totals.TaxRate.String(),
		GrandTotal: c.Totals.GrandTotal,
		UpdatedAt:  c.UpdatedAt,
	}
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Route("/cart", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.handleGetCart)
		r.Delete("/", h.handleClearCart)
		r.Post("/items", h.handleAddItem)
		r.Patch("/items/{id}", h.handleUpdateItem)
		r.Delete("/items/{id}", h.handleRemoveItem)
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetOrCreate(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get cart")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.AddLine(r.Context(), userIDFrom(r.Context()), cart.AddLineInput{
		ProductID: uuid.FromStringOrNil(requestPayload.ProductID),
		Quantity:  requestPayload.Quantity,
		Color:     requestPayload.Color,
		Size:      requestPayload.Size,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to add item to cart")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	c, err := h.service.SetQuantity(r.Context(), userIDFrom(r.Context()), lineID, *requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	c, err := h.service.RemoveLine(r.Context(), userIDFrom(r.Context()), lineID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to remove cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Clear(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to clear cart")
		return
	}
	respondWithJSON(w, http.StatusOK, toCartResponse(c))
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}
