package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type OrderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
	Color     string    `json:"color,omitempty"`
	Size      string    `json:"size,omitempty"`
}

type OrderResponse struct {
	ID               uuid.UUID           `json:"id"`
	CartID           uuid.UUID           `json:"cartId"`
	LineItemCount    int                 `json:"lineItemCount"`
	Subtotal         int64               `json:"subtotal"`
	Shipping         int64               `json:"shipping"`
	Tax              int64               `json:"tax"`
	OrderTotal       int64               `json:"orderTotal"`
	Currency         string              `json:"currency"`
	GatewayOrderID   *string             `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string             `json:"gatewayPaymentId,omitempty"`
	AmountPaid       *int64              `json:"amountPaid,omitempty"`
	PaymentStatus    string              `json:"paymentStatus"`
	IsPaid           bool                `json:"isPaid"`
	PaidAt           *time.Time          `json:"paidAt,omitempty"`
	Items            []OrderItemResponse `json:"items"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

type PaymentHandoffResponse struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Color:     item.Color,
			Size:      item.Size,
		}
	}
	return OrderResponse{
		ID:               o.ID,
		CartID:           o.CartID,
		LineItemCount:    o.LineItemCount,
		Subtotal:         o.Subtotal,
		Shipping:         o.Shipping,
		Tax:              o.Tax,
		OrderTotal:       o.OrderTotal,
		Currency:         o.Currency,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		AmountPaid:       o.AmountPaid,
		PaymentStatus:    o.PaymentStatus.String(),
		IsPaid:           o.IsPaid,
		PaidAt:           o.PaidAt,
		Items:            items,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type OrderHandler struct {
	service order.Service
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/orders", func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/", h.handleCreateOrder)
		r.Get("/", h.handleListOrders)
		r.Get("/{id}", h.handleGetOrder)
		r.Post("/{id}/cancel", h.handleCancelOrder)
		r.Post("/{id}/payment", h.handleInitiatePayment)
	})
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.CreateOrder(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create order")
		return
	}
	respondWithJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list orders")
		return
	}

	responsePayload := make([]OrderResponse, len(orders))
	for i := range orders {
		responsePayload[i] = toOrderResponse(&orders[i])
	}
	respondWithJSON(w, http.StatusOK, responsePayload)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), userIDFrom(r.Context()), orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), userIDFrom(r.Context()), orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to cancel order")
		return
	}
	respondWithJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

func (h *OrderHandler) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	handoff, err := h.service.InitiatePayment(r.Context(), userIDFrom(r.Context()), orderID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to initiate payment")
		return
	}
	respondWithJSON(w, http.StatusOK, PaymentHandoffResponse{
		GatewayOrderID: handoff.GatewayOrderID,
		Amount:         handoff.Amount,
		Currency:       handoff.Currency,
		KeyID:          handoff.KeyID,
	})
}
