package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

const (
	HeaderSignature         = "X-Signature"
	HeaderRazorpaySignature = "X-Razorpay-Signature"
)

const paymentFailedMessage = "payment failed, please try again"

type VerifyPaymentRequest struct {
	PaymentID      string `json:"paymentId" validate:"required,max=64"`
	GatewayOrderID string `json:"gatewayOrderId" validate:"required,max=64"`
	Signature      string `json:"signature" validate:"required,max=128"`
}

type VerifyPaymentResponse struct {
	Success bool       `json:"success"`
	OrderID *uuid.UUID `json:"orderId,omitempty"`
	Message string     `json:"message,omitempty"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
	// debug exposes internal error detail in verify responses.
	debug bool
}

func NewPaymentHandler(service payment.Service, debug bool) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
		debug:    debug,
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments/verify", h.handleVerify)
	router.Post("/webhooks/payment", h.handleWebhook)
}

func (h *PaymentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var requestPayload VerifyPaymentRequest
	if err := h.decodeVerifyRequest(w, r, &requestPayload); err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		hlog.FromRequest(r).Warn().Err(err).Int("status", code).Msg("Invalid payment verification request")
		h.respondVerifyFailure(w, code, err)
		return
	}

	confirmation, err := h.service.Verify(r.Context(), payment.VerifyRequest{
		PaymentID:      requestPayload.PaymentID,
		GatewayOrderID: requestPayload.GatewayOrderID,
		Signature:      requestPayload.Signature,
	})
	if err != nil {
		code := mapErrorToStatusCode(err)
		logger := hlog.FromRequest(r)
		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("gateway_order_id", requestPayload.GatewayOrderID).Msg("Payment verification failed")
		} else {
			logger.Warn().Err(err).Str("gateway_order_id", requestPayload.GatewayOrderID).Msg("Payment verification rejected")
		}

		h.respondVerifyFailure(w, code, err)
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyPaymentResponse{Success: true, OrderID: &confirmation.OrderID})
}

// decodeVerifyRequest reads and validates a verify body without writing a
// response, so failures keep the verify response shape.
func (h *PaymentHandler) decodeVerifyRequest(w http.ResponseWriter, r *http.Request, dst *VerifyPaymentRequest) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return fmt.Errorf("validation failed: %v", formatValidationErrors(validationErrors))
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// respondVerifyFailure hides err from clients unless debug is on.
func (h *PaymentHandler) respondVerifyFailure(w http.ResponseWriter, code int, err error) {
	message := paymentFailedMessage
	if h.debug {
		message = err.Error()
	}
	respondWithJSON(w, code, VerifyPaymentResponse{Success: false, Message: message})
}

func (h *PaymentHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	signature := r.Header.Get(HeaderSignature)
	if signature == "" {
		signature = r.Header.Get(HeaderRazorpaySignature)
	}

	result, err := h.service.HandleWebhook(r.Context(), body, signature)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to process webhook")
		return
	}

	if result.Ignored {
		respondWithJSON(w, http.StatusOK, WebhookResponse{Status: "received"})
		return
	}
	hlog.FromRequest(r).Info().Str("event", result.Event).Stringer("order_id", result.Confirmation.OrderID).Msg("Webhook processed")
	respondWithJSON(w, http.StatusOK, WebhookResponse{Status: "processed"})
}
