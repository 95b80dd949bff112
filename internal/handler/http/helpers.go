package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, payment.ErrInconsistent):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrInvalidSignature),
		errors.Is(err, payment.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrAlreadyPaid),
		errors.Is(err, order.ErrOrderFailed),
		errors.Is(err, order.ErrDuplicateGatewayOrder):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, payment.ErrInconsistent):
		return "Order can no longer be fulfilled from its cart"
	case errors.Is(err, gateway.ErrInvalidSignature):
		return "Invalid signature"
	case errors.Is(err, payment.ErrMalformedEvent):
		return "Malformed event"
	case errors.Is(err, cart.ErrCartNotFound):
		return "Cart not found"
	case errors.Is(err, cart.ErrLineNotFound):
		return "Cart item not found"
	case errors.Is(err, catalog.ErrProductNotFound):
		return "Product not found"
	case errors.Is(err, order.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, order.ErrAlreadyPaid):
		return "Order is already paid"
	case errors.Is(err, order.ErrOrderFailed):
		return "Order payment has failed"
	case errors.Is(err, order.ErrDuplicateGatewayOrder):
		return "Payment already registered for another order"
	case errors.Is(err, order.ErrEmptyCart):
		return "Cart is empty"
	case errors.Is(err, order.ErrInvalidAmount):
		return "Order amount must be positive"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "Quantity must be between 1 and 10000"
	case errors.Is(err, pricing.ErrOverflow):
		return "Cart total is too large"
	case errors.Is(err, gateway.ErrGateway):
		return "Payment provider unavailable"
	default:
		return fallback
	}
}

// respondWithServiceError logs err at a level matching its status and
// writes the mapped response.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	logger := hlog.FromRequest(r)
	if code >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", code).Msg(fallback)
	} else {
		logger.Warn().Err(err).Int("status", code).Msg(fallback)
	}
	respondWithError(w, code, clientMessage(err, fallback))
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			hlog.FromRequest(r).Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}

	return true
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "min", "gte":
			details[fe.Field()] = "must be at least " + fe.Param()
		case "max", "lte":
			details[fe.Field()] = "must be at most " + fe.Param()
		case "uuid", "uuid4":
			details[fe.Field()] = "must be a valid UUID"
		default:
			details[fe.Field()] = "failed on " + fe.Tag()
		}
	}
	return details
}
