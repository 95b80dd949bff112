package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID       string        `json:"id"`
	OrderID  string        `json:"order_id"`
	Amount   int64         `json:"amount"`
	Currency string        `json:"currency"`
	Status   string        `json:"status"`
	Notes    gateway.Notes `json:"notes"`
}

// acts reports whether event leads to a reconciliation.
func acts(event string) bool {
	return event == EventPaymentCaptured || event == EventOrderPaid
}

// parseWebhook decodes the envelope. For events that act, it also returns
// the capture carried by the payment entity; for the rest capture is nil.
func parseWebhook(body []byte) (string, *Capture, error) {
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Event == "" {
		return "", nil, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	if !acts(evt.Event) {
		return evt.Event, nil, nil
	}

	if evt.Payload.Payment == nil {
		return evt.Event, nil, fmt.Errorf("%w: %s without payment entity", ErrMalformedEvent, evt.Event)
	}
	entity := evt.Payload.Payment.Entity
	if entity.ID == "" || entity.OrderID == "" {
		return evt.Event, nil, fmt.Errorf("%w: payment entity lacks id or order_id", ErrMalformedEvent)
	}

	cartID, err := noteCartID(entity.Notes)
	if err != nil {
		return evt.Event, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return evt.Event, &Capture{
		GatewayOrderID: entity.OrderID,
		PaymentID:      entity.ID,
		CartID:         cartID,
		Amount:         entity.Amount,
	}, nil
}
