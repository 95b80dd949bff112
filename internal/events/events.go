// Package events publishes order lifecycle events for downstream consumers
// (fulfilment, analytics). Publishing is best effort and happens after the
// owning transaction has committed.
package events

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

const TypeOrderPaid = "order.paid"

type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
}

type OrderPaid struct {
	OrderID        uuid.UUID `json:"order_id"`
	OwnerID        uuid.UUID `json:"owner_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	PaymentID      string    `json:"payment_id"`
	AmountPaid     int64     `json:"amount_paid"`
	Currency       string    `json:"currency"`
	Items          []Item    `json:"items"`
	PaidAt         time.Time `json:"paid_at"`
}

// Envelope is the message value written to the topic.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Publisher interface {
	PublishOrderPaid(ctx context.Context, evt OrderPaid) error
	Close() error
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishOrderPaid(context.Context, OrderPaid) error { return nil }

func (Noop) Close() error { return nil }
