package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusCompleted PaymentStatus = "COMPLETED"
	StatusFailed    PaymentStatus = "FAILED"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

// OrderItem is the price-frozen copy of a cart line, written when the order
// gets paid.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Price     int64     `json:"price" db:"price"`
	Color     string    `json:"color,omitempty" db:"color"`
	Size      string    `json:"size,omitempty" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Order struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	OwnerID          uuid.UUID     `json:"owner_id" db:"owner_id"`
	CartID           uuid.UUID     `json:"cart_id" db:"cart_id"`
	LineItemCount    int           `json:"line_item_count" db:"line_item_count"`
	Subtotal         int64         `json:"subtotal" db:"subtotal"`
	Shipping         int64         `json:"shipping" db:"shipping"`
	Tax              int64         `json:"tax" db:"tax"`
	OrderTotal       int64         `json:"order_total" db:"order_total"`
	Currency         string        `json:"currency" db:"currency"`
	GatewayOrderID   *string       `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string       `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	AmountPaid       *int64        `json:"amount_paid,omitempty" db:"amount_paid"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	IsPaid           bool          `json:"is_paid" db:"is_paid"`
	PaidAt           *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	Items            []OrderItem   `json:"items" db:"-"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentIntent is one gateway order created for an Order. An order keeps
// all of its intents so a payment against an older one still resolves.
type PaymentIntent struct {
	GatewayOrderID string    `json:"gateway_order_id" db:"gateway_order_id"`
	OrderID        uuid.UUID `json:"order_id" db:"order_id"`
	CartID         uuid.UUID `json:"cart_id" db:"cart_id"`
	Amount         int64     `json:"amount" db:"amount"`
	Currency       string    `json:"currency" db:"currency"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Payment is a captured payment as reported by the gateway.
type Payment struct {
	GatewayOrderID string
	PaymentID      string
	Amount         int64
	PaidAt         time.Time
}

// PaymentHandoff is what the browser needs to open the gateway checkout.
type PaymentHandoff struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}
