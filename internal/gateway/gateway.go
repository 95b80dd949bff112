// Package gateway talks to the payment provider: payment intent ("gateway
// order") creation and lookup, and signature checks for its callbacks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Note keys attached to every intent so webhook deliveries can find their way
// back to the local order and cart.
const (
	NoteOrderID = "orderId"
	NoteCartID  = "cartId"
)

// Notes is the free-form key/value map attached to gateway entities. The
// provider encodes an empty map as [], which decodes to an empty Notes.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*n = Notes{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return fmt.Errorf("invalid notes: %w", err)
	}
	*n = m
	return nil
}

type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes"`
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error)
}

// Error is a non-2xx answer from the provider. It matches ErrGateway.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s %s", e.StatusCode, e.Code, e.Description)
}

func (e *Error) Is(target error) bool {
	return target == ErrGateway
}
