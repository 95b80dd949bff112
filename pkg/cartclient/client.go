// Package cartclient is a Go client for the storefront cart API.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

var ErrRequest = errors.New("cart api request failed")

// APIError is a non-2xx response from the cart API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrRequest
}

type Line struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Color     string    `json:"color,omitempty"`
	Size      string    `json:"size,omitempty"`
	UnitPrice int64     `json:"unitPrice"`
	LineTotal int64     `json:"lineTotal"`
}

func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Color: l.Color, Size: l.Size}
}

type Cart struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"ownerId"`
	Lines      []Line    `json:"lines"`
	Subtotal   int64     `json:"subtotal"`
	Shipping   int64     `json:"shipping"`
	Tax        int64     `json:"tax"`
	TaxRate    string    `json:"taxRate"`
	GrandTotal int64     `json:"grandTotal"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (c Cart) clone() Cart {
	c.Lines = append([]Line(nil), c.Lines...)
	return c
}

// LineKey identifies a cart line the way the server merges them.
type LineKey struct {
	ProductID uuid.UUID
	Color     string
	Size      string
}

type AddItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	Color     string    `json:"color,omitempty"`
	Size      string    `json:"size,omitempty"`
}

func (a AddItem) Key() LineKey {
	return LineKey{ProductID: a.ProductID, Color: a.Color, Size: a.Size}
}

// Client calls the cart API on behalf of one owner.
type Client struct {
	baseURL    string
	ownerID    uuid.UUID
	httpClient *http.Client
}

func New(baseURL string, ownerID uuid.UUID, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ownerID:    ownerID,
		httpClient: httpClient,
	}
}

func (c *Client) Get(ctx context.Context) (*Cart, error) {
	return c.do(ctx, http.MethodGet, "/cart", nil)
}

func (c *Client) AddItem(ctx context.Context, item AddItem) (*Cart, error) {
	return c.do(ctx, http.MethodPost, "/cart/items", item)
}

// SetQuantity overwrites a line's quantity. A quantity of zero or less
// removes the line.
func (c *Client) SetQuantity(ctx context.Context, lineID uuid.UUID, quantity int) (*Cart, error) {
	return c.do(ctx, http.MethodPatch, "/cart/items/"+lineID.String(), struct {
		Quantity int `json:"quantity"`
	}{Quantity: quantity})
}

func (c *Client) RemoveItem(ctx context.Context, lineID uuid.UUID) (*Cart, error) {
	return c.do(ctx, http.MethodDelete, "/cart/items/"+lineID.String(), nil)
}

func (c *Client) Clear(ctx context.Context) (*Cart, error) {
	return c.do(ctx, http.MethodDelete, "/cart", nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (*Cart, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("cartclient: failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("cartclient: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-User-ID", c.ownerID.String())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequest, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	var cart Cart
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, fmt.Errorf("cartclient: failed to decode cart: %w", err)
	}
	return &cart, nil
}
