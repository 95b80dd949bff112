package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RazorpayClient implements Gateway against the Razorpay Orders REST API.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type errorPayload struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to encode order request: %w", err)
	}

	var created Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &created); err != nil {
		return nil, err
	}

	log.Info().Str("gateway_order_id", created.ID).Int64("amount", created.Amount).Str("receipt", req.Receipt).Msg("gateway: order created")
	return &created, nil
}

func (c *RazorpayClient) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	var fetched Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(gatewayOrderID), nil, &fetched); err != nil {
		return nil, err
	}
	return &fetched, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: failed to build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrGateway, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{StatusCode: resp.StatusCode}
		var ep errorPayload
		if json.Unmarshal(respBody, &ep) == nil {
			gwErr.Code = ep.Error.Code
			gwErr.Description = ep.Error.Description
		}
		log.Warn().Int("status", resp.StatusCode).Str("code", gwErr.Code).Str("path", path).Msg("gateway: request rejected")
		return gwErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrGateway, err)
	}
	return nil
}
