package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
	storefrontHttp "github.com/vasiliy-maslov/ecommerce-storefront/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-storefront/pkg/cartclient"
)

const (
	testKeyID         = "rzp_test_key"
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

var (
	mugID   = uuid.FromStringOrNil("6f1c2d4e-8a3b-4c5d-9e6f-7a8b9c0d1e2f")
	shirtID = uuid.FromStringOrNil("0b9a8c7d-6e5f-4a3b-8c2d-1e0f9a8b7c6d")
)

// newFakeGateway serves the two order endpoints the storefront calls.
func newFakeGateway(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		mu     sync.Mutex
		orders = map[string]gateway.Order{}
	)
	router := chi.NewRouter()
	router.Post("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		var req gateway.CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		mu.Lock()
		o := gateway.Order{
			ID:       fmt.Sprintf("order_%d", len(orders)+1),
			Amount:   req.Amount,
			Currency: req.Currency,
			Receipt:  req.Receipt,
			Status:   "created",
			Notes:    req.Notes,
		}
		orders[o.ID] = o
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(o))
	})
	router.Get("/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		o, ok := orders[chi.URLParam(r, "id")]
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(o))
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestStorefront(t *testing.T) *httptest.Server {
	t.Helper()

	gw := newFakeGateway(t)
	seedPath := filepath.Join(t.TempDir(), "catalog.yaml")
	seed := fmt.Sprintf("products:\n  - id: %s\n    name: Mug\n    price: 50000\n  - id: %s\n    name: Shirt\n    price: 150000\n", mugID, shirtID)
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o600))

	cfg := &config.Config{
		App:     config.AppConfig{Name: "storefront-test", Storage: config.StorageMemory},
		Pricing: config.PricingConfig{Currency: "INR", TaxRate: "0.10", ShippingFlat: 5000},
		Payment: config.PaymentConfig{
			BaseURL:       gw.URL,
			KeyID:         testKeyID,
			KeySecret:     testKeySecret,
			WebhookSecret: testWebhookSecret,
			Timeout:       5 * time.Second,
		},
	}
	require.NoError(t, cfg.Validate())

	router, cleanup, err := buildRouter(context.Background(), cfg, seedPath)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, owner uuid.UUID, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != uuid.Nil {
		req.Header.Set(storefrontHttp.HeaderUserID, owner.String())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStorefront_CheckoutAndPay(t *testing.T) {
	srv := newTestStorefront(t)
	owner := uuid.Must(uuid.NewV4())
	ctx := context.Background()

	carts := cartclient.NewOptimisticCart(cartclient.New(srv.URL, owner, srv.Client()))
	_, err := carts.Add(ctx, cartclient.AddItem{ProductID: mugID, Quantity: 2})
	require.NoError(t, err)
	c, err := carts.Add(ctx, cartclient.AddItem{ProductID: shirtID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(250000), c.Subtotal)
	assert.Equal(t, int64(25000), c.Tax)
	assert.Equal(t, int64(5000), c.Shipping)
	assert.Equal(t, int64(280000), c.GrandTotal)

	resp := call(t, srv, http.MethodPost, "/orders", owner, "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[storefrontHttp.OrderResponse](t, resp)
	assert.Equal(t, int64(280000), created.OrderTotal)
	assert.Equal(t, 2, created.LineItemCount)

	resp = call(t, srv, http.MethodPost, "/orders/"+created.ID.String()+"/payment", owner, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	handoff := decode[storefrontHttp.PaymentHandoffResponse](t, resp)
	assert.Equal(t, int64(280000), handoff.Amount)
	assert.Equal(t, "INR", handoff.Currency)
	assert.Equal(t, testKeyID, handoff.KeyID)

	signer := gateway.NewSigner(testKeySecret, testWebhookSecret)
	webhook := fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"amount":280000,"currency":"INR","status":"captured","notes":{"cartId":%q}}}}}`,
		handoff.GatewayOrderID, created.CartID)
	resp = call(t, srv, http.MethodPost, "/webhooks/payment", uuid.Nil, webhook, map[string]string{
		storefrontHttp.HeaderRazorpaySignature: signer.WebhookSignature([]byte(webhook)),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", decode[storefrontHttp.WebhookResponse](t, resp).Status)

	// The browser's verify call arrives after the webhook and changes nothing.
	verify := fmt.Sprintf(`{"paymentId":"pay_1","gatewayOrderId":%q,"signature":%q}`,
		handoff.GatewayOrderID, signer.PaymentSignature(handoff.GatewayOrderID, "pay_1"))
	resp = call(t, srv, http.MethodPost, "/payments/verify", uuid.Nil, verify, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decode[storefrontHttp.VerifyPaymentResponse](t, resp)
	assert.True(t, verified.Success)
	require.NotNil(t, verified.OrderID)
	assert.Equal(t, created.ID, *verified.OrderID)

	resp = call(t, srv, http.MethodGet, "/orders/"+created.ID.String(), owner, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paid := decode[storefrontHttp.OrderResponse](t, resp)
	assert.True(t, paid.IsPaid)
	assert.Equal(t, "COMPLETED", paid.PaymentStatus)
	require.NotNil(t, paid.AmountPaid)
	assert.Equal(t, int64(280000), *paid.AmountPaid)
	require.Len(t, paid.Items, 2)
	quantities := map[uuid.UUID]int{}
	for _, item := range paid.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[uuid.UUID]int{mugID: 2, shirtID: 1}, quantities)

	fresh, err := carts.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, created.CartID, fresh.ID)
	assert.Empty(t, fresh.Lines)
}

func TestStorefront_RejectsForgedWebhook(t *testing.T) {
	srv := newTestStorefront(t)

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":1}}}}`
	resp := call(t, srv, http.MethodPost, "/webhooks/payment", uuid.Nil, body, map[string]string{
		storefrontHttp.HeaderSignature: gateway.NewSigner(testKeySecret, "wrong-secret").WebhookSignature([]byte(body)),
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStorefront_HealthAndProduct(t *testing.T) {
	srv := newTestStorefront(t)

	resp := call(t, srv, http.MethodGet, "/health", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, srv, http.MethodGet, "/products/"+mugID.String(), uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	product := decode[storefrontHttp.ProductResponse](t, resp)
	assert.Equal(t, "Mug", product.Name)
	assert.Equal(t, int64(50000), product.Price)

	resp = call(t, srv, http.MethodGet, "/cart", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "seed"}, names)
}
