package payment_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/events"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/memstore"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

func (m *MockGateway) FetchOrder(ctx context.Context, id string) (*gateway.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Invalidate(ctx context.Context, paths ...string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderPaid(ctx context.Context, evt events.OrderPaid) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

const (
	keySecret     = "key_secret"
	webhookSecret = "webhook_secret"
)

var policy = cart.Policy{
	TaxRate:  decimal.RequireFromString("0.1"),
	Shipping: pricing.FlatRate{Amount: 5000},
}

type fixture struct {
	store      *memstore.Store
	gateway    *MockGateway
	cache      *MockCache
	publisher  *MockPublisher
	signer     *gateway.Signer
	carts      cart.Service
	orders     order.Service
	reconciler *payment.Reconciler
	payments   payment.Service

	mug   *catalog.Product
	shirt *catalog.Product
	owner uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()

	mug := &catalog.Product{Name: "Mug", Price: 50000}
	shirt := &catalog.Product{Name: "Shirt", Price: 150000}
	require.NoError(t, store.Catalog(nil).Save(ctx, mug))
	require.NoError(t, store.Catalog(nil).Save(ctx, shirt))

	f := &fixture{
		store:     store,
		gateway:   new(MockGateway),
		cache:     new(MockCache),
		publisher: new(MockPublisher),
		signer:    gateway.NewSigner(keySecret, webhookSecret),
		mug:       mug,
		shirt:     shirt,
		owner:     uuid.Must(uuid.NewV4()),
	}
	f.carts = cart.NewService(store, store.Carts, store.Prices, policy)
	f.orders = order.NewService(store, store.Orders, store.Carts, store.Prices, f.gateway, order.Settings{
		Policy:   policy,
		Currency: "INR",
		KeyID:    "rzp_test_key",
	})
	f.reconciler = payment.NewReconciler(store, store.Orders, store.Carts, store.Prices, policy, f.cache, f.publisher)
	f.payments = payment.NewService(f.signer, f.gateway, f.reconciler)

	t.Cleanup(func() {
		f.gateway.AssertExpectations(t)
		f.cache.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})
	return f
}

// checkout fills the example cart (2 mugs, 1 shirt), creates the order and
// initiates payment under gatewayOrderID.
func (f *fixture) checkout(t *testing.T, gatewayOrderID string) (*order.Order, *cart.Cart) {
	t.Helper()
	ctx := context.Background()

	_, err := f.carts.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 2})
	require.NoError(t, err)
	c, err := f.carts.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1})
	require.NoError(t, err)

	o, err := f.orders.CreateOrder(ctx, f.owner)
	require.NoError(t, err)

	f.gateway.On("CreateOrder", mock.Anything, mock.AnythingOfType("gateway.CreateOrderRequest")).
		Return(&gateway.Order{ID: gatewayOrderID, Amount: 280000, Currency: "INR"}, nil).
		Once()
	handoff, err := f.orders.InitiatePayment(ctx, f.owner, o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(280000), handoff.Amount)

	return o, c
}

func (f *fixture) expectSideEffects(times int) {
	f.cache.On("Invalidate", mock.Anything, mock.Anything).Return(nil).Times(times)
	f.publisher.On("PublishOrderPaid", mock.Anything, mock.Anything).Return(nil).Times(times)
}

func capturedEvent(t *testing.T, event, gatewayOrderID, paymentID string, cartID uuid.UUID) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"entity":   "event",
		"event":    event,
		"contains": []string{"payment"},
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"entity":   "payment",
					"amount":   280000,
					"currency": "INR",
					"status":   "captured",
					"order_id": gatewayOrderID,
					"notes":    map[string]string{gateway.NoteCartID: cartID.String()},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}
