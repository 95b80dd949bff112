package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	storefrontHandler "github.com/vasiliy-maslov/ecommerce-storefront/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/payment"
)

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) cartResult(args mock.Arguments) (*cart.Cart, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) GetOrCreate(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, ownerID))
}

func (m *MockCartService) AddLine(ctx context.Context, ownerID uuid.UUID, in cart.AddLineInput) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, ownerID, in))
}

func (m *MockCartService) SetQuantity(ctx context.Context, ownerID, lineID uuid.UUID, quantity int) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, ownerID, lineID, quantity))
}

func (m *MockCartService) RemoveLine(ctx context.Context, ownerID, lineID uuid.UUID) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, ownerID, lineID))
}

func (m *MockCartService) Clear(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, ownerID))
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) orderResult(args mock.Arguments) (*order.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, ownerID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, ownerID))
}

func (m *MockOrderService) InitiatePayment(ctx context.Context, ownerID, orderID uuid.UUID) (*order.PaymentHandoff, error) {
	args := m.Called(ctx, ownerID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.PaymentHandoff), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, ownerID, orderID))
}

func (m *MockOrderService) ListOrders(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, ownerID, orderID))
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Verify(ctx context.Context, req payment.VerifyRequest) (*payment.Confirmation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Confirmation), args.Error(1)
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*payment.WebhookResult, error) {
	args := m.Called(ctx, body, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookResult), args.Error(1)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) Seed(ctx context.Context, products []catalog.Product) error {
	return m.Called(ctx, products).Error(0)
}

type routeRegistrar interface {
	RegisterRoutes(router chi.Router)
}

func newRequest(method, target, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, target, nil)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serveRequest(h routeRegistrar, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	router.ServeHTTP(rr, req)
	return rr
}

// serve routes one request through a fresh router. A nil userID sends no
// identity header.
func serve(h routeRegistrar, method, target, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	req := newRequest(method, target, body)
	if userID != uuid.Nil {
		req.Header.Set(storefrontHandler.HeaderUserID, userID.String())
	}
	return serveRequest(h, req)
}
