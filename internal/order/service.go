package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/gateway"
)

var (
	ErrAlreadyPaid   = errors.New("order is already paid")
	ErrOrderFailed   = errors.New("order payment has failed")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrInvalidAmount = errors.New("payment amount must be positive")
)

type Service interface {
	CreateOrder(ctx context.Context, ownerID uuid.UUID) (*Order, error)
	InitiatePayment(ctx context.Context, ownerID, orderID uuid.UUID) (*PaymentHandoff, error)
	GetOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	CancelOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*Order, error)
}

type Settings struct {
	Policy   cart.Policy
	Currency string
	// KeyID is the public gateway key handed to the browser checkout.
	KeyID string
}

type service struct {
	tx       db.TxRunner
	orders   RepositoryFactory
	carts    cart.RepositoryFactory
	prices   cart.PriceReaderFactory
	gateway  gateway.Gateway
	settings Settings
}

func NewService(
	tx db.TxRunner,
	orders RepositoryFactory,
	carts cart.RepositoryFactory,
	prices cart.PriceReaderFactory,
	gw gateway.Gateway,
	settings Settings,
) Service {
	return &service{
		tx:       tx,
		orders:   orders,
		carts:    carts,
		prices:   prices,
		gateway:  gw,
		settings: settings,
	}
}

func (s *service) CreateOrder(ctx context.Context, ownerID uuid.UUID) (*Order, error) {
	var created *Order

	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		c, err := s.carts(q).GetByOwner(ctx, ownerID)
		if err != nil {
			if errors.Is(err, cart.ErrCartNotFound) {
				return ErrEmptyCart
			}
			return err
		}
		if c.IsEmpty() {
			return ErrEmptyCart
		}
		if err := cart.Reprice(ctx, c, s.prices(q), s.settings.Policy); err != nil {
			return err
		}

		o := &Order{
			OwnerID:       ownerID,
			CartID:        c.ID,
			LineItemCount: len(c.Lines),
			Subtotal:      c.Totals.Subtotal,
			Shipping:      c.Totals.Shipping,
			Tax:           c.Totals.Tax,
			OrderTotal:    c.Totals.GrandTotal,
			Currency:      s.settings.Currency,
			PaymentStatus: StatusPending,
			Items:         make([]OrderItem, 0),
		}
		if err := s.orders(q).Create(ctx, o); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			log.Warn().Stringer("owner_id", ownerID).Msg("service: checkout attempted with empty cart")
			return nil, ErrEmptyCart
		}
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", created.ID).Stringer("owner_id", ownerID).Int64("order_total", created.OrderTotal).Msg("service: order created")
	return created, nil
}

func (s *service) InitiatePayment(ctx context.Context, ownerID, orderID uuid.UUID) (*PaymentHandoff, error) {
	var handoff *PaymentHandoff

	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		orders := s.orders(q)

		o, err := orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.OwnerID != ownerID {
			return ErrOrderNotFound
		}
		if o.IsPaid {
			return ErrAlreadyPaid
		}
		if o.PaymentStatus == StatusFailed {
			return ErrOrderFailed
		}

		c, err := s.carts(q).GetByID(ctx, o.CartID)
		if err != nil {
			if errors.Is(err, cart.ErrCartNotFound) {
				return ErrEmptyCart
			}
			return err
		}
		if c.IsEmpty() {
			return ErrEmptyCart
		}
		if err := cart.Reprice(ctx, c, s.prices(q), s.settings.Policy); err != nil {
			return err
		}

		amount := c.Totals.GrandTotal
		if amount <= 0 {
			return ErrInvalidAmount
		}

		if o.GatewayOrderID != nil {
			current, err := orders.GetIntent(ctx, *o.GatewayOrderID)
			if err != nil && !errors.Is(err, ErrIntentNotFound) {
				return err
			}
			if current != nil && current.Amount == amount {
				log.Info().Stringer("order_id", o.ID).Str("gateway_order_id", current.GatewayOrderID).Msg("service: reusing payment intent")
				handoff = s.handoff(current.GatewayOrderID, amount)
				return nil
			}
		}

		gwOrder, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
			Amount:   amount,
			Currency: s.settings.Currency,
			Receipt:  o.ID.String(),
			Notes: gateway.Notes{
				gateway.NoteOrderID: o.ID.String(),
				gateway.NoteCartID:  c.ID.String(),
			},
		})
		if err != nil {
			if errors.Is(err, gateway.ErrGateway) {
				return err
			}
			return fmt.Errorf("%w: %v", gateway.ErrGateway, err)
		}

		intent := &PaymentIntent{
			GatewayOrderID: gwOrder.ID,
			OrderID:        o.ID,
			CartID:         c.ID,
			Amount:         amount,
			Currency:       s.settings.Currency,
		}
		if err := orders.CreateIntent(ctx, intent); err != nil {
			return err
		}

		handoff = s.handoff(intent.GatewayOrderID, amount)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound),
			errors.Is(err, ErrAlreadyPaid),
			errors.Is(err, ErrOrderFailed),
			errors.Is(err, ErrEmptyCart),
			errors.Is(err, ErrInvalidAmount),
			errors.Is(err, ErrDuplicateGatewayOrder):
			log.Warn().Err(err).Stringer("order_id", orderID).Stringer("owner_id", ownerID).Msg("service: payment initiation rejected")
			return nil, err
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Msg("service: payment initiation failed")
			return nil, fmt.Errorf("service: failed to initiate payment for order %s: %w", orderID, err)
		}
	}

	log.Info().Stringer("order_id", orderID).Str("gateway_order_id", handoff.GatewayOrderID).Int64("amount", handoff.Amount).Msg("service: payment initiated")
	return handoff, nil
}

func (s *service) handoff(gatewayOrderID string, amount int64) *PaymentHandoff {
	return &PaymentHandoff{
		GatewayOrderID: gatewayOrderID,
		Amount:         amount,
		Currency:       s.settings.Currency,
		KeyID:          s.settings.KeyID,
	}
}

func (s *service) GetOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*Order, error) {
	var found *Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		o, err := s.orders(q).GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.OwnerID != ownerID {
			return ErrOrderNotFound
		}
		found = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("owner_id", ownerID).Msg("service: order not found")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return found, nil
}

func (s *service) ListOrders(ctx context.Context, ownerID uuid.UUID) ([]Order, error) {
	var orders []Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		var err error
		orders, err = s.orders(q).ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

// CancelOrder abandons an unpaid order. Cancelling twice is a no-op.
func (s *service) CancelOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*Order, error) {
	var cancelled *Order
	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		orders := s.orders(q)

		o, err := orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.OwnerID != ownerID {
			return ErrOrderNotFound
		}
		if o.IsPaid {
			return ErrAlreadyPaid
		}
		if o.PaymentStatus != StatusFailed {
			if err := orders.MarkFailed(ctx, o.ID); err != nil {
				return err
			}
		}

		cancelled, err = orders.GetByID(ctx, o.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrAlreadyPaid) {
			log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: order cancellation rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to cancel order")
		return nil, fmt.Errorf("service: failed to cancel order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order cancelled")
	return cancelled, nil
}
