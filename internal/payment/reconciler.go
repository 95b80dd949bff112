// Package payment confirms gateway payments against local orders. The
// redirect verify call and the gateway webhook both end in Reconciler, which
// performs the paid transition at most once per order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/events"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

// ErrInconsistent marks a paid order whose cart is gone or empty. Retrying
// cannot fix it.
var ErrInconsistent = errors.New("order and cart are inconsistent")

// DefaultSideEffectTimeout bounds cache invalidation and event publishing
// after a paid transition commits.
const DefaultSideEffectTimeout = 3 * time.Second

// Capture identifies a captured payment. Amount and CartID may be zero when
// the source did not carry them; the stored intent fills them in.
type Capture struct {
	GatewayOrderID string
	PaymentID      string
	CartID         uuid.UUID
	Amount         int64
}

type Confirmation struct {
	OrderID        uuid.UUID           `json:"order_id"`
	GatewayOrderID string              `json:"gateway_order_id"`
	PaymentID      string              `json:"payment_id"`
	AmountPaid     int64               `json:"amount_paid"`
	Currency       string              `json:"currency"`
	PaymentStatus  order.PaymentStatus `json:"payment_status"`
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, evt events.OrderPaid) error
}

type Reconciler struct {
	tx        db.TxRunner
	orders    order.RepositoryFactory
	carts     cart.RepositoryFactory
	prices    cart.PriceReaderFactory
	policy    cart.Policy
	cache     CacheInvalidator
	publisher EventPublisher
	now       func() time.Time

	sideEffectTimeout time.Duration
}

func NewReconciler(
	tx db.TxRunner,
	orders order.RepositoryFactory,
	carts cart.RepositoryFactory,
	prices cart.PriceReaderFactory,
	policy cart.Policy,
	cache CacheInvalidator,
	publisher EventPublisher,
) *Reconciler {
	return &Reconciler{
		tx:        tx,
		orders:    orders,
		carts:     carts,
		prices:    prices,
		policy:    policy,
		cache:     cache,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },

		sideEffectTimeout: DefaultSideEffectTimeout,
	}
}

// WithSideEffectTimeout replaces DefaultSideEffectTimeout. Non-positive
// values are ignored.
func (r *Reconciler) WithSideEffectTimeout(d time.Duration) *Reconciler {
	if d > 0 {
		r.sideEffectTimeout = d
	}
	return r
}

// paidTransition is what a first-time reconciliation hands to the post-commit
// side effects.
type paidTransition struct {
	order *order.Order
	items []order.OrderItem
}

// Reconcile marks the order behind c.GatewayOrderID paid, snapshots its cart
// into order items and deletes the cart, all in one transaction. Calling it
// again for a paid order returns the stored confirmation unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, c Capture) (*Confirmation, error) {
	var (
		confirmation *Confirmation
		transition   *paidTransition
	)

	err := r.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		orders := r.orders(q)
		carts := r.carts(q)

		o, err := orders.LockByGatewayOrderID(ctx, c.GatewayOrderID)
		if err != nil {
			return err
		}

		if o.IsPaid {
			if o.GatewayPaymentID != nil && *o.GatewayPaymentID != c.PaymentID {
				log.Warn().
					Stringer("order_id", o.ID).
					Str("stored_payment_id", *o.GatewayPaymentID).
					Str("payment_id", c.PaymentID).
					Msg("payment: order already paid by a different payment")
			}
			confirmation = confirm(o)
			return nil
		}

		intent, err := orders.GetIntent(ctx, c.GatewayOrderID)
		if err != nil {
			return err
		}
		cartID := c.CartID
		if cartID == uuid.Nil {
			cartID = intent.CartID
		}
		amount := c.Amount
		if amount == 0 {
			amount = intent.Amount
		}

		if o.PaymentStatus == order.StatusFailed {
			log.Warn().Stringer("order_id", o.ID).Str("payment_id", c.PaymentID).Msg("payment: capture received for failed order, marking paid")
		}

		paidAt := r.now()
		err = orders.MarkPaid(ctx, o.ID, order.Payment{
			GatewayOrderID: c.GatewayOrderID,
			PaymentID:      c.PaymentID,
			Amount:         amount,
			PaidAt:         paidAt,
		})
		if err != nil {
			return err
		}

		paidCart, err := carts.LockByID(ctx, cartID)
		if err != nil {
			if errors.Is(err, cart.ErrCartNotFound) {
				return fmt.Errorf("%w: %w", ErrInconsistent, err)
			}
			return err
		}
		if paidCart.IsEmpty() {
			return fmt.Errorf("%w: %w", ErrInconsistent, order.ErrEmptyCart)
		}
		if err := cart.Reprice(ctx, paidCart, r.prices(q), r.policy); err != nil {
			return err
		}

		items := make([]order.OrderItem, len(paidCart.Lines))
		for i, l := range paidCart.Lines {
			items[i] = order.OrderItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.UnitPrice,
				Color:     l.Color,
				Size:      l.Size,
			}
		}
		if err := orders.InsertItems(ctx, o.ID, items); err != nil {
			return err
		}

		if err := carts.Delete(ctx, paidCart.ID); err != nil {
			return err
		}

		paid, err := orders.GetByID(ctx, o.ID)
		if err != nil {
			return err
		}

		confirmation = confirm(paid)
		transition = &paidTransition{order: paid, items: items}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, ErrInconsistent):
			log.Warn().Err(err).Str("gateway_order_id", c.GatewayOrderID).Str("payment_id", c.PaymentID).Msg("payment: reconciliation rejected")
			return nil, err
		default:
			log.Error().Err(err).Str("gateway_order_id", c.GatewayOrderID).Str("payment_id", c.PaymentID).Msg("payment: reconciliation failed")
			return nil, fmt.Errorf("payment: failed to reconcile %s: %w", c.GatewayOrderID, err)
		}
	}

	if transition == nil {
		log.Info().Stringer("order_id", confirmation.OrderID).Str("payment_id", c.PaymentID).Msg("payment: order already paid, nothing to do")
		return confirmation, nil
	}

	log.Info().
		Stringer("order_id", confirmation.OrderID).
		Str("gateway_order_id", confirmation.GatewayOrderID).
		Str("payment_id", confirmation.PaymentID).
		Int64("amount_paid", confirmation.AmountPaid).
		Msg("payment: order paid")

	r.afterCommit(ctx, transition)
	return confirmation, nil
}

// afterCommit runs side effects that must not roll the payment back. Their
// failures are only logged. They run detached from the caller's cancellation
// and share one sideEffectTimeout budget.
func (r *Reconciler) afterCommit(ctx context.Context, t *paidTransition) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sideEffectTimeout)
	defer cancel()

	paths := []string{"/", "/cart", "/orders", "/orders/" + t.order.ID.String()}
	seen := make(map[uuid.UUID]struct{}, len(t.items))
	evtItems := make([]events.Item, len(t.items))
	for i, item := range t.items {
		evtItems[i] = events.Item{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		paths = append(paths, catalog.ProductPath(item.ProductID))
	}

	if err := r.cache.Invalidate(ctx, paths...); err != nil {
		log.Error().Err(err).Stringer("order_id", t.order.ID).Msg("payment: failed to invalidate page cache")
	}

	evt := events.OrderPaid{
		OrderID:    t.order.ID,
		OwnerID:    t.order.OwnerID,
		Currency:   t.order.Currency,
		Items:      evtItems,
		AmountPaid: deref(t.order.AmountPaid),
	}
	if t.order.GatewayOrderID != nil {
		evt.GatewayOrderID = *t.order.GatewayOrderID
	}
	if t.order.GatewayPaymentID != nil {
		evt.PaymentID = *t.order.GatewayPaymentID
	}
	if t.order.PaidAt != nil {
		evt.PaidAt = *t.order.PaidAt
	}
	if err := r.publisher.PublishOrderPaid(ctx, evt); err != nil {
		log.Error().Err(err).Stringer("order_id", t.order.ID).Msg("payment: failed to publish order.paid")
	}
}

func confirm(o *order.Order) *Confirmation {
	c := &Confirmation{
		OrderID:       o.ID,
		AmountPaid:    deref(o.AmountPaid),
		Currency:      o.Currency,
		PaymentStatus: o.PaymentStatus,
	}
	if o.GatewayOrderID != nil {
		c.GatewayOrderID = *o.GatewayOrderID
	}
	if o.GatewayPaymentID != nil {
		c.PaymentID = *o.GatewayPaymentID
	}
	return c
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
