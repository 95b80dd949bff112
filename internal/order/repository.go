package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrIntentNotFound        = errors.New("payment intent not found")
	ErrDuplicateGatewayOrder = errors.New("gateway order already belongs to an order")
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	// GetByID returns the order together with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// LockByGatewayOrderID finds the order owning any of its intents and
	// holds its row lock until the transaction ends.
	LockByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	GetIntent(ctx context.Context, gatewayOrderID string) (*PaymentIntent, error)
	// CreateIntent records the intent and makes it the order's current one.
	CreateIntent(ctx context.Context, intent *PaymentIntent) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, payment Payment) error
	MarkFailed(ctx context.Context, orderID uuid.UUID) error
	InsertItems(ctx context.Context, orderID uuid.UUID, items []OrderItem) error
}

// RepositoryFactory binds a Repository to a connection or transaction.
type RepositoryFactory func(q db.DB) Repository

type postgresRepository struct {
	db db.DB
}

func NewRepository(q db.DB) Repository {
	return &postgresRepository{db: q}
}

const selectOrder = `
	SELECT o.id, o.owner_id, o.cart_id, o.line_item_count, o.subtotal, o.shipping, o.tax, o.order_total,
		o.currency, o.gateway_order_id, o.gateway_payment_id, o.amount_paid, o.payment_status, o.is_paid,
		o.paid_at, o.created_at, o.updated_at
	FROM storefront.orders o
`

func (r *postgresRepository) Create(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			log.Error().Err(err).Msg("repository: failed to generate order ID")
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		order.ID = id
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.PaymentStatus == "" {
		order.PaymentStatus = StatusPending
	}

	query := `
		INSERT INTO storefront.orders (id, owner_id, cart_id, line_item_count, subtotal, shipping, tax,
			order_total, currency, payment_status, is_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.OwnerID,
		order.CartID,
		order.LineItemCount,
		order.Subtotal,
		order.Shipping,
		order.Tax,
		order.OrderTotal,
		order.Currency,
		string(order.PaymentStatus),
		order.IsPaid,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := r.get(ctx, selectOrder+` WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}

	items, err := r.items(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	if order.Items == nil {
		order.Items = make([]OrderItem, 0)
	}

	return order, nil
}

func (r *postgresRepository) LockByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, selectOrder+` WHERE o.id = $1 FOR UPDATE`, id)
}

func (r *postgresRepository) LockByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	query := selectOrder + `
		JOIN storefront.payment_intents pi ON pi.order_id = o.id
		WHERE pi.gateway_order_id = $1
		FOR UPDATE OF o
	`
	return r.get(ctx, query, gatewayOrderID)
}

func (r *postgresRepository) get(ctx context.Context, query string, arg any) (*Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by %v: %w", arg, err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(
		&o.ID,
		&o.OwnerID,
		&o.CartID,
		&o.LineItemCount,
		&o.Subtotal,
		&o.Shipping,
		&o.Tax,
		&o.OrderTotal,
		&o.Currency,
		&o.GatewayOrderID,
		&o.GatewayPaymentID,
		&o.AmountPaid,
		&status,
		&o.IsPaid,
		&o.PaidAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentStatus = PaymentStatus(status)
	return &o, nil
}

func (r *postgresRepository) items(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, price, color, size, created_at
		FROM storefront.order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[uuid.UUID][]OrderItem, len(orderIDs))
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.Color,
			&item.Size,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}

	return byOrder, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error) {
	rows, err := r.db.Query(ctx, selectOrder+` WHERE o.owner_id = $1 ORDER BY o.created_at DESC, o.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for owner %s: %w", ownerID, err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for owner %s: %w", ownerID, err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = make([]OrderItem, 0)
		}
	}

	return orders, nil
}

func (r *postgresRepository) GetIntent(ctx context.Context, gatewayOrderID string) (*PaymentIntent, error) {
	query := `
		SELECT gateway_order_id, order_id, cart_id, amount, currency, created_at
		FROM storefront.payment_intents
		WHERE gateway_order_id = $1
	`
	var pi PaymentIntent
	err := r.db.QueryRow(ctx, query, gatewayOrderID).Scan(
		&pi.GatewayOrderID, &pi.OrderID, &pi.CartID, &pi.Amount, &pi.Currency, &pi.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select intent %s: %w", gatewayOrderID, err)
	}
	return &pi, nil
}

func (r *postgresRepository) CreateIntent(ctx context.Context, intent *PaymentIntent) error {
	intent.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO storefront.payment_intents (gateway_order_id, order_id, cart_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		intent.GatewayOrderID, intent.OrderID, intent.CartID, intent.Amount, intent.Currency, intent.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrDuplicateGatewayOrder
		}
		return fmt.Errorf("repository: failed to insert intent %s: %w", intent.GatewayOrderID, err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE storefront.orders SET gateway_order_id = $1, updated_at = $2 WHERE id = $3`,
		intent.GatewayOrderID, intent.CreatedAt, intent.OrderID,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "orders_gateway_order_id_key") {
			return ErrDuplicateGatewayOrder
		}
		return fmt.Errorf("repository: failed to attach intent %s: %w", intent.GatewayOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, payment Payment) error {
	query := `
		UPDATE storefront.orders
		SET gateway_order_id = $1, gateway_payment_id = $2, amount_paid = $3,
			payment_status = $4, is_paid = TRUE, paid_at = $5, updated_at = $5
		WHERE id = $6 AND is_paid = FALSE
	`
	tag, err := r.db.Exec(ctx, query,
		payment.GatewayOrderID,
		payment.PaymentID,
		payment.Amount,
		string(StatusCompleted),
		payment.PaidAt,
		orderID,
	)
	if err != nil {
		if db.IsUniqueViolation(err, "orders_gateway_order_id_key") {
			return ErrDuplicateGatewayOrder
		}
		return fmt.Errorf("repository: failed to mark order %s paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", orderID).Msg("repository: no unpaid order to mark paid")
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE storefront.orders
		SET payment_status = $1, updated_at = $2
		WHERE id = $3 AND is_paid = FALSE
	`
	tag, err := r.db.Exec(ctx, query, string(StatusFailed), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s failed: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// InsertItems writes all items in one statement.
func (r *postgresRepository) InsertItems(ctx context.Context, orderID uuid.UUID, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var (
		ids        = make([]uuid.UUID, len(items))
		productIDs = make([]uuid.UUID, len(items))
		quantities = make([]int32, len(items))
		prices     = make([]int64, len(items))
		colors     = make([]string, len(items))
		sizes      = make([]string, len(items))
	)
	for i := range items {
		if items[i].ID == uuid.Nil {
			id, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate order item ID: %w", err)
			}
			items[i].ID = id
		}
		items[i].OrderID = orderID
		items[i].CreatedAt = now

		ids[i] = items[i].ID
		productIDs[i] = items[i].ProductID
		quantities[i] = int32(items[i].Quantity)
		prices[i] = items[i].Price
		colors[i] = items[i].Color
		sizes[i] = items[i].Size
	}

	query := `
		INSERT INTO storefront.order_items (id, order_id, product_id, quantity, price, color, size, created_at)
		SELECT u.id, $1, u.product_id, u.quantity, u.price, u.color, u.size, $2
		FROM unnest($3::uuid[], $4::uuid[], $5::int4[], $6::int8[], $7::text[], $8::text[])
			AS u(id, product_id, quantity, price, color, size)
	`
	_, err := r.db.Exec(ctx, query, orderID, now, ids, productIDs, quantities, prices, colors, sizes)
	if err != nil {
		return fmt.Errorf("repository: failed to insert items for order %s: %w", orderID, err)
	}
	return nil
}
