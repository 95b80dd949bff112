package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("cart line not found")
)

type Repository interface {
	// EnsureForOwner creates the owner's cart unless one exists already.
	EnsureForOwner(ctx context.Context, ownerID uuid.UUID) error
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	// LockByOwner loads the cart with its lines and holds a row lock on it
	// until the surrounding transaction ends.
	LockByOwner(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Cart, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Cart, error)
	UpsertLine(ctx context.Context, cartID uuid.UUID, in AddLineInput) (*Line, error)
	SetLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) error
	DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error
	DeleteLines(ctx context.Context, cartID uuid.UUID) error
	UpdateTotals(ctx context.Context, cartID uuid.UUID, totals pricing.Totals) error
	// Delete removes the cart's lines and then the cart itself.
	Delete(ctx context.Context, cartID uuid.UUID) error
}

// RepositoryFactory binds a Repository to a connection or transaction.
type RepositoryFactory func(q db.DB) Repository

type postgresRepository struct {
	db db.DB
}

func NewRepository(q db.DB) Repository {
	return &postgresRepository{db: q}
}

const selectCart = `
	SELECT id, owner_id, subtotal, shipping, tax, tax_rate_bps, grand_total, created_at, updated_at
	FROM storefront.carts
`

func (r *postgresRepository) EnsureForOwner(ctx context.Context, ownerID uuid.UUID) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart ID: %w", err)
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO storefront.carts (id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT carts_owner_id_key DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, id, ownerID, now, now); err != nil {
		return fmt.Errorf("repository: failed to create cart for owner %s: %w", ownerID, err)
	}
	return nil
}

func (r *postgresRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	return r.get(ctx, selectCart+` WHERE owner_id = $1`, ownerID)
}

func (r *postgresRepository) LockByOwner(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	return r.get(ctx, selectCart+` WHERE owner_id = $1 FOR UPDATE`, ownerID)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	return r.get(ctx, selectCart+` WHERE id = $1`, id)
}

func (r *postgresRepository) LockByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	return r.get(ctx, selectCart+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresRepository) get(ctx context.Context, query string, arg uuid.UUID) (*Cart, error) {
	var (
		c   Cart
		bps int32
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Totals.Subtotal,
		&c.Totals.Shipping,
		&c.Totals.Tax,
		&bps,
		&c.Totals.GrandTotal,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart %s: %w", arg, err)
	}
	c.Totals.TaxRate = pricing.RateFromBasisPoints(bps)

	lines, err := r.lines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines

	return &c, nil
}

func (r *postgresRepository) lines(ctx context.Context, cartID uuid.UUID) ([]Line, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, color, size, created_at, updated_at
		FROM storefront.cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query lines for cart %s: %w", cartID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.Color, &l.Size, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan line for cart %s: %w", cartID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating lines for cart %s: %w", cartID, err)
	}

	return lines, nil
}

func (r *postgresRepository) UpsertLine(ctx context.Context, cartID uuid.UUID, in AddLineInput) (*Line, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate line ID: %w", err)
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO storefront.cart_items (id, cart_id, product_id, quantity, color, size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT ON CONSTRAINT cart_items_line_key
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING id, cart_id, product_id, quantity, color, size, created_at, updated_at
	`
	var l Line
	err = r.db.QueryRow(ctx, query, id, cartID, in.ProductID, in.Quantity, in.Color, in.Size, now).Scan(
		&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.Color, &l.Size, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, in.ProductID)
		}
		return nil, fmt.Errorf("repository: failed to upsert line for cart %s: %w", cartID, err)
	}
	return &l, nil
}

func (r *postgresRepository) SetLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) error {
	query := `
		UPDATE storefront.cart_items
		SET quantity = $1, updated_at = $2
		WHERE id = $3 AND cart_id = $4
	`
	tag, err := r.db.Exec(ctx, query, quantity, time.Now().UTC(), lineID, cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to update line %s: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM storefront.cart_items WHERE id = $1 AND cart_id = $2`, lineID, cartID); err != nil {
		return fmt.Errorf("repository: failed to delete line %s: %w", lineID, err)
	}
	return nil
}

func (r *postgresRepository) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM storefront.cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("repository: failed to delete lines of cart %s: %w", cartID, err)
	}
	return nil
}

func (r *postgresRepository) UpdateTotals(ctx context.Context, cartID uuid.UUID, totals pricing.Totals) error {
	query := `
		UPDATE storefront.carts
		SET subtotal = $1, shipping = $2, tax = $3, tax_rate_bps = $4, grand_total = $5, updated_at = $6
		WHERE id = $7
	`
	tag, err := r.db.Exec(ctx, query,
		totals.Subtotal,
		totals.Shipping,
		totals.Tax,
		pricing.RateToBasisPoints(totals.TaxRate),
		totals.GrandTotal,
		time.Now().UTC(),
		cartID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update totals of cart %s: %w", cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.DeleteLines(ctx, cartID); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM storefront.carts WHERE id = $1`, cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart %s: %w", cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}
