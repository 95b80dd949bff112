package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	// Save inserts product, or updates name and price when the id exists.
	Save(ctx context.Context, product *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// GetPrices returns current prices for the requested products. Unknown
	// ids are simply absent from the result.
	GetPrices(ctx context.Context, ids []uuid.UUID) (pricing.Prices, error)
}

type postgresRepository struct {
	db db.DB
}

func NewRepository(q db.DB) Repository {
	return &postgresRepository{db: q}
}

func (r *postgresRepository) Save(ctx context.Context, product *Product) error {
	if product.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		product.ID = id
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	query := `
		INSERT INTO storefront.products (id, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, product.ID, product.Name, product.Price, product.CreatedAt, product.UpdatedAt).Scan(&product.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to save product %s: %w", product.ID, err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, name, price, created_at, updated_at
		FROM storefront.products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}
	return &p, nil
}

func (r *postgresRepository) GetPrices(ctx context.Context, ids []uuid.UUID) (pricing.Prices, error) {
	prices := make(pricing.Prices, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, price FROM storefront.products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query product prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uuid.UUID
			price int64
		)
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product price: %w", err)
		}
		prices[id] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating product prices: %w", err)
	}

	return prices, nil
}
