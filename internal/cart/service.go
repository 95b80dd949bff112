package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

// MaxQuantity caps a single line, including quantities merged by AddLine.
const MaxQuantity = 10000

var ErrInvalidQuantity = errors.New("quantity must be between 1 and 10000")

type PriceReader interface {
	GetPrices(ctx context.Context, ids []uuid.UUID) (pricing.Prices, error)
}

type PriceReaderFactory func(q db.DB) PriceReader

// CatalogPrices adapts the catalog repository to PriceReaderFactory.
func CatalogPrices(q db.DB) PriceReader {
	return catalog.NewRepository(q)
}

type Policy struct {
	TaxRate  decimal.Decimal
	Shipping pricing.ShippingPolicy
}

// Reprice fills each line's current unit price and recomputes c.Totals.
func Reprice(ctx context.Context, c *Cart, prices PriceReader, policy Policy) error {
	current, err := prices.GetPrices(ctx, c.ProductIDs())
	if err != nil {
		return fmt.Errorf("failed to load prices for cart %s: %w", c.ID, err)
	}

	for i := range c.Lines {
		price, ok := current[c.Lines[i].ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", catalog.ErrProductNotFound, c.Lines[i].ProductID)
		}
		c.Lines[i].UnitPrice = price
	}

	totals, err := pricing.Price(c.PricingLines(), current, policy.TaxRate, policy.Shipping)
	if err != nil {
		return fmt.Errorf("failed to price cart %s: %w", c.ID, err)
	}
	c.Totals = totals

	return nil
}

type Service interface {
	GetOrCreate(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	AddLine(ctx context.Context, ownerID uuid.UUID, in AddLineInput) (*Cart, error)
	SetQuantity(ctx context.Context, ownerID, lineID uuid.UUID, quantity int) (*Cart, error)
	RemoveLine(ctx context.Context, ownerID, lineID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
}

type service struct {
	tx     db.TxRunner
	carts  RepositoryFactory
	prices PriceReaderFactory
	policy Policy
}

func NewService(tx db.TxRunner, carts RepositoryFactory, prices PriceReaderFactory, policy Policy) Service {
	return &service{
		tx:     tx,
		carts:  carts,
		prices: prices,
		policy: policy,
	}
}

func (s *service) GetOrCreate(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	return s.mutate(ctx, ownerID, "get", func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error {
		return nil
	})
}

func (s *service) AddLine(ctx context.Context, ownerID uuid.UUID, in AddLineInput) (*Cart, error) {
	if in.Quantity < 1 || in.Quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	return s.mutate(ctx, ownerID, "add_line", func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error {
		known, err := prices.GetPrices(ctx, []uuid.UUID{in.ProductID})
		if err != nil {
			return err
		}
		if _, ok := known[in.ProductID]; !ok {
			return catalog.ErrProductNotFound
		}

		_, err = repo.UpsertLine(ctx, c.ID, in)
		return err
	})
}

func (s *service) SetQuantity(ctx context.Context, ownerID, lineID uuid.UUID, quantity int) (*Cart, error) {
	return s.mutate(ctx, ownerID, "set_quantity", func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error {
		if _, ok := c.Line(lineID); !ok {
			return ErrLineNotFound
		}
		if quantity <= 0 {
			return repo.DeleteLine(ctx, c.ID, lineID)
		}
		if quantity > MaxQuantity {
			return ErrInvalidQuantity
		}
		return repo.SetLineQuantity(ctx, c.ID, lineID, quantity)
	})
}

func (s *service) RemoveLine(ctx context.Context, ownerID, lineID uuid.UUID) (*Cart, error) {
	return s.mutate(ctx, ownerID, "remove_line", func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error {
		return repo.DeleteLine(ctx, c.ID, lineID)
	})
}

func (s *service) Clear(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	return s.mutate(ctx, ownerID, "clear", func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error {
		return repo.DeleteLines(ctx, c.ID)
	})
}

type mutation func(ctx context.Context, repo Repository, prices PriceReader, c *Cart) error

// mutate runs fn against the owner's locked cart and persists recomputed
// totals in the same transaction.
func (s *service) mutate(ctx context.Context, ownerID uuid.UUID, op string, fn mutation) (*Cart, error) {
	var result *Cart

	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		repo := s.carts(q)
		prices := s.prices(q)

		if err := repo.EnsureForOwner(ctx, ownerID); err != nil {
			return err
		}
		locked, err := repo.LockByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		if err := fn(ctx, repo, prices, locked); err != nil {
			return err
		}

		current, err := repo.GetByID(ctx, locked.ID)
		if err != nil {
			return err
		}
		for _, line := range current.Lines {
			if line.Quantity > MaxQuantity {
				return fmt.Errorf("%w: line %s has quantity %d", ErrInvalidQuantity, line.ID, line.Quantity)
			}
		}
		cached := current.Totals
		if err := Reprice(ctx, current, prices, s.policy); err != nil {
			return err
		}
		if !cached.Equal(current.Totals) {
			if err := repo.UpdateTotals(ctx, current.ID, current.Totals); err != nil {
				return err
			}
		}

		result = current
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrLineNotFound),
			errors.Is(err, catalog.ErrProductNotFound),
			errors.Is(err, ErrInvalidQuantity):
			log.Warn().Err(err).Str("op", op).Stringer("owner_id", ownerID).Msg("service: cart mutation rejected")
			return nil, err
		default:
			log.Error().Err(err).Str("op", op).Stringer("owner_id", ownerID).Msg("service: cart mutation failed")
			return nil, fmt.Errorf("service: failed to %s: %w", op, err)
		}
	}

	log.Debug().Str("op", op).Stringer("cart_id", result.ID).Int64("grand_total", result.Totals.GrandTotal).Msg("service: cart updated")
	return result, nil
}
