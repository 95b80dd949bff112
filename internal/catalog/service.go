package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

var ErrInvalidProduct = errors.New("invalid product")

// PageInvalidator drops cached product pages.
type PageInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// ProductPath is the URL path a product page is served and cached under.
func ProductPath(id uuid.UUID) string {
	return "/products/" + id.String()
}

// RepositoryFactory binds a Repository to a connection or transaction.
type RepositoryFactory func(q db.DB) Repository

type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	// Seed saves every product in one transaction, then drops their cached
	// pages.
	Seed(ctx context.Context, products []Product) error
}

type service struct {
	tx       db.TxRunner
	products RepositoryFactory
	pages    PageInvalidator
}

func NewService(tx db.TxRunner, products RepositoryFactory, pages PageInvalidator) Service {
	return &service{tx: tx, products: products, pages: pages}
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	var product *Product
	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		var err error
		product, err = s.products(q).GetByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Stringer("product_id", id).Msg("service: product not found")
		} else {
			log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to get product")
		}
		return nil, err
	}
	return product, nil
}

func (s *service) Seed(ctx context.Context, products []Product) error {
	for i, p := range products {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("product %d: %w", i, err)
		}
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context, q db.DB) error {
		repo := s.products(q)
		for i := range products {
			if err := repo.Save(ctx, &products[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("products", len(products)).Msg("service: failed to seed catalog")
		return err
	}

	paths := make([]string, len(products))
	for i := range products {
		paths[i] = ProductPath(products[i].ID)
	}
	if err := s.pages.Invalidate(ctx, paths...); err != nil {
		log.Warn().Err(err).Int("products", len(products)).Msg("service: failed to invalidate seeded product pages")
	}

	log.Info().Int("products", len(products)).Msg("service: catalog seeded")
	return nil
}
