package memstore

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

type catalogRepo struct {
	s *Store
}

func (r *catalogRepo) Save(ctx context.Context, product *catalog.Product) error {
	if err := r.s.fault("catalog.Save"); err != nil {
		return err
	}
	if product.ID == uuid.Nil {
		product.ID = newID()
	}
	ts := now()
	product.CreatedAt = ts
	product.UpdatedAt = ts

	r.s.write(func(st *state) {
		if existing, ok := st.products[product.ID]; ok {
			product.CreatedAt = existing.CreatedAt
		}
		st.products[product.ID] = *product
	})
	return nil
}

func (r *catalogRepo) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	if err := r.s.fault("catalog.GetByID"); err != nil {
		return nil, err
	}
	var (
		p  catalog.Product
		ok bool
	)
	r.s.read(func(st *state) {
		p, ok = st.products[id]
	})
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (r *catalogRepo) GetPrices(ctx context.Context, ids []uuid.UUID) (pricing.Prices, error) {
	if err := r.s.fault("catalog.GetPrices"); err != nil {
		return nil, err
	}
	prices := make(pricing.Prices, len(ids))
	r.s.read(func(st *state) {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				prices[id] = p.Price
			}
		}
	})
	return prices, nil
}

// SetPrice changes a product's price in place.
func (s *Store) SetPrice(id uuid.UUID, price int64) error {
	var err error
	s.write(func(st *state) {
		p, ok := st.products[id]
		if !ok {
			err = catalog.ErrProductNotFound
			return
		}
		p.Price = price
		p.UpdatedAt = now()
		st.products[id] = p
	})
	return err
}
