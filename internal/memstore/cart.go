package memstore

import (
	"context"
	"sort"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

type cartRepo struct {
	s *Store
}

func (r *cartRepo) EnsureForOwner(ctx context.Context, ownerID uuid.UUID) error {
	if err := r.s.fault("cart.EnsureForOwner"); err != nil {
		return err
	}
	r.s.write(func(st *state) {
		if _, ok := st.owners[ownerID]; ok {
			return
		}
		ts := now()
		c := cart.Cart{ID: newID(), OwnerID: ownerID, CreatedAt: ts, UpdatedAt: ts}
		st.carts[c.ID] = c
		st.owners[ownerID] = c.ID
	})
	return nil
}

func (r *cartRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	if err := r.s.fault("cart.GetByOwner"); err != nil {
		return nil, err
	}
	var found *cart.Cart
	r.s.read(func(st *state) {
		if id, ok := st.owners[ownerID]; ok {
			found = st.cart(id)
		}
	})
	if found == nil {
		return nil, cart.ErrCartNotFound
	}
	return found, nil
}

func (r *cartRepo) LockByOwner(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	return r.GetByOwner(ctx, ownerID)
}

func (r *cartRepo) GetByID(ctx context.Context, id uuid.UUID) (*cart.Cart, error) {
	if err := r.s.fault("cart.GetByID"); err != nil {
		return nil, err
	}
	var found *cart.Cart
	r.s.read(func(st *state) {
		found = st.cart(id)
	})
	if found == nil {
		return nil, cart.ErrCartNotFound
	}
	return found, nil
}

func (r *cartRepo) LockByID(ctx context.Context, id uuid.UUID) (*cart.Cart, error) {
	return r.GetByID(ctx, id)
}

// cart assembles a copy of the cart with its lines in insertion order.
func (st *state) cart(id uuid.UUID) *cart.Cart {
	c, ok := st.carts[id]
	if !ok {
		return nil
	}

	rows := make([]lineRow, 0)
	for _, row := range st.lines {
		if row.line.CartID == id {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	c.Lines = make([]cart.Line, len(rows))
	for i, row := range rows {
		c.Lines[i] = row.line
	}
	return &c
}

func (r *cartRepo) UpsertLine(ctx context.Context, cartID uuid.UUID, in cart.AddLineInput) (*cart.Line, error) {
	if err := r.s.fault("cart.UpsertLine"); err != nil {
		return nil, err
	}
	var (
		result cart.Line
		err    error
	)
	r.s.write(func(st *state) {
		if _, ok := st.carts[cartID]; !ok {
			err = cart.ErrCartNotFound
			return
		}
		if _, ok := st.products[in.ProductID]; !ok {
			err = catalog.ErrProductNotFound
			return
		}
		ts := now()
		for id, row := range st.lines {
			l := row.line
			if l.CartID == cartID && l.ProductID == in.ProductID && l.Color == in.Color && l.Size == in.Size {
				row.line.Quantity += in.Quantity
				row.line.UpdatedAt = ts
				st.lines[id] = row
				result = row.line
				return
			}
		}
		st.seq++
		l := cart.Line{
			ID:        newID(),
			CartID:    cartID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Color:     in.Color,
			Size:      in.Size,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		st.lines[l.ID] = lineRow{line: l, seq: st.seq}
		result = l
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *cartRepo) SetLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) error {
	if err := r.s.fault("cart.SetLineQuantity"); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		row, ok := st.lines[lineID]
		if !ok || row.line.CartID != cartID {
			err = cart.ErrLineNotFound
			return
		}
		row.line.Quantity = quantity
		row.line.UpdatedAt = now()
		st.lines[lineID] = row
	})
	return err
}

func (r *cartRepo) DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	if err := r.s.fault("cart.DeleteLine"); err != nil {
		return err
	}
	r.s.write(func(st *state) {
		if row, ok := st.lines[lineID]; ok && row.line.CartID == cartID {
			delete(st.lines, lineID)
		}
	})
	return nil
}

func (r *cartRepo) DeleteLines(ctx context.Context, cartID uuid.UUID) error {
	if err := r.s.fault("cart.DeleteLines"); err != nil {
		return err
	}
	r.s.write(func(st *state) {
		st.deleteLines(cartID)
	})
	return nil
}

func (st *state) deleteLines(cartID uuid.UUID) {
	for id, row := range st.lines {
		if row.line.CartID == cartID {
			delete(st.lines, id)
		}
	}
}

func (r *cartRepo) UpdateTotals(ctx context.Context, cartID uuid.UUID, totals pricing.Totals) error {
	if err := r.s.fault("cart.UpdateTotals"); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		c, ok := st.carts[cartID]
		if !ok {
			err = cart.ErrCartNotFound
			return
		}
		c.Totals = totals
		c.UpdatedAt = now()
		st.carts[cartID] = c
	})
	return err
}

func (r *cartRepo) Delete(ctx context.Context, cartID uuid.UUID) error {
	if err := r.s.fault("cart.Delete"); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		c, ok := st.carts[cartID]
		if !ok {
			err = cart.ErrCartNotFound
			return
		}
		st.deleteLines(cartID)
		delete(st.carts, cartID)
		delete(st.owners, c.OwnerID)
	})
	return err
}
