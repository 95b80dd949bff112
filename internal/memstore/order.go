package memstore

import (
	"context"
	"sort"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/order"
)

type orderRepo struct {
	s *Store
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	if err := r.s.fault("order.Create"); err != nil {
		return err
	}
	if o.ID == uuid.Nil {
		o.ID = newID()
	}
	ts := now()
	o.CreatedAt = ts
	o.UpdatedAt = ts
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.StatusPending
	}

	row := *o
	row.Items = nil
	r.s.write(func(st *state) {
		st.orders[o.ID] = row
	})
	return nil
}

func (st *state) order(id uuid.UUID, withItems bool) *order.Order {
	o, ok := st.orders[id]
	if !ok {
		return nil
	}
	if withItems {
		o.Items = append(make([]order.OrderItem, 0, len(st.items[id])), st.items[id]...)
	}
	return &o
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if err := r.s.fault("order.GetByID"); err != nil {
		return nil, err
	}
	var found *order.Order
	r.s.read(func(st *state) {
		found = st.order(id, true)
	})
	if found == nil {
		return nil, order.ErrOrderNotFound
	}
	return found, nil
}

func (r *orderRepo) LockByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if err := r.s.fault("order.LockByID"); err != nil {
		return nil, err
	}
	var found *order.Order
	r.s.read(func(st *state) {
		found = st.order(id, false)
	})
	if found == nil {
		return nil, order.ErrOrderNotFound
	}
	return found, nil
}

func (r *orderRepo) LockByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	if err := r.s.fault("order.LockByGatewayOrderID"); err != nil {
		return nil, err
	}
	var found *order.Order
	r.s.read(func(st *state) {
		if intent, ok := st.intents[gatewayOrderID]; ok {
			found = st.order(intent.OrderID, false)
		}
	})
	if found == nil {
		return nil, order.ErrOrderNotFound
	}
	return found, nil
}

func (r *orderRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	if err := r.s.fault("order.ListByOwner"); err != nil {
		return nil, err
	}
	orders := make([]order.Order, 0)
	r.s.read(func(st *state) {
		for id, o := range st.orders {
			if o.OwnerID == ownerID {
				orders = append(orders, *st.order(id, true))
			}
		}
	})
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID.String() < orders[j].ID.String()
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepo) GetIntent(ctx context.Context, gatewayOrderID string) (*order.PaymentIntent, error) {
	if err := r.s.fault("order.GetIntent"); err != nil {
		return nil, err
	}
	var (
		pi order.PaymentIntent
		ok bool
	)
	r.s.read(func(st *state) {
		pi, ok = st.intents[gatewayOrderID]
	})
	if !ok {
		return nil, order.ErrIntentNotFound
	}
	return &pi, nil
}

func (r *orderRepo) CreateIntent(ctx context.Context, intent *order.PaymentIntent) error {
	if err := r.s.fault("order.CreateIntent"); err != nil {
		return err
	}
	intent.CreatedAt = now()

	var err error
	r.s.write(func(st *state) {
		if _, exists := st.intents[intent.GatewayOrderID]; exists {
			err = order.ErrDuplicateGatewayOrder
			return
		}
		o, ok := st.orders[intent.OrderID]
		if !ok {
			err = order.ErrOrderNotFound
			return
		}
		st.intents[intent.GatewayOrderID] = *intent
		gid := intent.GatewayOrderID
		o.GatewayOrderID = &gid
		o.UpdatedAt = intent.CreatedAt
		st.orders[o.ID] = o
	})
	return err
}

func (r *orderRepo) MarkPaid(ctx context.Context, orderID uuid.UUID, p order.Payment) error {
	if err := r.s.fault("order.MarkPaid"); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		o, ok := st.orders[orderID]
		if !ok || o.IsPaid {
			err = order.ErrOrderNotFound
			return
		}
		for id, other := range st.orders {
			if id != orderID && other.GatewayOrderID != nil && *other.GatewayOrderID == p.GatewayOrderID {
				err = order.ErrDuplicateGatewayOrder
				return
			}
		}
		gid, pid, amount, paidAt := p.GatewayOrderID, p.PaymentID, p.Amount, p.PaidAt
		o.GatewayOrderID = &gid
		o.GatewayPaymentID = &pid
		o.AmountPaid = &amount
		o.PaymentStatus = order.StatusCompleted
		o.IsPaid = true
		o.PaidAt = &paidAt
		o.UpdatedAt = paidAt
		st.orders[orderID] = o
	})
	return err
}

func (r *orderRepo) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	if err := r.s.fault("order.MarkFailed"); err != nil {
		return err
	}
	var err error
	r.s.write(func(st *state) {
		o, ok := st.orders[orderID]
		if !ok || o.IsPaid {
			err = order.ErrOrderNotFound
			return
		}
		o.PaymentStatus = order.StatusFailed
		o.UpdatedAt = now()
		st.orders[orderID] = o
	})
	return err
}

func (r *orderRepo) InsertItems(ctx context.Context, orderID uuid.UUID, items []order.OrderItem) error {
	if err := r.s.fault("order.InsertItems"); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	ts := now()
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = newID()
		}
		items[i].OrderID = orderID
		items[i].CreatedAt = ts
	}

	var err error
	r.s.write(func(st *state) {
		if _, ok := st.orders[orderID]; !ok {
			err = order.ErrOrderNotFound
			return
		}
		for _, item := range items {
			if _, ok := st.products[item.ProductID]; !ok {
				err = catalog.ErrProductNotFound
				return
			}
		}
		st.items[orderID] = append(st.items[orderID], items...)
	})
	return err
}
