package cartclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrUnknownLine = errors.New("no cart line with this key")

// OptimisticCart mirrors one owner's cart and shows mutations before the
// server confirms them. A failed mutation restores the mirror exactly as it
// was. Totals in the mirror are display values only; the server prices
// every checkout.
type OptimisticCart struct {
	client *Client

	// opMu serializes mutations so a rollback never discards another
	// mutation's local change.
	opMu sync.Mutex

	mu    sync.RWMutex
	state Cart
}

func NewOptimisticCart(client *Client) *OptimisticCart {
	return &OptimisticCart{client: client}
}

// Snapshot returns a copy of the mirror, including unconfirmed changes.
func (o *OptimisticCart) Snapshot() Cart {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// Refresh replaces the mirror with the server's cart.
func (o *OptimisticCart) Refresh(ctx context.Context) (Cart, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	server, err := o.client.Get(ctx)
	if err != nil {
		return o.Snapshot(), err
	}
	o.replace(*server)
	return o.Snapshot(), nil
}

func (o *OptimisticCart) Add(ctx context.Context, item AddItem) (Cart, error) {
	if item.Quantity < 1 {
		return o.Snapshot(), fmt.Errorf("cartclient: quantity must be at least 1, got %d", item.Quantity)
	}
	return o.mutate(ctx, func(c *Cart) error {
		key := item.Key()
		for i := range c.Lines {
			if c.Lines[i].Key() == key {
				c.Lines[i].Quantity += item.Quantity
				return nil
			}
		}
		c.Lines = append(c.Lines, Line{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Color:     item.Color,
			Size:      item.Size,
		})
		return nil
	}, func(ctx context.Context) (*Cart, error) {
		return o.client.AddItem(ctx, item)
	})
}

// SetQuantity overwrites the quantity of the line with key. Zero or less
// removes it.
func (o *OptimisticCart) SetQuantity(ctx context.Context, key LineKey, quantity int) (Cart, error) {
	var line Line
	return o.mutate(ctx, func(c *Cart) error {
		i, ok := indexOf(c, key)
		if !ok {
			return ErrUnknownLine
		}
		line = c.Lines[i]
		if quantity <= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
		c.Lines[i].Quantity = quantity
		return nil
	}, func(ctx context.Context) (*Cart, error) {
		return o.client.SetQuantity(ctx, line.ID, quantity)
	})
}

func (o *OptimisticCart) Remove(ctx context.Context, key LineKey) (Cart, error) {
	var line Line
	return o.mutate(ctx, func(c *Cart) error {
		i, ok := indexOf(c, key)
		if !ok {
			return ErrUnknownLine
		}
		line = c.Lines[i]
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return nil
	}, func(ctx context.Context) (*Cart, error) {
		return o.client.RemoveItem(ctx, line.ID)
	})
}

func (o *OptimisticCart) Clear(ctx context.Context) (Cart, error) {
	return o.mutate(ctx, func(c *Cart) error {
		c.Lines = nil
		return nil
	}, o.client.Clear)
}

// mutate applies local to the mirror, then runs remote. A remote failure
// restores the mirror to the state before local ran.
func (o *OptimisticCart) mutate(ctx context.Context, local func(c *Cart) error, remote func(ctx context.Context) (*Cart, error)) (Cart, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	snapshot := o.state.clone()
	next := o.state.clone()
	if err := local(&next); err != nil {
		o.mu.Unlock()
		return snapshot, err
	}
	recomputeSubtotal(&next)
	o.state = next
	o.mu.Unlock()

	server, err := remote(ctx)
	if err != nil {
		log.Warn().Err(err).Stringer("cart_id", snapshot.ID).Msg("cartclient: mutation rejected, restoring snapshot")
		o.replace(snapshot)
		return snapshot, err
	}

	o.replace(*server)
	return o.Snapshot(), nil
}

func (o *OptimisticCart) replace(c Cart) {
	o.mu.Lock()
	o.state = c.clone()
	o.mu.Unlock()
}

func indexOf(c *Cart, key LineKey) (int, bool) {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return i, true
		}
	}
	return -1, false
}

// recomputeSubtotal refreshes line totals and the subtotal from known unit
// prices. New lines have no price until the server answers.
func recomputeSubtotal(c *Cart) {
	var subtotal int64
	for i := range c.Lines {
		c.Lines[i].LineTotal = c.Lines[i].UnitPrice * int64(c.Lines[i].Quantity)
		subtotal += c.Lines[i].LineTotal
	}
	c.Subtotal = subtotal
}
