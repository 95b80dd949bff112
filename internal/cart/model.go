package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

// Line is one distinct (product, color, size) selection. Empty Color or Size
// means the option was not chosen.
type Line struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CartID    uuid.UUID `json:"cart_id" db:"cart_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Color     string    `json:"color,omitempty" db:"color"`
	Size      string    `json:"size,omitempty" db:"size"`
	UnitPrice int64     `json:"unit_price" db:"-"` // current catalog price, filled on reprice
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Cart struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	OwnerID   uuid.UUID      `json:"owner_id" db:"owner_id"`
	Lines     []Line         `json:"lines" db:"-"`
	Totals    pricing.Totals `json:"totals" db:"-"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

func (c *Cart) Line(id uuid.UUID) (Line, bool) {
	for _, l := range c.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

func (c *Cart) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(c.Lines))
	ids := make([]uuid.UUID, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (c *Cart) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = pricing.Line{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return lines
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

type AddLineInput struct {
	ProductID uuid.UUID
	Quantity  int
	Color     string
	Size      string
}
