package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

// Product is the slice of the catalog the checkout pipeline needs. Price is
// in minor currency units.
type Product struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Price     int64     `json:"price" db:"price"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
