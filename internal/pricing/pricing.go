// Package pricing derives cart totals from cart lines and current product
// prices. All amounts are minor currency units.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProduct  = errors.New("no price for product")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrInvalidAmount   = errors.New("unit price must not be negative")
	ErrOverflow        = errors.New("cart total overflows")
)

type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Prices maps a product to its current unit price.
type Prices map[uuid.UUID]int64

type Totals struct {
	Subtotal   int64           `json:"subtotal"`
	Shipping   int64           `json:"shipping"`
	Tax        int64           `json:"tax"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	GrandTotal int64           `json:"grand_total"`
}

type ShippingPolicy interface {
	ShippingFor(subtotal int64) int64
}

// FlatRate charges Amount per shipment. An empty cart ships nothing, and a
// positive FreeOver waives shipping for subtotals at or above it.
type FlatRate struct {
	Amount   int64
	FreeOver int64
}

func (f FlatRate) ShippingFor(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	if f.FreeOver > 0 && subtotal >= f.FreeOver {
		return 0
	}
	return f.Amount
}

// Price computes totals for lines. Tax is rounded half-up to the minor unit,
// once, on the aggregate subtotal.
func Price(lines []Line, prices Prices, taxRate decimal.Decimal, shipping ShippingPolicy) (Totals, error) {
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: product %s has quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		price, ok := prices[line.ProductID]
		if !ok {
			return Totals{}, fmt.Errorf("%w %s", ErrUnknownProduct, line.ProductID)
		}
		if price < 0 {
			return Totals{}, fmt.Errorf("%w: product %s has price %d", ErrInvalidAmount, line.ProductID, price)
		}
		if price > 0 && int64(line.Quantity) > (math.MaxInt64-subtotal)/price {
			return Totals{}, fmt.Errorf("%w: product %s quantity %d at %d", ErrOverflow, line.ProductID, line.Quantity, price)
		}
		subtotal += int64(line.Quantity) * price
	}

	tax := Tax(subtotal, taxRate)
	ship := shipping.ShippingFor(subtotal)
	if tax < 0 || ship < 0 || tax > math.MaxInt64-subtotal || ship > math.MaxInt64-subtotal-tax {
		return Totals{}, fmt.Errorf("%w: subtotal %d tax %d shipping %d", ErrOverflow, subtotal, tax, ship)
	}

	return Totals{
		Subtotal:   subtotal,
		Shipping:   ship,
		Tax:        tax,
		TaxRate:    taxRate,
		GrandTotal: subtotal + tax + ship,
	}, nil
}

// Tax returns subtotal × rate rounded half-up to a whole minor unit. A
// result outside the int64 range is reported as -1.
func Tax(subtotal int64, rate decimal.Decimal) int64 {
	tax := decimal.NewFromInt(subtotal).Mul(rate).Round(0)
	if tax.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || tax.IsNegative() {
		return -1
	}
	return tax.IntPart()
}

// RateToBasisPoints converts a fractional rate such as 0.18 to 1800.
func RateToBasisPoints(rate decimal.Decimal) int32 {
	return int32(rate.Shift(4).Round(0).IntPart())
}

func RateFromBasisPoints(bps int32) decimal.Decimal {
	return decimal.New(int64(bps), -4)
}

func (t Totals) Equal(o Totals) bool {
	return t.Subtotal == o.Subtotal &&
		t.Shipping == o.Shipping &&
		t.Tax == o.Tax &&
		t.GrandTotal == o.GrandTotal &&
		t.TaxRate.Equal(o.TaxRate)
}
