package pricing_test

import (
	"math"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
)

func TestPrice_ExampleCart(t *testing.T) {
	p1 := uuid.Must(uuid.NewV4())
	p2 := uuid.Must(uuid.NewV4())

	lines := []pricing.Line{
		{ProductID: p1, Quantity: 2},
		{ProductID: p2, Quantity: 1},
	}
	prices := pricing.Prices{p1: 50000, p2: 150000}

	totals, err := pricing.Price(lines, prices, decimal.RequireFromString("0.1"), pricing.FlatRate{Amount: 5000})
	require.NoError(t, err)

	assert.Equal(t, int64(250000), totals.Subtotal)
	assert.Equal(t, int64(25000), totals.Tax)
	assert.Equal(t, int64(5000), totals.Shipping)
	assert.Equal(t, int64(280000), totals.GrandTotal)
	assert.True(t, totals.TaxRate.Equal(decimal.RequireFromString("0.1")))
}

func TestPrice_DeterministicAndOrderIndependent(t *testing.T) {
	ids := make([]uuid.UUID, 5)
	prices := pricing.Prices{}
	for i := range ids {
		ids[i] = uuid.Must(uuid.NewV4())
		prices[ids[i]] = int64(1999 + i*733)
	}

	lines := []pricing.Line{
		{ProductID: ids[0], Quantity: 3},
		{ProductID: ids[1], Quantity: 1},
		{ProductID: ids[2], Quantity: 7},
		{ProductID: ids[3], Quantity: 2},
		{ProductID: ids[4], Quantity: 5},
	}
	rate := decimal.RequireFromString("0.0725")
	policy := pricing.FlatRate{Amount: 4900}

	first, err := pricing.Price(lines, prices, rate, policy)
	require.NoError(t, err)
	second, err := pricing.Price(lines, prices, rate, policy)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(first, second))

	reversed := make([]pricing.Line, len(lines))
	for i, l := range lines {
		reversed[len(lines)-1-i] = l
	}
	permuted, err := pricing.Price(reversed, prices, rate, policy)
	require.NoError(t, err)
	assert.Equal(t, first.GrandTotal, permuted.GrandTotal)
	assert.Equal(t, first.Tax, permuted.Tax)
}

func TestPrice_TaxRoundsOnceHalfUp(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())
	prices := pricing.Prices{a: 5, b: 5}
	rate := decimal.RequireFromString("0.1")

	// 0.5 per line would round to 1 each (2 total); the aggregate 10 × 0.1 is exactly 1.
	totals, err := pricing.Price([]pricing.Line{{ProductID: a, Quantity: 1}, {ProductID: b, Quantity: 1}}, prices, rate, pricing.FlatRate{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Tax)

	assert.Equal(t, int64(1), pricing.Tax(5, rate), "0.5 rounds up")
	assert.Equal(t, int64(0), pricing.Tax(4, rate))
}

func TestPrice_EmptyCartHasNoShipping(t *testing.T) {
	totals, err := pricing.Price(nil, pricing.Prices{}, decimal.RequireFromString("0.18"), pricing.FlatRate{Amount: 5000})
	require.NoError(t, err)
	assert.Zero(t, totals.Subtotal)
	assert.Zero(t, totals.Shipping)
	assert.Zero(t, totals.GrandTotal)
}

func TestPrice_Errors(t *testing.T) {
	known := uuid.Must(uuid.NewV4())
	unknown := uuid.Must(uuid.NewV4())
	prices := pricing.Prices{known: 100}

	_, err := pricing.Price([]pricing.Line{{ProductID: unknown, Quantity: 1}}, prices, decimal.Zero, pricing.FlatRate{})
	require.ErrorIs(t, err, pricing.ErrUnknownProduct)

	_, err = pricing.Price([]pricing.Line{{ProductID: known, Quantity: 0}}, prices, decimal.Zero, pricing.FlatRate{})
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)

	_, err = pricing.Price([]pricing.Line{{ProductID: unknown, Quantity: 1}}, pricing.Prices{unknown: -1}, decimal.Zero, pricing.FlatRate{})
	require.ErrorIs(t, err, pricing.ErrInvalidAmount)
}

func TestPrice_RejectsOverflow(t *testing.T) {
	p1 := uuid.Must(uuid.NewV4())
	p2 := uuid.Must(uuid.NewV4())
	rate := decimal.RequireFromString("0.10")

	tests := []struct {
		name   string
		lines  []pricing.Line
		prices pricing.Prices
	}{
		{
			name:   "line_product",
			lines:  []pricing.Line{{ProductID: p1, Quantity: 1 << 60}},
			prices: pricing.Prices{p1: 50000},
		},
		{
			name:   "running_subtotal",
			lines:  []pricing.Line{{ProductID: p1, Quantity: 1}, {ProductID: p2, Quantity: 2}},
			prices: pricing.Prices{p1: math.MaxInt64 / 2, p2: math.MaxInt64 / 2},
		},
		{
			name:   "tax_and_shipping",
			lines:  []pricing.Line{{ProductID: p1, Quantity: 1}},
			prices: pricing.Prices{p1: math.MaxInt64 - 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := pricing.Price(tt.lines, tt.prices, rate, pricing.FlatRate{Amount: 5000})
			require.ErrorIs(t, err, pricing.ErrOverflow)
			assert.Equal(t, pricing.Totals{}, totals)
		})
	}
}

func TestFlatRate_ShippingFor(t *testing.T) {
	tests := []struct {
		name     string
		policy   pricing.FlatRate
		subtotal int64
		want     int64
	}{
		{name: "empty_cart", policy: pricing.FlatRate{Amount: 5000}, subtotal: 0, want: 0},
		{name: "flat", policy: pricing.FlatRate{Amount: 5000}, subtotal: 100, want: 5000},
		{name: "below_threshold", policy: pricing.FlatRate{Amount: 5000, FreeOver: 100000}, subtotal: 99999, want: 5000},
		{name: "at_threshold", policy: pricing.FlatRate{Amount: 5000, FreeOver: 100000}, subtotal: 100000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShippingFor(tt.subtotal))
		})
	}
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, int32(1800), pricing.RateToBasisPoints(decimal.RequireFromString("0.18")))
	assert.True(t, pricing.RateFromBasisPoints(725).Equal(decimal.RequireFromString("0.0725")))
}
