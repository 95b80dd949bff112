package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/memstore"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pricing"
	"golang.org/x/sync/errgroup"
)

var testPolicy = cart.Policy{
	TaxRate:  decimal.RequireFromString("0.1"),
	Shipping: pricing.FlatRate{Amount: 5000},
}

type fixture struct {
	store   *memstore.Store
	service cart.Service
	mug     *catalog.Product
	shirt   *catalog.Product
	owner   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()

	mug := &catalog.Product{Name: "Mug", Price: 50000}
	shirt := &catalog.Product{Name: "Shirt", Price: 150000}
	require.NoError(t, store.Catalog(nil).Save(ctx, mug))
	require.NoError(t, store.Catalog(nil).Save(ctx, shirt))

	return &fixture{
		store:   store,
		service: cart.NewService(store, store.Carts, store.Prices, testPolicy),
		mug:     mug,
		shirt:   shirt,
		owner:   uuid.Must(uuid.NewV4()),
	}
}

func TestCartService_GetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)
	second, err := f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, f.owner, first.OwnerID)
	assert.Empty(t, first.Lines)
	assert.Equal(t, int64(0), first.Totals.GrandTotal)
}

func TestCartService_AddLine_ExampleTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 2})
	require.NoError(t, err)
	c, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, c.Lines, 2)
	assert.Equal(t, int64(50000), c.Lines[0].UnitPrice)
	assert.Equal(t, int64(150000), c.Lines[1].UnitPrice)
	assert.Equal(t, int64(250000), c.Totals.Subtotal)
	assert.Equal(t, int64(25000), c.Totals.Tax)
	assert.Equal(t, int64(5000), c.Totals.Shipping)
	assert.Equal(t, int64(280000), c.Totals.GrandTotal)

	stored, err := f.store.Carts(nil).GetByOwner(ctx, f.owner)
	require.NoError(t, err)
	assert.True(t, stored.Totals.Equal(c.Totals), "cached totals must be persisted with the mutation")
}

func TestCartService_AddLine_SameKeyMerges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1, Color: "red", Size: "M"})
	require.NoError(t, err)
	c, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 2, Color: "red", Size: "M"})
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Lines[0].Quantity)

	c, err = f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1, Color: "red", Size: "L"})
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)
}

func TestCartService_AddLine_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := f.service.AddLine(gctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
			return err
		})
	}
	require.NoError(t, g.Wait())

	c, err := f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 20, c.Lines[0].Quantity)
	assert.Equal(t, 1, f.store.Counts().Carts)
}

func TestCartService_AddLine_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   cart.AddLineInput
		wantErr error
	}{
		{name: "zero_quantity", input: cart.AddLineInput{ProductID: f.mug.ID, Quantity: 0}, wantErr: cart.ErrInvalidQuantity},
		{name: "negative_quantity", input: cart.AddLineInput{ProductID: f.mug.ID, Quantity: -3}, wantErr: cart.ErrInvalidQuantity},
		{name: "above_max_quantity", input: cart.AddLineInput{ProductID: f.mug.ID, Quantity: cart.MaxQuantity + 1}, wantErr: cart.ErrInvalidQuantity},
		{name: "huge_quantity", input: cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1 << 60}, wantErr: cart.ErrInvalidQuantity},
		{name: "unknown_product", input: cart.AddLineInput{ProductID: uuid.Must(uuid.NewV4()), Quantity: 1}, wantErr: catalog.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.AddLine(ctx, f.owner, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCartService_AddLine_MergeAboveMaxIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: cart.MaxQuantity})
	require.NoError(t, err)
	before := c.Totals

	_, err = f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)

	c, err = f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, cart.MaxQuantity, c.Lines[0].Quantity)
	assert.True(t, before.Equal(c.Totals))
}

func TestCartService_SetQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 2})
	require.NoError(t, err)
	lineID := c.Lines[0].ID

	c, err = f.service.SetQuantity(ctx, f.owner, lineID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Lines[0].Quantity)
	assert.Equal(t, int64(250000), c.Totals.Subtotal)

	c, err = f.service.SetQuantity(ctx, f.owner, lineID, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Equal(t, int64(0), c.Totals.GrandTotal)

	_, err = f.service.SetQuantity(ctx, f.owner, lineID, 1)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)

	c, err = f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.service.SetQuantity(ctx, f.owner, c.Lines[0].ID, cart.MaxQuantity+1)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
}

func TestCartService_SetQuantity_OtherOwnersLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	theirs, err := f.service.AddLine(ctx, uuid.Must(uuid.NewV4()), cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.service.SetQuantity(ctx, f.owner, theirs.Lines[0].ID, 10)
	assert.ErrorIs(t, err, cart.ErrLineNotFound)
}

func TestCartService_RemoveLine_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.NoError(t, err)
	lineID := c.Lines[0].ID

	for i := 0; i < 2; i++ {
		c, err = f.service.RemoveLine(ctx, f.owner, lineID)
		require.NoError(t, err)
		assert.Empty(t, c.Lines)
	}
}

func TestCartService_Clear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1})
	require.NoError(t, err)

	c, err := f.service.Clear(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.Equal(t, int64(0), c.Totals.GrandTotal)
	assert.Equal(t, 0, f.store.Counts().Lines)
}

func TestCartService_RepricesOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, f.store.SetPrice(f.mug.ID, 60000))

	c, err := f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), c.Totals.Subtotal)

	stored, err := f.store.Carts(nil).GetByOwner(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), stored.Totals.Subtotal, "drifted cache must be refreshed")
}

func TestCartService_FailedMutationLeavesCartUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.mug.ID, Quantity: 1})
	require.NoError(t, err)

	dbDown := errors.New("connection reset")
	f.store.FailOn("cart.UpdateTotals", dbDown)

	_, err = f.service.AddLine(ctx, f.owner, cart.AddLineInput{ProductID: f.shirt.ID, Quantity: 1})
	require.ErrorIs(t, err, dbDown)

	c, err := f.service.GetOrCreate(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, f.mug.ID, c.Lines[0].ProductID)
}
