package marketplace

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

func TestListings_CreateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.listings.Create(ctx, f.farmer.ID, ListingInput{
		ProduceType:       " Maize ",
		QuantityAvailable: decimal.NewFromInt(250),
		AvailableFrom:     fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, "maize", l.ProduceType)
	assert.Equal(t, "kg", l.Unit)
	assert.Equal(t, "standard", l.Quality)
	assert.Equal(t, domain.ListingActive, l.Status)
	assert.False(t, l.PriceExpected.Valid)

	bad := []ListingInput{
		{ProduceType: "durian", QuantityAvailable: decimal.NewFromInt(1), AvailableFrom: fixedNow},
		{ProduceType: "maize", QuantityAvailable: decimal.Zero, AvailableFrom: fixedNow},
		{ProduceType: "maize", QuantityAvailable: decimal.NewFromInt(1), Unit: "crate", AvailableFrom: fixedNow},
		{ProduceType: "maize", QuantityAvailable: decimal.NewFromInt(1)},
		{ProduceType: "maize", QuantityAvailable: decimal.RequireFromString("1.001"), AvailableFrom: fixedNow},
	}
	for _, in := range bad {
		_, err := f.listings.Create(ctx, f.farmer.ID, in)
		requireKind(t, err, domain.KindValidation)
	}
}

func TestListings_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "100")

	_, err := f.listings.Update(ctx, f.broker.ID, l.ID, ListingPatch{})
	requireKind(t, err, domain.KindUnauthorized)

	price := decimal.NewFromInt(42)
	got, err := f.listings.Update(ctx, f.farmer.ID, l.ID, ListingPatch{PriceExpected: &price})
	require.NoError(t, err)
	assert.True(t, got.PriceExpected.Valid)
	assert.True(t, got.PriceExpected.Decimal.Equal(price))

	got, err = f.listings.Update(ctx, f.farmer.ID, l.ID, ListingPatch{ClearPrice: true})
	require.NoError(t, err)
	assert.False(t, got.PriceExpected.Valid)

	sold := domain.ListingSold
	_, err = f.listings.Update(ctx, f.farmer.ID, l.ID, ListingPatch{Status: &sold})
	requireKind(t, err, domain.KindValidation)

	negative := decimal.NewFromInt(-1)
	_, err = f.listings.Update(ctx, f.farmer.ID, l.ID, ListingPatch{QuantityAvailable: &negative})
	requireKind(t, err, domain.KindValidation)

	zero := decimal.Zero
	got, err = f.listings.Update(ctx, f.farmer.ID, l.ID, ListingPatch{QuantityAvailable: &zero})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingSold, got.Status)
}

func TestListings_BrowseOnlyActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.listing(t, "100")
	expired := f.listing(t, "100")
	status := domain.ListingExpired
	_, err := f.listings.Update(ctx, f.farmer.ID, expired.ID, ListingPatch{Status: &status})
	require.NoError(t, err)

	got, err := f.listings.Browse(ctx, store.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	got, err = f.listings.Browse(ctx, store.ListingFilter{Location: "nakuru", ProduceType: "beans"})
	require.NoError(t, err)
	assert.Empty(t, got)

	mine, err := f.listings.Mine(ctx, f.farmer.ID, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
