package marketplace

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

func newRoute(t *testing.T, f *fixture, capacity int) *domain.Route {
	t.Helper()
	r, err := f.routes.Create(context.Background(), f.broker.ID, RouteInput{
		Name:        "Rift Valley run",
		Origin:      "Nakuru",
		Destination: "Nairobi",
		Date:        fixedNow,
		Capacity:    capacity,
		PricePerKg:  decimal.RequireFromString("3.50"),
	})
	require.NoError(t, err)
	return r
}

func TestRoutes_CapacityTracksAcceptedBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := newRoute(t, f, 100)
	l := f.listing(t, "500")

	pending, err := f.engine.PlaceBid(ctx, f.broker.ID, PlaceBidInput{
		ListingID: l.ID, Quantity: decimal.NewFromInt(30), PricePerUnit: decimal.NewFromInt(40), RouteID: r.ID,
	})
	require.NoError(t, err)
	accepted, err := f.engine.PlaceBid(ctx, f.broker.ID, PlaceBidInput{
		ListingID: l.ID, Quantity: decimal.NewFromInt(60), PricePerUnit: decimal.NewFromInt(40), RouteID: r.ID,
	})
	require.NoError(t, err)
	_, err = f.engine.AcceptBid(ctx, f.farmer.ID, accepted.ID)
	require.NoError(t, err)

	detail, err := f.routes.Detail(ctx, f.broker.ID, r.ID)
	require.NoError(t, err)
	assert.True(t, detail.Booked.Equal(decimal.NewFromInt(60)))
	assert.True(t, detail.Available.Equal(decimal.NewFromInt(40)))
	assert.Len(t, detail.Bids, 2)

	fifty := 50
	_, err = f.routes.Update(ctx, f.broker.ID, r.ID, RoutePatch{Capacity: &fifty})
	requireKind(t, err, domain.KindValidation)

	sixty := 60
	view, err := f.routes.Update(ctx, f.broker.ID, r.ID, RoutePatch{Capacity: &sixty})
	require.NoError(t, err)
	assert.True(t, view.Available.IsZero())

	err = f.routes.Delete(ctx, f.broker.ID, r.ID)
	requireKind(t, err, domain.KindInvalidState)

	_, err = f.engine.CancelBid(ctx, f.broker.ID, pending.ID)
	require.NoError(t, err)
}

func TestRoutes_OwnershipAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.addUser(t, domain.RoleBroker, "kamau@example.com")
	r := newRoute(t, f, 100)

	_, err := f.routes.Detail(ctx, other.ID, r.ID)
	requireKind(t, err, domain.KindUnauthorized)
	err = f.routes.Delete(ctx, other.ID, r.ID)
	requireKind(t, err, domain.KindUnauthorized)

	bogus := "parked"
	_, err = f.routes.Update(ctx, f.broker.ID, r.ID, RoutePatch{Status: &bogus})
	requireKind(t, err, domain.KindValidation)

	require.NoError(t, f.routes.Delete(ctx, f.broker.ID, r.ID))
	_, err = f.routes.Detail(ctx, f.broker.ID, r.ID)
	requireKind(t, err, domain.KindNotFound)
}

func TestRoutes_CreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.routes.Create(context.Background(), f.broker.ID, RouteInput{
		Name: "x", Origin: "Nakuru", Destination: "Nairobi", Date: fixedNow, Capacity: 0,
	})
	requireKind(t, err, domain.KindValidation)
}

func TestWriteCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newRoute(t, f, 100)

	views, err := f.routes.List(ctx, f.broker.ID, store.RouteFilter{Search: "rift"})
	require.NoError(t, err)
	require.Len(t, views, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, views))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Price/kg", rows[0][7])
	assert.Equal(t, []string{"Rift Valley run", "Nakuru", "Nairobi", "2024-05-01", "100", "100", "3.50", "active"}, rows[1][1:])
}
