package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// tb is the part of testing.TB that *rapid.T also provides.
type tb interface {
	require.TestingT
	Helper()
}

type fixture struct {
	store    *store.Memory
	notify   *alerts.Recorder
	engine   *Engine
	listings *Listings
	routes   *Routes
	reviews  *Reviews
	farmer   *domain.User
	broker   *domain.User
}

var fixedNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t tb) *fixture {
	t.Helper()
	st := store.NewMemory()
	rec := &alerts.Recorder{}
	f := &fixture{
		store:    st,
		notify:   rec,
		engine:   NewEngine(st, rec),
		listings: NewListings(st),
		routes:   NewRoutes(st),
		reviews:  NewReviews(st),
	}
	f.farmer = f.addUser(t, domain.RoleFarmer, "wanjiku@example.com")
	f.broker = f.addUser(t, domain.RoleBroker, "otieno@example.com")
	return f
}

func (f *fixture) addUser(t tb, role, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New().String(), Name: email, Email: email, Role: role, CreatedAt: fixedNow}
	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), u)
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) listing(t tb, qty string) *domain.Listing {
	t.Helper()
	l, err := f.listings.Create(context.Background(), f.farmer.ID, ListingInput{
		ProduceType:       "maize",
		QuantityAvailable: decimal.RequireFromString(qty),
		OriginText:        "Nakuru",
		AvailableFrom:     fixedNow,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) bid(t tb, brokerID, listingID, qty, price string) *domain.Bid {
	t.Helper()
	b, err := f.engine.PlaceBid(context.Background(), brokerID, PlaceBidInput{
		ListingID:    listingID,
		Quantity:     decimal.RequireFromString(qty),
		PricePerUnit: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) getBid(t tb, id string) *domain.Bid {
	t.Helper()
	var b *domain.Bid
	err := f.store.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		b, err = tx.GetBid(context.Background(), id, false)
		return err
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) getListing(t tb, id string) *domain.Listing {
	t.Helper()
	l, err := f.listings.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func requireKind(t tb, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}
