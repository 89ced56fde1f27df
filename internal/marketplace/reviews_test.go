package marketplace

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// completedBid walks a new bid through accept, collect and complete.
func completedBid(t *testing.T, f *fixture, listingID string) *domain.Bid {
	t.Helper()
	ctx := context.Background()
	b := f.bid(t, f.broker.ID, listingID, "10", "40")
	_, err := f.engine.AcceptBid(ctx, f.farmer.ID, b.ID)
	require.NoError(t, err)
	_, err = f.engine.MarkCollected(ctx, f.broker.ID, b.ID)
	require.NoError(t, err)
	b, err = f.engine.MarkCompleted(ctx, f.broker.ID, b.ID)
	require.NoError(t, err)
	return b
}

func TestReviews_CreateOnlyForCompletedBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "100")

	open := f.bid(t, f.broker.ID, l.ID, "10", "40")
	_, err := f.reviews.Create(ctx, f.broker.ID, open.ID, 5, "")
	requireKind(t, err, domain.KindInvalidState)

	done := completedBid(t, f, l.ID)

	_, err = f.reviews.Create(ctx, f.broker.ID, done.ID, 6, "")
	requireKind(t, err, domain.KindValidation)
	_, err = f.reviews.Create(ctx, f.broker.ID, done.ID, 4, strings.Repeat("ü", 1001))
	requireKind(t, err, domain.KindValidation)

	other := f.addUser(t, domain.RoleBroker, "kamau@example.com")
	_, err = f.reviews.Create(ctx, other.ID, done.ID, 4, "")
	requireKind(t, err, domain.KindUnauthorized)

	review, err := f.reviews.Create(ctx, f.broker.ID, done.ID, 4, "  Clean, dry maize  ")
	require.NoError(t, err)
	assert.Equal(t, f.farmer.ID, review.FarmerID)
	assert.Equal(t, "Clean, dry maize", review.Comment)

	_, err = f.reviews.Create(ctx, f.broker.ID, done.ID, 5, "")
	requireKind(t, err, domain.KindConflict)
}

func TestReviews_ForFarmerSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "1000")

	for _, rating := range []int{5, 4, 4} {
		b := completedBid(t, f, l.ID)
		_, err := f.reviews.Create(ctx, f.broker.ID, b.ID, rating, "")
		require.NoError(t, err)
	}

	summary, reviews, err := f.reviews.ForFarmer(ctx, f.farmer.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalReviews)
	assert.InDelta(t, 4.333, summary.AverageRating, 0.001)
	assert.Equal(t, 1, summary.RatingCounts.FiveStar)
	assert.Equal(t, 2, summary.RatingCounts.FourStar)
	assert.Len(t, reviews, 2)

	_, _, err = f.reviews.ForFarmer(ctx, f.broker.ID, 1, 10)
	requireKind(t, err, domain.KindNotFound)
}

func TestReviews_ContractVisibleToPartiesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "100")
	b := f.bid(t, f.broker.ID, l.ID, "10", "40")

	_, err := f.reviews.Contract(ctx, f.broker.ID, domain.RoleBroker, b.ID)
	requireKind(t, err, domain.KindNotFound)

	res, err := f.engine.AcceptBid(ctx, f.farmer.ID, b.ID)
	require.NoError(t, err)

	c, err := f.reviews.Contract(ctx, f.farmer.ID, domain.RoleFarmer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Contract.ID, c.ID)
	assert.Contains(t, c.Terms, "KES 400.00")

	stranger := f.addUser(t, domain.RoleBroker, "stranger@example.com")
	_, err = f.reviews.Contract(ctx, stranger.ID, domain.RoleBroker, b.ID)
	requireKind(t, err, domain.KindUnauthorized)

	_, err = f.reviews.Contract(ctx, stranger.ID, domain.RoleAdmin, b.ID)
	require.NoError(t, err)
}

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, "100")

	a := f.bid(t, f.broker.ID, l.ID, "20", "50")
	f.bid(t, f.broker.ID, l.ID, "10", "50")
	_, err := f.engine.AcceptBid(ctx, f.farmer.ID, a.ID)
	require.NoError(t, err)

	err = f.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreatePayment(ctx, &domain.Payment{
			ID: uuid.New().String(), BidID: a.ID, Amount: a.TotalPrice, Method: domain.MethodMpesa,
			Currency: domain.CurrencyKES, Status: domain.PaymentPaid, Reference: "BID_" + a.ID + "_1",
			CreatedAt: fixedNow, UpdatedAt: fixedNow,
		})
	})
	require.NoError(t, err)

	broker, err := f.engine.BrokerDashboard(ctx, f.broker.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, broker.ActiveBids)
	assert.Equal(t, 1, broker.CurrentPickups)
	assert.Equal(t, 1, broker.PendingPayments)

	_, err = f.engine.MarkCollected(ctx, f.broker.ID, a.ID)
	require.NoError(t, err)

	farmer, err := f.engine.FarmerDashboard(ctx, f.farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, farmer.ActiveListings)
	assert.Equal(t, 1, farmer.IncomingBids)
	assert.Equal(t, "1000.00", farmer.TotalRevenue.StringFixed(2))
	assert.Len(t, farmer.RecentBids, 2)
}
