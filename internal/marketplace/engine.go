package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/metrics"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Engine owns every bid lifecycle transition and the listing inventory they
// debit. Each operation runs in one store transaction; notifications go out
// only after commit.
type Engine struct {
	store  store.Store
	notify alerts.Notifier
	now    func() time.Time
}

func NewEngine(st store.Store, notify alerts.Notifier) *Engine {
	if notify == nil {
		notify = alerts.LogNotifier{}
	}
	return &Engine{store: st, notify: notify, now: time.Now}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

// twoPlaces reports whether d has at most two fractional digits, the
// precision of every NUMERIC column.
func twoPlaces(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

type PlaceBidInput struct {
	ListingID    string
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	RouteID      string
	Notes        string
}

// =========================
// PlaceBid - broker offers to buy part of a listing
// =========================
func (e *Engine) PlaceBid(ctx context.Context, brokerID string, in PlaceBidInput) (*domain.Bid, error) {
	if !in.Quantity.IsPositive() {
		return nil, domain.Validation("quantity must be greater than zero")
	}
	if !in.PricePerUnit.IsPositive() {
		return nil, domain.Validation("price per unit must be greater than zero")
	}
	if !twoPlaces(in.Quantity) || !twoPlaces(in.PricePerUnit) {
		return nil, domain.Validation("quantity and price support at most two decimal places")
	}

	var bid *domain.Bid
	var listing *domain.Listing
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		listing, err = tx.GetListing(ctx, in.ListingID, false)
		if err != nil {
			return err
		}
		if listing.Status != domain.ListingActive {
			return domain.InvalidState("listing is %s", listing.Status)
		}
		if listing.FarmerID == brokerID {
			return domain.Validation("you cannot bid on your own listing")
		}
		if !in.Quantity.LessThan(listing.QuantityAvailable) {
			return domain.Validation("quantity must be less than the available %s %s",
				listing.QuantityAvailable.String(), listing.Unit)
		}
		if listing.PriceExpected.Valid && in.PricePerUnit.LessThan(listing.PriceExpected.Decimal) {
			return domain.Validation("price must be at least the expected %s per %s",
				listing.PriceExpected.Decimal.StringFixed(2), listing.Unit)
		}

		now := e.timestamp()
		bid = &domain.Bid{
			ID:                uuid.New().String(),
			BrokerID:          brokerID,
			ListingID:         listing.ID,
			QuantityRequested: in.Quantity,
			PricePerUnit:      in.PricePerUnit,
			TotalPrice:        in.Quantity.Mul(in.PricePerUnit).Round(2),
			Status:            domain.BidPending,
			Notes:             strings.TrimSpace(in.Notes),
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		// A route only links when the broker owns it.
		if in.RouteID != "" {
			route, err := tx.GetRoute(ctx, in.RouteID, false)
			switch {
			case err == nil && route.BrokerID == brokerID:
				bid.RouteID = &route.ID
			case err != nil && domain.KindOf(err) != domain.KindNotFound:
				return err
			default:
				slog.InfoContext(ctx, "route not linked to bid", "route_id", in.RouteID, "broker_id", brokerID)
			}
		}

		return tx.CreateBid(ctx, bid)
	})
	if err != nil {
		return nil, err
	}

	metrics.BidTransitions.WithLabelValues(domain.BidPending).Inc()
	slog.InfoContext(ctx, "bid placed", "bid_id", bid.ID, "listing_id", bid.ListingID, "broker_id", brokerID,
		"quantity", bid.QuantityRequested.String(), "total", bid.TotalPrice.String())
	e.notify.Notify(ctx, bidEvent(alerts.TaskBidPlaced, listing.FarmerID, bid, listing, ""))
	return bid, nil
}

// AcceptResult is everything an acceptance changed.
type AcceptResult struct {
	Bid      domain.Bid      `json:"bid"`
	Listing  domain.Listing  `json:"listing"`
	Contract domain.Contract `json:"contract"`
	Rejected []domain.Bid    `json:"rejected_bids"`
}

// =========================
// AcceptBid - farmer accepts, inventory is debited and bids that no
// longer fit are rejected in the same transaction
// =========================
func (e *Engine) AcceptBid(ctx context.Context, farmerID, bidID string) (*AcceptResult, error) {
	var res AcceptResult
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		peek, err := tx.GetBid(ctx, bidID, false)
		if err != nil {
			return err
		}
		// Listing before bid, the lock order every writer follows.
		listing, err := tx.GetListing(ctx, peek.ListingID, true)
		if err != nil {
			return err
		}
		bid, err := tx.GetBid(ctx, bidID, true)
		if err != nil {
			return err
		}

		if listing.FarmerID != farmerID {
			return domain.Unauthorized("only the listing's farmer can accept this bid")
		}
		if bid.Status != domain.BidPending {
			return domain.InvalidState("bid is %s, not pending", bid.Status)
		}
		if bid.QuantityRequested.GreaterThan(listing.QuantityAvailable) {
			return domain.InsufficientInventory("bid wants %s but only %s %s remain",
				bid.QuantityRequested.String(), listing.QuantityAvailable.String(), listing.Unit)
		}

		now := e.timestamp()
		if err := tx.UpdateBidStatus(ctx, bid.ID, domain.BidAccepted, now); err != nil {
			return err
		}
		bid.Status = domain.BidAccepted
		bid.UpdatedAt = now

		remaining := listing.QuantityAvailable.Sub(bid.QuantityRequested)
		if !remaining.IsPositive() {
			remaining = decimal.Zero
			listing.Status = domain.ListingSold
		}
		listing.QuantityAvailable = remaining
		listing.UpdatedAt = now
		if err := tx.UpdateListing(ctx, listing); err != nil {
			return err
		}

		contract, _, err := tx.GetOrCreateContract(ctx, &domain.Contract{
			ID:        uuid.New().String(),
			BidID:     bid.ID,
			Terms:     contractTerms(bid, listing),
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		siblings, err := tx.ListBids(ctx, store.BidFilter{
			ListingID:   listing.ID,
			Statuses:    []string{domain.BidPending},
			OldestFirst: true,
			Lock:        true,
		})
		if err != nil {
			return err
		}
		res.Rejected = nil
		for _, s := range siblings {
			if s.ID == bid.ID || !s.QuantityRequested.GreaterThan(remaining) {
				continue
			}
			if err := tx.UpdateBidStatus(ctx, s.ID, domain.BidRejected, now); err != nil {
				return err
			}
			s.Status = domain.BidRejected
			s.UpdatedAt = now
			res.Rejected = append(res.Rejected, s)
		}

		res.Bid = *bid
		res.Listing = *listing
		res.Contract = *contract
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BidTransitions.WithLabelValues(domain.BidAccepted).Inc()
	metrics.BidTransitions.WithLabelValues(domain.BidRejected).Add(float64(len(res.Rejected)))
	metrics.CascadeRejections.Add(float64(len(res.Rejected)))
	slog.InfoContext(ctx, "bid accepted", "bid_id", res.Bid.ID, "listing_id", res.Listing.ID,
		"remaining", res.Listing.QuantityAvailable.String(), "cascade_rejected", len(res.Rejected))

	e.notify.Notify(ctx, bidEvent(alerts.TaskBidAccepted, res.Bid.BrokerID, &res.Bid, &res.Listing, ""))
	for i := range res.Rejected {
		r := &res.Rejected[i]
		e.notify.Notify(ctx, bidEvent(alerts.TaskBidRejected, r.BrokerID, r, &res.Listing, "insufficient remaining quantity"))
	}
	return &res, nil
}

func contractTerms(b *domain.Bid, l *domain.Listing) string {
	return fmt.Sprintf("Supply of %s %s of %s (%s) at KES %s per %s, total KES %s.",
		b.QuantityRequested.String(), l.Unit, l.ProduceType, l.Quality,
		b.PricePerUnit.StringFixed(2), l.Unit, b.TotalPrice.StringFixed(2))
}

// =========================
// RejectBid - farmer declines a pending bid
// =========================
func (e *Engine) RejectBid(ctx context.Context, farmerID, bidID string) (*domain.Bid, error) {
	var listing *domain.Listing
	bid, err := e.transition(ctx, bidID, domain.BidPending, domain.BidRejected, func(tx store.Tx, b *domain.Bid) error {
		var err error
		listing, err = tx.GetListing(ctx, b.ListingID, false)
		if err != nil {
			return err
		}
		if listing.FarmerID != farmerID {
			return domain.Unauthorized("only the listing's farmer can reject this bid")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify.Notify(ctx, bidEvent(alerts.TaskBidRejected, bid.BrokerID, bid, listing, "declined by farmer"))
	return bid, nil
}

// CancelBid withdraws a pending bid.
func (e *Engine) CancelBid(ctx context.Context, brokerID, bidID string) (*domain.Bid, error) {
	return e.transition(ctx, bidID, domain.BidPending, domain.BidCancelled, ownedBy(brokerID))
}

// MarkCollected records pickup and releases a paid payment to the farmer.
func (e *Engine) MarkCollected(ctx context.Context, brokerID, bidID string) (*domain.Bid, error) {
	var released *domain.Payment
	var farmerID string
	bid, err := e.transition(ctx, bidID, domain.BidAccepted, domain.BidCollected, func(tx store.Tx, b *domain.Bid) error {
		if err := ownedBy(brokerID)(tx, b); err != nil {
			return err
		}
		payments, err := tx.PaymentsForBid(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status != domain.PaymentPaid {
				continue
			}
			locked, err := tx.GetPayment(ctx, p.ID, true)
			if err != nil {
				return err
			}
			if locked.Status != domain.PaymentPaid {
				continue
			}
			locked.Status = domain.PaymentReleased
			locked.UpdatedAt = e.timestamp()
			if err := tx.UpdatePayment(ctx, locked); err != nil {
				return err
			}
			released = locked
			listing, err := tx.GetListing(ctx, b.ListingID, false)
			if err != nil {
				return err
			}
			farmerID = listing.FarmerID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released != nil {
		metrics.PaymentTransitions.WithLabelValues(domain.PaymentReleased).Inc()
		slog.InfoContext(ctx, "payment released", "payment_id", released.ID, "bid_id", bid.ID)
		e.notify.Notify(ctx, alerts.Event{
			Type:        alerts.TaskPaymentReleased,
			RecipientID: farmerID,
			BidID:       bid.ID,
			PaymentID:   released.ID,
			Amount:      released.Amount.StringFixed(2),
			OccurredAt:  released.UpdatedAt,
		})
	}
	return bid, nil
}

// MarkCompleted closes a collected bid.
func (e *Engine) MarkCompleted(ctx context.Context, brokerID, bidID string) (*domain.Bid, error) {
	return e.transition(ctx, bidID, domain.BidCollected, domain.BidCompleted, ownedBy(brokerID))
}

func ownedBy(brokerID string) func(store.Tx, *domain.Bid) error {
	return func(_ store.Tx, b *domain.Bid) error {
		if b.BrokerID != brokerID {
			return domain.Unauthorized("bid belongs to another broker")
		}
		return nil
	}
}

// transition moves a locked bid from one status to another after check
// approves the actor.
func (e *Engine) transition(ctx context.Context, bidID, from, to string, check func(store.Tx, *domain.Bid) error) (*domain.Bid, error) {
	var bid *domain.Bid
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		bid, err = tx.GetBid(ctx, bidID, true)
		if err != nil {
			return err
		}
		if err := check(tx, bid); err != nil {
			return err
		}
		if bid.Status != from {
			return domain.InvalidState("bid is %s, expected %s", bid.Status, from)
		}
		now := e.timestamp()
		if err := tx.UpdateBidStatus(ctx, bid.ID, to, now); err != nil {
			return err
		}
		bid.Status = to
		bid.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.BidTransitions.WithLabelValues(to).Inc()
	slog.InfoContext(ctx, "bid transitioned", "bid_id", bid.ID, "from", from, "to", to)
	return bid, nil
}

func bidEvent(kind, recipient string, b *domain.Bid, l *domain.Listing, reason string) alerts.Event {
	ev := alerts.Event{
		Type:        kind,
		RecipientID: recipient,
		BidID:       b.ID,
		ListingID:   b.ListingID,
		Quantity:    b.QuantityRequested.String(),
		Amount:      b.TotalPrice.StringFixed(2),
		Reason:      reason,
		OccurredAt:  b.UpdatedAt,
	}
	if l != nil {
		ev.ProduceType = l.ProduceType
		ev.Quantity += " " + l.Unit
	}
	return ev
}
