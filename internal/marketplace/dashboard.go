package marketplace

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

const recentLimit = 5

type FarmerDashboard struct {
	ActiveListings int             `json:"active_listings"`
	IncomingBids   int             `json:"incoming_bids"`
	AcceptedBids   int             `json:"accepted_bids"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	RecentBids     []domain.Bid    `json:"recent_bids"`
}

// FarmerDashboard summarises a farmer's listings, bids and released revenue.
func (e *Engine) FarmerDashboard(ctx context.Context, farmerID string) (*FarmerDashboard, error) {
	d := FarmerDashboard{TotalRevenue: decimal.Zero, RecentBids: []domain.Bid{}}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		listings, err := tx.ListListings(ctx, store.ListingFilter{FarmerID: farmerID, Status: domain.ListingActive})
		if err != nil {
			return err
		}
		d.ActiveListings = len(listings)

		bids, err := tx.ListBids(ctx, store.BidFilter{FarmerID: farmerID})
		if err != nil {
			return err
		}
		for i, b := range bids {
			switch b.Status {
			case domain.BidPending:
				d.IncomingBids++
			case domain.BidAccepted:
				d.AcceptedBids++
			}
			if i < recentLimit {
				d.RecentBids = append(d.RecentBids, b)
			}
		}

		payments, err := tx.ListPayments(ctx, store.PaymentFilter{FarmerID: farmerID})
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == domain.PaymentReleased {
				d.TotalRevenue = d.TotalRevenue.Add(p.Amount)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type BrokerDashboard struct {
	ActiveBids      int            `json:"active_bids"`
	ActiveRoutes    int            `json:"active_routes"`
	PendingPayments int            `json:"pending_payments"`
	CurrentPickups  int            `json:"current_pickups"`
	TodayRoutes     []domain.Route `json:"today_routes"`
	RecentBids      []domain.Bid   `json:"recent_bids"`
}

// BrokerDashboard summarises a broker's open work for today.
func (e *Engine) BrokerDashboard(ctx context.Context, brokerID string) (*BrokerDashboard, error) {
	d := BrokerDashboard{TodayRoutes: []domain.Route{}, RecentBids: []domain.Bid{}}
	today := e.timestamp().Truncate(24 * time.Hour)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		bids, err := tx.ListBids(ctx, store.BidFilter{BrokerID: brokerID})
		if err != nil {
			return err
		}
		for i, b := range bids {
			switch b.Status {
			case domain.BidPending:
				d.ActiveBids++
			case domain.BidAccepted:
				d.ActiveBids++
				d.CurrentPickups++
			}
			if i < recentLimit {
				d.RecentBids = append(d.RecentBids, b)
			}
		}

		routes, err := tx.ListRoutes(ctx, store.RouteFilter{BrokerID: brokerID})
		if err != nil {
			return err
		}
		for _, r := range routes {
			if r.Status == domain.RouteActive {
				d.ActiveRoutes++
			}
			if r.Date.UTC().Format(time.DateOnly) == today.Format(time.DateOnly) && len(d.TodayRoutes) < recentLimit {
				d.TodayRoutes = append(d.TodayRoutes, r)
			}
		}

		payments, err := tx.ListPayments(ctx, store.PaymentFilter{BrokerID: brokerID})
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.Status == domain.PaymentPending || p.Status == domain.PaymentPaid {
				d.PendingPayments++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}
