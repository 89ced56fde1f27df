package marketplace

import (
	"context"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// BidDetail is a bid with the listing it targets.
type BidDetail struct {
	Bid     domain.Bid     `json:"bid"`
	Listing domain.Listing `json:"listing"`
}

// GetBid returns a bid to its broker, the listing's farmer, or an admin.
func (e *Engine) GetBid(ctx context.Context, userID, role, bidID string) (*BidDetail, error) {
	var out BidDetail
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		bid, err := tx.GetBid(ctx, bidID, false)
		if err != nil {
			return err
		}
		listing, err := tx.GetListing(ctx, bid.ListingID, false)
		if err != nil {
			return err
		}
		if role != domain.RoleAdmin && bid.BrokerID != userID && listing.FarmerID != userID {
			return domain.Unauthorized("not a party to this bid")
		}
		out = BidDetail{Bid: *bid, Listing: *listing}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BrokerBids lists a broker's bids, newest first, with per-status counts
// over all of them regardless of the filter.
func (e *Engine) BrokerBids(ctx context.Context, brokerID, status string) ([]domain.Bid, map[string]int, error) {
	var all []domain.Bid
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		all, err = tx.ListBids(ctx, store.BidFilter{BrokerID: brokerID})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	counts := map[string]int{}
	filtered := make([]domain.Bid, 0, len(all))
	for _, b := range all {
		counts[b.Status]++
		if status == "" || b.Status == status {
			filtered = append(filtered, b)
		}
	}
	return filtered, counts, nil
}

// ListingInbox groups the bids on one listing.
type ListingInbox struct {
	Listing domain.Listing `json:"listing"`
	Bids    []domain.Bid   `json:"bids"`
}

// FarmerInbox returns bids on the farmer's listings grouped by listing, in
// the listing order of the farmer's own listing view.
func (e *Engine) FarmerInbox(ctx context.Context, farmerID, status string) ([]ListingInbox, error) {
	var out []ListingInbox
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		listings, err := tx.ListListings(ctx, store.ListingFilter{FarmerID: farmerID})
		if err != nil {
			return err
		}
		f := store.BidFilter{FarmerID: farmerID}
		if status != "" {
			f.Statuses = []string{status}
		}
		bids, err := tx.ListBids(ctx, f)
		if err != nil {
			return err
		}

		byListing := map[string][]domain.Bid{}
		for _, b := range bids {
			byListing[b.ListingID] = append(byListing[b.ListingID], b)
		}
		for _, l := range listings {
			if group := byListing[l.ID]; len(group) > 0 {
				out = append(out, ListingInbox{Listing: l, Bids: group})
			}
		}
		return nil
	})
	return out, err
}

// ListingBids returns every bid on a listing to its farmer.
func (e *Engine) ListingBids(ctx context.Context, farmerID, listingID string) (*ListingInbox, error) {
	var out ListingInbox
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListing(ctx, listingID, false)
		if err != nil {
			return err
		}
		if listing.FarmerID != farmerID {
			return domain.Unauthorized("listing belongs to another farmer")
		}
		bids, err := tx.ListBids(ctx, store.BidFilter{ListingID: listingID})
		if err != nil {
			return err
		}
		out = ListingInbox{Listing: *listing, Bids: bids}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
