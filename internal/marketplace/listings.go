package marketplace

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Listings manages farmer produce listings.
type Listings struct {
	store store.Store
	now   func() time.Time
}

func NewListings(st store.Store) *Listings {
	return &Listings{store: st, now: time.Now}
}

type ListingInput struct {
	ProduceType       string
	QuantityAvailable decimal.Decimal
	Unit              string
	Quality           string
	PriceExpected     *decimal.Decimal
	OriginText        string
	AvailableFrom     time.Time
	Notes             string
}

func (in *ListingInput) normalize() error {
	in.ProduceType = strings.ToLower(strings.TrimSpace(in.ProduceType))
	in.Unit = strings.ToLower(strings.TrimSpace(in.Unit))
	in.Quality = strings.ToLower(strings.TrimSpace(in.Quality))
	in.OriginText = strings.TrimSpace(in.OriginText)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Unit == "" {
		in.Unit = "kg"
	}
	if in.Quality == "" {
		in.Quality = "standard"
	}

	switch {
	case !domain.Contains(domain.ProduceKinds, in.ProduceType):
		return domain.Validation("produce_type must be one of %s", strings.Join(domain.ProduceKinds, ", "))
	case !domain.Contains(domain.Units, in.Unit):
		return domain.Validation("unit must be one of %s", strings.Join(domain.Units, ", "))
	case !domain.Contains(domain.Qualities, in.Quality):
		return domain.Validation("quality must be one of %s", strings.Join(domain.Qualities, ", "))
	case !in.QuantityAvailable.IsPositive():
		return domain.Validation("quantity_available must be greater than zero")
	case !twoPlaces(in.QuantityAvailable):
		return domain.Validation("quantity_available supports at most two decimal places")
	case in.PriceExpected != nil && (!in.PriceExpected.IsPositive() || !twoPlaces(*in.PriceExpected)):
		return domain.Validation("price_expected must be a positive amount")
	case in.AvailableFrom.IsZero():
		return domain.Validation("available_from is required")
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// Create publishes a new active listing.
func (s *Listings) Create(ctx context.Context, farmerID string, in ListingInput) (*domain.Listing, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	l := &domain.Listing{
		ID:                uuid.New().String(),
		FarmerID:          farmerID,
		ProduceType:       in.ProduceType,
		QuantityAvailable: in.QuantityAvailable,
		Unit:              in.Unit,
		Quality:           in.Quality,
		PriceExpected:     nullDecimal(in.PriceExpected),
		OriginText:        in.OriginText,
		AvailableFrom:     in.AvailableFrom,
		Notes:             in.Notes,
		Status:            domain.ListingActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateListing(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "listing created", "listing_id", l.ID, "farmer_id", farmerID, "produce", l.ProduceType)
	return l, nil
}

// ListingPatch holds the editable fields; nil leaves a field unchanged.
type ListingPatch struct {
	QuantityAvailable *decimal.Decimal
	Quality           *string
	PriceExpected     *decimal.Decimal
	ClearPrice        bool
	OriginText        *string
	AvailableFrom     *time.Time
	Notes             *string
	Status            *string
}

// Update edits a listing owned by the farmer. Quantity may go to zero but
// not below; status may only be set to active or expired.
func (s *Listings) Update(ctx context.Context, farmerID, listingID string, p ListingPatch) (*domain.Listing, error) {
	var out *domain.Listing
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		l, err := tx.GetListing(ctx, listingID, true)
		if err != nil {
			return err
		}
		if l.FarmerID != farmerID {
			return domain.Unauthorized("listing belongs to another farmer")
		}

		if p.QuantityAvailable != nil {
			if p.QuantityAvailable.IsNegative() || !twoPlaces(*p.QuantityAvailable) {
				return domain.Validation("quantity_available must be zero or more with at most two decimal places")
			}
			l.QuantityAvailable = *p.QuantityAvailable
		}
		if p.Quality != nil {
			q := strings.ToLower(strings.TrimSpace(*p.Quality))
			if !domain.Contains(domain.Qualities, q) {
				return domain.Validation("quality must be one of %s", strings.Join(domain.Qualities, ", "))
			}
			l.Quality = q
		}
		switch {
		case p.ClearPrice:
			l.PriceExpected = decimal.NullDecimal{}
		case p.PriceExpected != nil:
			if !p.PriceExpected.IsPositive() || !twoPlaces(*p.PriceExpected) {
				return domain.Validation("price_expected must be a positive amount")
			}
			l.PriceExpected = decimal.NewNullDecimal(*p.PriceExpected)
		}
		if p.OriginText != nil {
			l.OriginText = strings.TrimSpace(*p.OriginText)
		}
		if p.AvailableFrom != nil {
			l.AvailableFrom = *p.AvailableFrom
		}
		if p.Notes != nil {
			l.Notes = strings.TrimSpace(*p.Notes)
		}
		if p.Status != nil {
			switch *p.Status {
			case domain.ListingActive, domain.ListingExpired:
				l.Status = *p.Status
			default:
				return domain.Validation("status must be active or expired")
			}
		}
		if l.Status == domain.ListingActive && l.QuantityAvailable.IsZero() {
			l.Status = domain.ListingSold
		}

		l.UpdatedAt = s.now().UTC()
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "listing updated", "listing_id", out.ID, "status", out.Status)
	return out, nil
}

// Get returns any listing by id.
func (s *Listings) Get(ctx context.Context, listingID string) (*domain.Listing, error) {
	var l *domain.Listing
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.GetListing(ctx, listingID, false)
		return err
	})
	return l, err
}

// Browse lists active listings for brokers.
func (s *Listings) Browse(ctx context.Context, f store.ListingFilter) ([]domain.Listing, error) {
	f.Status = domain.ListingActive
	f.FarmerID = ""
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var out []domain.Listing
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListListings(ctx, f)
		return err
	})
	return out, err
}

// Mine lists all of a farmer's listings in any status.
func (s *Listings) Mine(ctx context.Context, farmerID, status string) ([]domain.Listing, error) {
	var out []domain.Listing
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListListings(ctx, store.ListingFilter{FarmerID: farmerID, Status: status})
		return err
	})
	return out, err
}
