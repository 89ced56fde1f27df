package marketplace

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Reviews records broker ratings of farmers and serves contracts.
type Reviews struct {
	store store.Store
	now   func() time.Time
}

func NewReviews(st store.Store) *Reviews {
	return &Reviews{store: st, now: time.Now}
}

const maxCommentLen = 1000

// Create lets the bid's broker rate the farmer once the bid is completed.
func (s *Reviews) Create(ctx context.Context, brokerID, bidID string, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.Validation("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return nil, domain.Validation("comment too long (max %d characters)", maxCommentLen)
	}

	var review *domain.Review
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		bid, err := tx.GetBid(ctx, bidID, false)
		if err != nil {
			return err
		}
		if bid.BrokerID != brokerID {
			return domain.Unauthorized("bid belongs to another broker")
		}
		if bid.Status != domain.BidCompleted {
			return domain.InvalidState("can only review completed bids")
		}
		listing, err := tx.GetListing(ctx, bid.ListingID, false)
		if err != nil {
			return err
		}
		review = &domain.Review{
			ID:        uuid.New().String(),
			BidID:     bid.ID,
			BrokerID:  brokerID,
			FarmerID:  listing.FarmerID,
			Rating:    rating,
			Comment:   comment,
			CreatedAt: s.now().UTC(),
		}
		return tx.CreateReview(ctx, review)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "review created", "review_id", review.ID, "bid_id", bidID, "rating", rating)
	return review, nil
}

// RatingSummary aggregates a farmer's reviews.
type RatingSummary struct {
	FarmerID      string  `json:"farmer_id"`
	FarmerName    string  `json:"farmer_name"`
	TotalReviews  int     `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
	RatingCounts  struct {
		FiveStar  int `json:"five_star"`
		FourStar  int `json:"four_star"`
		ThreeStar int `json:"three_star"`
		TwoStar   int `json:"two_star"`
		OneStar   int `json:"one_star"`
	} `json:"rating_counts"`
}

func summarize(ratings []int) RatingSummary {
	var s RatingSummary
	sum := 0
	for _, r := range ratings {
		sum += r
		switch r {
		case 5:
			s.RatingCounts.FiveStar++
		case 4:
			s.RatingCounts.FourStar++
		case 3:
			s.RatingCounts.ThreeStar++
		case 2:
			s.RatingCounts.TwoStar++
		case 1:
			s.RatingCounts.OneStar++
		}
	}
	s.TotalReviews = len(ratings)
	if len(ratings) > 0 {
		s.AverageRating = float64(sum) / float64(len(ratings))
	}
	return s
}

// ForFarmer returns the farmer's rating summary and one page of reviews.
func (s *Reviews) ForFarmer(ctx context.Context, farmerID string, page, limit int) (*RatingSummary, []domain.Review, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var summary RatingSummary
	var reviews []domain.Review
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		farmer, err := tx.GetUser(ctx, farmerID)
		if err != nil {
			return err
		}
		if farmer.Role != domain.RoleFarmer {
			return domain.NotFound("farmer not found")
		}
		ratings, err := tx.FarmerRatings(ctx, farmerID)
		if err != nil {
			return err
		}
		summary = summarize(ratings)
		summary.FarmerID = farmer.ID
		summary.FarmerName = farmer.Name
		reviews, err = tx.ListReviewsForFarmer(ctx, farmerID, limit, (page-1)*limit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &summary, reviews, nil
}

// Contract returns the contract of an accepted bid to either party.
func (s *Reviews) Contract(ctx context.Context, userID, role, bidID string) (*domain.Contract, error) {
	var c *domain.Contract
	err := s.store.InTx(ctx, func(tx store.Tx) error {
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
		c, err = tx.GetContractByBid(ctx, bidID)
		return err
	})
	return c, err
}
