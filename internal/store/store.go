// Package store persists Umoja entities. Every access goes through a
// transaction so that the bid engine and the payment adapter can rely on
// all-or-nothing writes and row locks.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
)

// Store opens transactions against the backing database.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the set of operations available inside a transaction. Methods taking
// a lock flag acquire a row lock held until the transaction ends.
type Tx interface {
	Users
	Listings
	Bids
	Routes
	Payments
	Contracts
	Reviews

	Stats(ctx context.Context) (*Stats, error)
}

type Users interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdateUser saves profile, credential and notification fields. Role and
	// created_at are not changed.
	UpdateUser(ctx context.Context, u *domain.User) error
	SetUserRole(ctx context.Context, email, role string) error
}

type ListingFilter struct {
	FarmerID      string
	Status        string
	ProduceType   string
	Location      string
	Search        string
	PriceMin      *decimal.Decimal
	PriceMax      *decimal.Decimal
	AvailableFrom *time.Time
	Limit         int
	Offset        int
}

type Listings interface {
	CreateListing(ctx context.Context, l *domain.Listing) error
	GetListing(ctx context.Context, id string, lock bool) (*domain.Listing, error)
	UpdateListing(ctx context.Context, l *domain.Listing) error
	// ListListings returns newest first.
	ListListings(ctx context.Context, f ListingFilter) ([]domain.Listing, error)
}

type BidFilter struct {
	BrokerID  string
	FarmerID  string
	ListingID string
	RouteID   string
	Statuses  []string
	// OldestFirst orders by creation time ascending, ties broken by id.
	// The default is newest first.
	OldestFirst bool
	Lock        bool
}

type Bids interface {
	CreateBid(ctx context.Context, b *domain.Bid) error
	GetBid(ctx context.Context, id string, lock bool) (*domain.Bid, error)
	UpdateBidStatus(ctx context.Context, id, status string, at time.Time) error
	ListBids(ctx context.Context, f BidFilter) ([]domain.Bid, error)
}

type RouteFilter struct {
	BrokerID string
	Status   string
	Date     *time.Time
	Search   string
}

type Routes interface {
	CreateRoute(ctx context.Context, r *domain.Route) error
	GetRoute(ctx context.Context, id string, lock bool) (*domain.Route, error)
	UpdateRoute(ctx context.Context, r *domain.Route) error
	DeleteRoute(ctx context.Context, id string) error
	ListRoutes(ctx context.Context, f RouteFilter) ([]domain.Route, error)
	// BookedCapacity sums the quantity of accepted, collected and completed
	// bids linked to the route.
	BookedCapacity(ctx context.Context, routeID string) (decimal.Decimal, error)
}

type PaymentFilter struct {
	BrokerID string
	FarmerID string
}

type Payments interface {
	// CreatePayment fails with a conflict when the bid already has an active
	// payment or the reference/transaction id is taken.
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id string, lock bool) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p *domain.Payment) error
	// PaymentsForBid returns newest first.
	PaymentsForBid(ctx context.Context, bidID string) ([]domain.Payment, error)
	PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	PaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]domain.Payment, error)
}

type Contracts interface {
	// GetOrCreateContract reports whether a new contract was created.
	GetOrCreateContract(ctx context.Context, c *domain.Contract) (*domain.Contract, bool, error)
	GetContractByBid(ctx context.Context, bidID string) (*domain.Contract, error)
}

type Reviews interface {
	CreateReview(ctx context.Context, r *domain.Review) error
	GetReviewByBid(ctx context.Context, bidID string) (*domain.Review, error)
	// ListReviewsForFarmer returns newest first.
	ListReviewsForFarmer(ctx context.Context, farmerID string, limit, offset int) ([]domain.Review, error)
	FarmerRatings(ctx context.Context, farmerID string) ([]int, error)
}

// Stats is the admin overview.
type Stats struct {
	Users            int            `json:"users"`
	Listings         int            `json:"listings"`
	Routes           int            `json:"routes"`
	BidsByStatus     map[string]int `json:"bids_by_status"`
	PaymentsByStatus map[string]int `json:"payments_by_status"`
}
