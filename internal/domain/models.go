package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles carried in the JWT and stored on users.
const (
	RoleFarmer = "farmer"
	RoleBroker = "broker"
	RoleAdmin  = "admin"
)

// Listing statuses
const (
	ListingActive  = "active"
	ListingSold    = "sold"
	ListingExpired = "expired"
)

// Bid statuses
const (
	BidPending   = "pending"
	BidAccepted  = "accepted"
	BidRejected  = "rejected"
	BidCancelled = "cancelled"
	BidCollected = "collected"
	BidCompleted = "completed"
)

// Route statuses
const (
	RouteActive    = "active"
	RouteCompleted = "completed"
	RouteCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentReleased = "released"
	PaymentRefunded = "refunded"
	PaymentFailed   = "failed"
)

// Payment methods
const (
	MethodMpesa  = "mpesa"
	MethodManual = "manual"
)

const CurrencyKES = "KES"

var (
	ProduceKinds = []string{"maize", "beans", "tomatoes", "potatoes", "cabbage", "onions", "carrots", "wheat", "rice", "other"}
	Units        = []string{"kg", "ton", "bag"}
	Qualities    = []string{"premium", "standard", "organic", "grade_a", "grade_b"}
)

// Payment preferences a user can record on their profile.
const (
	PreferMpesa = "mpesa"
	PreferBank  = "bank"
)

var PaymentPreferences = []string{PreferMpesa, PreferBank}

// User is a farmer, broker or admin account together with its profile.
// Farm fields are only meaningful for farmers.
type User struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Email              string              `json:"email"`
	PasswordHash       string              `json:"-"`
	Role               string              `json:"role"`
	Phone              string              `json:"phone,omitempty"`
	Location           string              `json:"location,omitempty"`
	IDNumber           string              `json:"id_number,omitempty"`
	FarmName           string              `json:"farm_name,omitempty"`
	FarmSize           decimal.NullDecimal `json:"farm_size"`
	BankName           string              `json:"bank_name,omitempty"`
	AccountNumber      string              `json:"account_number,omitempty"`
	MpesaNumber        string              `json:"mpesa_number,omitempty"`
	PaymentPreference  string              `json:"payment_preference"`
	EmailNotifications bool                `json:"email_notifications"`
	SMSNotifications   bool                `json:"sms_notifications"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Listing is a farmer's produce offer.
type Listing struct {
	ID                string              `json:"id"`
	FarmerID          string              `json:"farmer_id"`
	ProduceType       string              `json:"produce_type"`
	QuantityAvailable decimal.Decimal     `json:"quantity_available"`
	Unit              string              `json:"unit"`
	Quality           string              `json:"quality"`
	PriceExpected     decimal.NullDecimal `json:"price_expected"`
	OriginText        string              `json:"origin_text"`
	AvailableFrom     time.Time           `json:"available_from"`
	Notes             string              `json:"notes,omitempty"`
	Status            string              `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Bid is a broker's offer against a listing. Total is fixed at creation.
type Bid struct {
	ID                string          `json:"id"`
	BrokerID          string          `json:"broker_id"`
	ListingID         string          `json:"listing_id"`
	RouteID           *string         `json:"route_id,omitempty"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	PricePerUnit      decimal.Decimal `json:"price_per_unit"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Status            string          `json:"status"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Terminal reports whether no further transition is possible.
func (b *Bid) Terminal() bool {
	switch b.Status {
	case BidRejected, BidCancelled, BidCompleted:
		return true
	}
	return false
}

// Route is a broker's collection run.
type Route struct {
	ID          string          `json:"id"`
	BrokerID    string          `json:"broker_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Date        time.Time       `json:"date"`
	Capacity    int             `json:"capacity"`
	PricePerKg  decimal.Decimal `json:"price_per_kg"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Payment is a charge attempt for an accepted bid.
type Payment struct {
	ID            string          `json:"id"`
	BidID         string          `json:"bid_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Active reports whether the payment blocks a new initiation for its bid.
func (p *Payment) Active() bool {
	switch p.Status {
	case PaymentPending, PaymentPaid, PaymentReleased:
		return true
	}
	return false
}

// Contract records an accepted bid.
type Contract struct {
	ID        string    `json:"id"`
	BidID     string    `json:"bid_id"`
	Terms     string    `json:"terms,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is a broker's rating of a completed bid.
type Review struct {
	ID        string    `json:"id"`
	BidID     string    `json:"bid_id"`
	BrokerID  string    `json:"broker_id"`
	FarmerID  string    `json:"farmer_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether v is one of the allowed values.
func Contains(allowed []string, v string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
