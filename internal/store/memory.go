package store

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
)

// Memory is a Store kept in process memory. Transactions are serialized by a
// single mutex and run against a copy that replaces the live data only on
// success. It backs STORE=memory and the test suites.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	users     map[string]domain.User
	listings  map[string]domain.Listing
	bids      map[string]domain.Bid
	routes    map[string]domain.Route
	payments  map[string]domain.Payment
	contracts map[string]domain.Contract // keyed by bid id
	reviews   map[string]domain.Review   // keyed by bid id
}

func NewMemory() *Memory {
	return &Memory{data: &memData{
		users:     map[string]domain.User{},
		listings:  map[string]domain.Listing{},
		bids:      map[string]domain.Bid{},
		routes:    map[string]domain.Route{},
		payments:  map[string]domain.Payment{},
		contracts: map[string]domain.Contract{},
		reviews:   map[string]domain.Review{},
	}}
}

func (d *memData) clone() *memData {
	return &memData{
		users:     maps.Clone(d.users),
		listings:  maps.Clone(d.listings),
		bids:      maps.Clone(d.bids),
		routes:    maps.Clone(d.routes),
		payments:  maps.Clone(d.payments),
		contracts: maps.Clone(d.contracts),
		reviews:   maps.Clone(d.reviews),
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() {}

type memTx struct {
	d *memData
}

// ---- users ----

// Emails match case-insensitively, as the Postgres lower(email) index does.

func (t *memTx) emailTaken(email, exceptID string) bool {
	for id, existing := range t.d.users {
		if id != exceptID && strings.EqualFold(existing.Email, email) {
			return true
		}
	}
	return false
}

func (t *memTx) CreateUser(_ context.Context, u *domain.User) error {
	if t.emailTaken(u.Email, "") {
		return domain.Conflict("email already registered")
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if u.PaymentPreference == "" {
		u.PaymentPreference = domain.PreferMpesa
	}
	t.d.users[u.ID] = *u
	return nil
}

func (t *memTx) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return nil, domain.NotFound("user not found")
	}
	return &u, nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range t.d.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, domain.NotFound("user not found")
}

func (t *memTx) UpdateUser(_ context.Context, u *domain.User) error {
	existing, ok := t.d.users[u.ID]
	if !ok {
		return domain.NotFound("user not found")
	}
	if t.emailTaken(u.Email, u.ID) {
		return domain.Conflict("email already registered")
	}
	next := *u
	next.Role = existing.Role
	next.CreatedAt = existing.CreatedAt
	t.d.users[u.ID] = next
	return nil
}

func (t *memTx) SetUserRole(_ context.Context, email, role string) error {
	for id, u := range t.d.users {
		if strings.EqualFold(u.Email, email) {
			u.Role = role
			t.d.users[id] = u
			return nil
		}
	}
	return domain.NotFound("user not found")
}

// ---- listings ----

func (t *memTx) CreateListing(_ context.Context, l *domain.Listing) error {
	t.d.listings[l.ID] = *l
	return nil
}

func (t *memTx) GetListing(_ context.Context, id string, _ bool) (*domain.Listing, error) {
	l, ok := t.d.listings[id]
	if !ok {
		return nil, domain.NotFound("listing not found")
	}
	return &l, nil
}

func (t *memTx) UpdateListing(_ context.Context, l *domain.Listing) error {
	if _, ok := t.d.listings[l.ID]; !ok {
		return domain.NotFound("listing not found")
	}
	t.d.listings[l.ID] = *l
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (t *memTx) ListListings(_ context.Context, f ListingFilter) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range t.d.listings {
		if f.FarmerID != "" && l.FarmerID != f.FarmerID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.ProduceType != "" && l.ProduceType != f.ProduceType {
			continue
		}
		if f.Location != "" && !containsFold(l.OriginText, f.Location) {
			continue
		}
		if f.Search != "" && !containsFold(l.ProduceType+" "+l.OriginText+" "+l.Notes, f.Search) {
			continue
		}
		if f.PriceMin != nil && (!l.PriceExpected.Valid || l.PriceExpected.Decimal.LessThan(*f.PriceMin)) {
			continue
		}
		if f.PriceMax != nil && (!l.PriceExpected.Valid || l.PriceExpected.Decimal.GreaterThan(*f.PriceMax)) {
			continue
		}
		if f.AvailableFrom != nil && l.AvailableFrom.Before(*f.AvailableFrom) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ---- bids ----

func (t *memTx) CreateBid(_ context.Context, b *domain.Bid) error {
	t.d.bids[b.ID] = *b
	return nil
}

func (t *memTx) GetBid(_ context.Context, id string, _ bool) (*domain.Bid, error) {
	b, ok := t.d.bids[id]
	if !ok {
		return nil, domain.NotFound("bid not found")
	}
	return &b, nil
}

func (t *memTx) UpdateBidStatus(_ context.Context, id, status string, at time.Time) error {
	b, ok := t.d.bids[id]
	if !ok {
		return domain.NotFound("bid not found")
	}
	b.Status = status
	b.UpdatedAt = at
	t.d.bids[id] = b
	return nil
}

func (t *memTx) ListBids(_ context.Context, f BidFilter) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range t.d.bids {
		if f.BrokerID != "" && b.BrokerID != f.BrokerID {
			continue
		}
		if f.FarmerID != "" && t.d.listings[b.ListingID].FarmerID != f.FarmerID {
			continue
		}
		if f.ListingID != "" && b.ListingID != f.ListingID {
			continue
		}
		if f.RouteID != "" && (b.RouteID == nil || *b.RouteID != f.RouteID) {
			continue
		}
		if len(f.Statuses) > 0 && !domain.Contains(f.Statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		less := out[i].CreatedAt.Before(out[j].CreatedAt) ||
			(out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID)
		if f.OldestFirst {
			return less
		}
		return !less
	})
	return out, nil
}

// ---- routes ----

func (t *memTx) CreateRoute(_ context.Context, r *domain.Route) error {
	t.d.routes[r.ID] = *r
	return nil
}

func (t *memTx) GetRoute(_ context.Context, id string, _ bool) (*domain.Route, error) {
	r, ok := t.d.routes[id]
	if !ok {
		return nil, domain.NotFound("route not found")
	}
	return &r, nil
}

func (t *memTx) UpdateRoute(_ context.Context, r *domain.Route) error {
	if _, ok := t.d.routes[r.ID]; !ok {
		return domain.NotFound("route not found")
	}
	t.d.routes[r.ID] = *r
	return nil
}

func (t *memTx) DeleteRoute(_ context.Context, id string) error {
	if _, ok := t.d.routes[id]; !ok {
		return domain.NotFound("route not found")
	}
	delete(t.d.routes, id)
	return nil
}

func (t *memTx) ListRoutes(_ context.Context, f RouteFilter) ([]domain.Route, error) {
	var out []domain.Route
	for _, r := range t.d.routes {
		if f.BrokerID != "" && r.BrokerID != f.BrokerID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Date != nil && r.Date.Format(time.DateOnly) != f.Date.Format(time.DateOnly) {
			continue
		}
		if f.Search != "" && !containsFold(r.Name+" "+r.Origin+" "+r.Destination, f.Search) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) BookedCapacity(_ context.Context, routeID string) (decimal.Decimal, error) {
	booked := decimal.Zero
	for _, b := range t.d.bids {
		if b.RouteID == nil || *b.RouteID != routeID {
			continue
		}
		switch b.Status {
		case domain.BidAccepted, domain.BidCollected, domain.BidCompleted:
			booked = booked.Add(b.QuantityRequested)
		}
	}
	return booked, nil
}

// ---- payments ----

func (t *memTx) checkPaymentUnique(p *domain.Payment) error {
	for id, other := range t.d.payments {
		if id == p.ID {
			continue
		}
		if p.Active() && other.Active() && other.BidID == p.BidID {
			return domain.Conflict("bid already has an active payment")
		}
		if other.Reference == p.Reference {
			return domain.Conflict("duplicate payment reference")
		}
		if p.TransactionID != nil && other.TransactionID != nil && *p.TransactionID == *other.TransactionID {
			return domain.Conflict("transaction id already recorded")
		}
	}
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, p *domain.Payment) error {
	if err := t.checkPaymentUnique(p); err != nil {
		return err
	}
	t.d.payments[p.ID] = *p
	return nil
}

func (t *memTx) GetPayment(_ context.Context, id string, _ bool) (*domain.Payment, error) {
	p, ok := t.d.payments[id]
	if !ok {
		return nil, domain.NotFound("payment not found")
	}
	return &p, nil
}

func (t *memTx) UpdatePayment(_ context.Context, p *domain.Payment) error {
	if _, ok := t.d.payments[p.ID]; !ok {
		return domain.NotFound("payment not found")
	}
	if err := t.checkPaymentUnique(p); err != nil {
		return err
	}
	t.d.payments[p.ID] = *p
	return nil
}

func sortPaymentsNewest(out []domain.Payment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
}

func (t *memTx) PaymentsForBid(_ context.Context, bidID string) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range t.d.payments {
		if p.BidID == bidID {
			out = append(out, p)
		}
	}
	sortPaymentsNewest(out)
	return out, nil
}

func (t *memTx) PaymentByReference(_ context.Context, reference string) (*domain.Payment, error) {
	for _, p := range t.d.payments {
		if p.Reference == reference {
			return &p, nil
		}
	}
	return nil, domain.NotFound("payment not found")
}

func (t *memTx) PaymentByTransactionID(_ context.Context, transactionID string) (*domain.Payment, error) {
	for _, p := range t.d.payments {
		if p.TransactionID != nil && *p.TransactionID == transactionID {
			return &p, nil
		}
	}
	return nil, domain.NotFound("payment not found")
}

func (t *memTx) ListPayments(_ context.Context, f PaymentFilter) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range t.d.payments {
		b := t.d.bids[p.BidID]
		if f.BrokerID != "" && b.BrokerID != f.BrokerID {
			continue
		}
		if f.FarmerID != "" && t.d.listings[b.ListingID].FarmerID != f.FarmerID {
			continue
		}
		out = append(out, p)
	}
	sortPaymentsNewest(out)
	return out, nil
}

// ---- contracts ----

func (t *memTx) GetOrCreateContract(_ context.Context, c *domain.Contract) (*domain.Contract, bool, error) {
	if existing, ok := t.d.contracts[c.BidID]; ok {
		return &existing, false, nil
	}
	t.d.contracts[c.BidID] = *c
	out := *c
	return &out, true, nil
}

func (t *memTx) GetContractByBid(_ context.Context, bidID string) (*domain.Contract, error) {
	c, ok := t.d.contracts[bidID]
	if !ok {
		return nil, domain.NotFound("contract not found")
	}
	return &c, nil
}

// ---- reviews ----

func (t *memTx) CreateReview(_ context.Context, r *domain.Review) error {
	if _, ok := t.d.reviews[r.BidID]; ok {
		return domain.Conflict("bid already reviewed")
	}
	t.d.reviews[r.BidID] = *r
	return nil
}

func (t *memTx) GetReviewByBid(_ context.Context, bidID string) (*domain.Review, error) {
	r, ok := t.d.reviews[bidID]
	if !ok {
		return nil, domain.NotFound("review not found")
	}
	return &r, nil
}

func (t *memTx) ListReviewsForFarmer(_ context.Context, farmerID string, limit, offset int) ([]domain.Review, error) {
	var out []domain.Review
	for _, r := range t.d.reviews {
		if r.FarmerID == farmerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, offset), nil
}

func (t *memTx) FarmerRatings(_ context.Context, farmerID string) ([]int, error) {
	var out []int
	for _, r := range t.d.reviews {
		if r.FarmerID == farmerID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

// ---- stats ----

func (t *memTx) Stats(_ context.Context) (*Stats, error) {
	s := &Stats{
		Users:            len(t.d.users),
		Listings:         len(t.d.listings),
		Routes:           len(t.d.routes),
		BidsByStatus:     map[string]int{},
		PaymentsByStatus: map[string]int{},
	}
	for _, b := range t.d.bids {
		s.BidsByStatus[b.Status]++
	}
	for _, p := range t.d.payments {
		s.PaymentsByStatus[p.Status]++
	}
	return s, nil
}
