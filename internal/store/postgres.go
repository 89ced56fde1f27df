package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
)

// Postgres is the production Store.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InTx uses READ COMMITTED. Every read-modify-write in the engine locks its
// rows with FOR UPDATE first, so the stronger levels would only add
// serialization failures.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Close() { s.pool.Close() }

type pgTx struct {
	tx pgx.Tx
}

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr, true
	}
	return nil, false
}

// isInvalidText reports a value Postgres could not parse into the column
// type, such as an id that is not a UUID.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// notFound maps a missing row, or an id that cannot name any row, to a
// domain NotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return domain.NotFound("%s not found", what)
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}

func lockClause(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

// where accumulates numbered predicates. An id predicate with a value that
// is not a UUID makes the whole filter empty.
type where struct {
	conds []string
	args  []any
	empty bool
}

func (w *where) add(format string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *where) addID(format, id string) {
	if !isUUID(id) {
		w.empty = true
		return
	}
	w.add(format, id)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// ---- users ----

const userCols = `id, name, email, password_hash, role, phone, location, id_number, farm_name,
    farm_size, bank_name, account_number, mpesa_number, payment_preference,
    email_notifications, sms_notifications, created_at, updated_at`

func (t *pgTx) CreateUser(ctx context.Context, u *domain.User) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if u.PaymentPreference == "" {
		u.PaymentPreference = domain.PreferMpesa
	}
	_, err := t.tx.Exec(ctx, `
        INSERT INTO users (`+userCols+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Phone, u.Location, u.IDNumber, u.FarmName,
		u.FarmSize, u.BankName, u.AccountNumber, u.MpesaNumber, u.PaymentPreference,
		u.EmailNotifications, u.SMSNotifications, u.CreatedAt, u.UpdatedAt)
	if _, dup := isUniqueViolation(err); dup {
		return domain.Conflict("email already registered")
	}
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Location,
		&u.IDNumber, &u.FarmName, &u.FarmSize, &u.BankName, &u.AccountNumber, &u.MpesaNumber,
		&u.PaymentPreference, &u.EmailNotifications, &u.SMSNotifications, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (t *pgTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !isUUID(id) {
		return nil, domain.NotFound("user not found")
	}
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (t *pgTx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (t *pgTx) UpdateUser(ctx context.Context, u *domain.User) error {
	if !isUUID(u.ID) {
		return domain.NotFound("user not found")
	}
	tag, err := t.tx.Exec(ctx, `
        UPDATE users SET name = $2, email = $3, password_hash = $4, phone = $5, location = $6,
            id_number = $7, farm_name = $8, farm_size = $9, bank_name = $10, account_number = $11,
            mpesa_number = $12, payment_preference = $13, email_notifications = $14,
            sms_notifications = $15, updated_at = $16
        WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.Location, u.IDNumber, u.FarmName,
		u.FarmSize, u.BankName, u.AccountNumber, u.MpesaNumber, u.PaymentPreference,
		u.EmailNotifications, u.SMSNotifications, u.UpdatedAt)
	if _, dup := isUniqueViolation(err); dup {
		return domain.Conflict("email already registered")
	}
	if err != nil {
		return notFound(err, "user")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("user not found")
	}
	return nil
}

func (t *pgTx) SetUserRole(ctx context.Context, email, role string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET role = $1 WHERE lower(email) = lower($2)`, role, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("user not found")
	}
	return nil
}

// ---- listings ----

const listingCols = `id, farmer_id, produce_type, quantity_available, unit, quality, price_expected,
    origin_text, available_from, notes, status, created_at, updated_at`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(&l.ID, &l.FarmerID, &l.ProduceType, &l.QuantityAvailable, &l.Unit, &l.Quality,
		&l.PriceExpected, &l.OriginText, &l.AvailableFrom, &l.Notes, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (t *pgTx) CreateListing(ctx context.Context, l *domain.Listing) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO listings (`+listingCols+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.FarmerID, l.ProduceType, l.QuantityAvailable, l.Unit, l.Quality, l.PriceExpected,
		l.OriginText, l.AvailableFrom, l.Notes, l.Status, l.CreatedAt, l.UpdatedAt)
	return err
}

func (t *pgTx) GetListing(ctx context.Context, id string, lock bool) (*domain.Listing, error) {
	if !isUUID(id) {
		return nil, domain.NotFound("listing not found")
	}
	l, err := scanListing(t.tx.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, notFound(err, "listing")
	}
	return l, nil
}

func (t *pgTx) UpdateListing(ctx context.Context, l *domain.Listing) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE listings SET produce_type = $2, quantity_available = $3, unit = $4, quality = $5,
            price_expected = $6, origin_text = $7, available_from = $8, notes = $9, status = $10,
            updated_at = $11
        WHERE id = $1`,
		l.ID, l.ProduceType, l.QuantityAvailable, l.Unit, l.Quality, l.PriceExpected, l.OriginText,
		l.AvailableFrom, l.Notes, l.Status, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("listing not found")
	}
	return nil
}

func (t *pgTx) ListListings(ctx context.Context, f ListingFilter) ([]domain.Listing, error) {
	var w where
	if f.FarmerID != "" {
		w.addID("farmer_id = $%d", f.FarmerID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.ProduceType != "" {
		w.add("produce_type = $%d", f.ProduceType)
	}
	if f.Location != "" {
		w.add("origin_text ILIKE '%%' || $%d || '%%'", f.Location)
	}
	if f.Search != "" {
		w.add("(produce_type || ' ' || origin_text || ' ' || notes) ILIKE '%%' || $%d || '%%'", f.Search)
	}
	if f.PriceMin != nil {
		w.add("price_expected >= $%d", *f.PriceMin)
	}
	if f.PriceMax != nil {
		w.add("price_expected <= $%d", *f.PriceMax)
	}
	if f.AvailableFrom != nil {
		w.add("available_from >= $%d", *f.AvailableFrom)
	}

	if w.empty {
		return nil, nil
	}
	q := `SELECT ` + listingCols + ` FROM listings` + w.String() + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := t.tx.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ---- bids ----

const bidCols = `b.id, b.broker_id, b.listing_id, b.route_id, b.quantity_requested, b.price_per_unit,
    b.total_price, b.status, b.notes, b.created_at, b.updated_at`

func scanBid(row pgx.Row) (*domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(&b.ID, &b.BrokerID, &b.ListingID, &b.RouteID, &b.QuantityRequested, &b.PricePerUnit,
		&b.TotalPrice, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (t *pgTx) CreateBid(ctx context.Context, b *domain.Bid) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO bids (id, broker_id, listing_id, route_id, quantity_requested, price_per_unit,
            total_price, status, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.BrokerID, b.ListingID, b.RouteID, b.QuantityRequested, b.PricePerUnit,
		b.TotalPrice, b.Status, b.Notes, b.CreatedAt, b.UpdatedAt)
	return err
}

func (t *pgTx) GetBid(ctx context.Context, id string, lock bool) (*domain.Bid, error) {
	if !isUUID(id) {
		return nil, domain.NotFound("bid not found")
	}
	b, err := scanBid(t.tx.QueryRow(ctx, `SELECT `+bidCols+` FROM bids b WHERE b.id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, notFound(err, "bid")
	}
	return b, nil
}

func (t *pgTx) UpdateBidStatus(ctx context.Context, id, status string, at time.Time) error {
	if !isUUID(id) {
		return domain.NotFound("bid not found")
	}
	tag, err := t.tx.Exec(ctx, `UPDATE bids SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("bid not found")
	}
	return nil
}

func (t *pgTx) ListBids(ctx context.Context, f BidFilter) ([]domain.Bid, error) {
	var w where
	if f.BrokerID != "" {
		w.addID("b.broker_id = $%d", f.BrokerID)
	}
	if f.FarmerID != "" {
		w.addID("l.farmer_id = $%d", f.FarmerID)
	}
	if f.ListingID != "" {
		w.addID("b.listing_id = $%d", f.ListingID)
	}
	if f.RouteID != "" {
		w.addID("b.route_id = $%d", f.RouteID)
	}
	if len(f.Statuses) > 0 {
		w.add("b.status = ANY($%d)", f.Statuses)
	}

	if w.empty {
		return nil, nil
	}
	order := " ORDER BY b.created_at DESC, b.id DESC"
	if f.OldestFirst {
		order = " ORDER BY b.created_at ASC, b.id ASC"
	}
	q := `SELECT ` + bidCols + ` FROM bids b JOIN listings l ON l.id = b.listing_id` + w.String() + order
	if f.Lock {
		q += " FOR UPDATE OF b"
	}

	rows, err := t.tx.Query(ctx, q, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ---- routes ----

const routeCols = `id, broker_id, name, description, origin, destination, route_date, capacity,
    price_per_kg, status, created_at, updated_at`

func scanRoute(row pgx.Row) (*domain.Route, error) {
	var r domain.Route
	err := row.Scan(&r.ID, &r.BrokerID, &r.Name, &r.Description, &r.Origin, &r.Destination, &r.Date,
		&r.Capacity, &r.PricePerKg, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (t *pgTx) CreateRoute(ctx context.Context, r *domain.Route) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO routes (`+routeCols+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.BrokerID, r.Name, r.Description, r.Origin, r.Destination, r.Date, r.Capacity,
		r.PricePerKg, r.Status, r.CreatedAt, r.UpdatedAt)
	return err
}

func (t *pgTx) GetRoute(ctx context.Context, id string, lock bool) (*domain.Route, error) {
	if !isUUID(id) {
		return nil, domain.NotFound("route not found")
	}
	r, err := scanRoute(t.tx.QueryRow(ctx, `SELECT `+routeCols+` FROM routes WHERE id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, notFound(err, "route")
	}
	return r, nil
}

func (t *pgTx) UpdateRoute(ctx context.Context, r *domain.Route) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE routes SET name = $2, description = $3, origin = $4, destination = $5, route_date = $6,
            capacity = $7, price_per_kg = $8, status = $9, updated_at = $10
        WHERE id = $1`,
		r.ID, r.Name, r.Description, r.Origin, r.Destination, r.Date, r.Capacity, r.PricePerKg,
		r.Status, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("route not found")
	}
	return nil
}

func (t *pgTx) DeleteRoute(ctx context.Context, id string) error {
	if !isUUID(id) {
		return domain.NotFound("route not found")
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("route not found")
	}
	return nil
}

func (t *pgTx) ListRoutes(ctx context.Context, f RouteFilter) ([]domain.Route, error) {
	var w where
	if f.BrokerID != "" {
		w.addID("broker_id = $%d", f.BrokerID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.Date != nil {
		w.add("route_date::date = $%d::date", *f.Date)
	}
	if f.Search != "" {
		w.add("(name || ' ' || origin || ' ' || destination) ILIKE '%%' || $%d || '%%'", f.Search)
	}

	if w.empty {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+routeCols+` FROM routes`+w.String()+` ORDER BY route_date ASC, id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []domain.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *pgTx) BookedCapacity(ctx context.Context, routeID string) (decimal.Decimal, error) {
	if !isUUID(routeID) {
		return decimal.Zero, nil
	}
	var booked decimal.Decimal
	err := t.tx.QueryRow(ctx, `
        SELECT COALESCE(SUM(quantity_requested), 0) FROM bids
        WHERE route_id = $1 AND status IN ('accepted','collected','completed')`, routeID).Scan(&booked)
	if err != nil {
		return decimal.Zero, fmt.Errorf("booked capacity: %w", err)
	}
	return booked, nil
}

// ---- payments ----

const paymentCols = `p.id, p.bid_id, p.amount, p.payment_method, p.currency, p.status, p.reference,
    p.transaction_id, p.phone, p.created_at, p.updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.BidID, &p.Amount, &p.Method, &p.Currency, &p.Status, &p.Reference,
		&p.TransactionID, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func paymentConflict(err error) error {
	pgErr, dup := isUniqueViolation(err)
	if !dup {
		return err
	}
	switch pgErr.ConstraintName {
	case "uq_payments_active_bid":
		return domain.Conflict("bid already has an active payment")
	case "payments_transaction_id_key":
		return domain.Conflict("transaction id already recorded")
	}
	return domain.Conflict("duplicate payment reference")
}

func (t *pgTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO payments (id, bid_id, amount, payment_method, currency, status, reference,
            transaction_id, phone, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.BidID, p.Amount, p.Method, p.Currency, p.Status, p.Reference,
		p.TransactionID, p.Phone, p.CreatedAt, p.UpdatedAt)
	return paymentConflict(err)
}

func (t *pgTx) GetPayment(ctx context.Context, id string, lock bool) (*domain.Payment, error) {
	if !isUUID(id) {
		return nil, domain.NotFound("payment not found")
	}
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments p WHERE p.id = $1`+lockClause(lock), id))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	tag, err := t.tx.Exec(ctx, `
        UPDATE payments SET status = $2, transaction_id = $3, payment_method = $4, phone = $5, updated_at = $6
        WHERE id = $1`,
		p.ID, p.Status, p.TransactionID, p.Method, p.Phone, p.UpdatedAt)
	if err != nil {
		return paymentConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("payment not found")
	}
	return nil
}

func (t *pgTx) queryPayments(ctx context.Context, q string, args ...any) ([]domain.Payment, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgTx) PaymentsForBid(ctx context.Context, bidID string) ([]domain.Payment, error) {
	if !isUUID(bidID) {
		return nil, nil
	}
	return t.queryPayments(ctx, `SELECT `+paymentCols+` FROM payments p WHERE p.bid_id = $1
        ORDER BY p.created_at DESC, p.id DESC`, bidID)
}

func (t *pgTx) PaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments p WHERE p.reference = $1`, reference))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

func (t *pgTx) PaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments p WHERE p.transaction_id = $1`, transactionID))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

func (t *pgTx) ListPayments(ctx context.Context, f PaymentFilter) ([]domain.Payment, error) {
	var w where
	if f.BrokerID != "" {
		w.addID("b.broker_id = $%d", f.BrokerID)
	}
	if f.FarmerID != "" {
		w.addID("l.farmer_id = $%d", f.FarmerID)
	}
	if w.empty {
		return nil, nil
	}
	return t.queryPayments(ctx, `SELECT `+paymentCols+` FROM payments p
        JOIN bids b ON b.id = p.bid_id
        JOIN listings l ON l.id = b.listing_id`+w.String()+`
        ORDER BY p.created_at DESC, p.id DESC`, w.args...)
}

// ---- contracts ----

func (t *pgTx) GetOrCreateContract(ctx context.Context, c *domain.Contract) (*domain.Contract, bool, error) {
	var out domain.Contract
	err := t.tx.QueryRow(ctx, `
        INSERT INTO contracts (id, bid_id, terms, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (bid_id) DO NOTHING
        RETURNING id, bid_id, terms, created_at`,
		c.ID, c.BidID, c.Terms, c.CreatedAt).Scan(&out.ID, &out.BidID, &out.Terms, &out.CreatedAt)
	if err == nil {
		return &out, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create contract: %w", err)
	}
	existing, err := t.GetContractByBid(ctx, c.BidID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (t *pgTx) GetContractByBid(ctx context.Context, bidID string) (*domain.Contract, error) {
	if !isUUID(bidID) {
		return nil, domain.NotFound("contract not found")
	}
	var c domain.Contract
	err := t.tx.QueryRow(ctx, `SELECT id, bid_id, terms, created_at FROM contracts WHERE bid_id = $1`, bidID).
		Scan(&c.ID, &c.BidID, &c.Terms, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err, "contract")
	}
	return &c, nil
}

// ---- reviews ----

const reviewCols = `id, bid_id, broker_id, farmer_id, rating, comment, created_at`

func scanReview(row pgx.Row) (*domain.Review, error) {
	var r domain.Review
	err := row.Scan(&r.ID, &r.BidID, &r.BrokerID, &r.FarmerID, &r.Rating, &r.Comment, &r.CreatedAt)
	return &r, err
}

func (t *pgTx) CreateReview(ctx context.Context, r *domain.Review) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO reviews (`+reviewCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.BidID, r.BrokerID, r.FarmerID, r.Rating, r.Comment, r.CreatedAt)
	if _, dup := isUniqueViolation(err); dup {
		return domain.Conflict("bid already reviewed")
	}
	return err
}

func (t *pgTx) GetReviewByBid(ctx context.Context, bidID string) (*domain.Review, error) {
	if !isUUID(bidID) {
		return nil, domain.NotFound("review not found")
	}
	r, err := scanReview(t.tx.QueryRow(ctx, `SELECT `+reviewCols+` FROM reviews WHERE bid_id = $1`, bidID))
	if err != nil {
		return nil, notFound(err, "review")
	}
	return r, nil
}

func (t *pgTx) ListReviewsForFarmer(ctx context.Context, farmerID string, limit, offset int) ([]domain.Review, error) {
	if !isUUID(farmerID) {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT `+reviewCols+` FROM reviews WHERE farmer_id = $1
        ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, farmerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *pgTx) FarmerRatings(ctx context.Context, farmerID string) ([]int, error) {
	if !isUUID(farmerID) {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT rating FROM reviews WHERE farmer_id = $1`, farmerID)
	if err != nil {
		return nil, fmt.Errorf("farmer ratings: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// ---- stats ----

func (t *pgTx) countByStatus(ctx context.Context, table string) (map[string]int, error) {
	rows, err := t.tx.Query(ctx, `SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (t *pgTx) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := t.tx.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM listings), (SELECT COUNT(*) FROM routes)`).
		Scan(&s.Users, &s.Listings, &s.Routes)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	if s.BidsByStatus, err = t.countByStatus(ctx, "bids"); err != nil {
		return nil, fmt.Errorf("count bids: %w", err)
	}
	if s.PaymentsByStatus, err = t.countByStatus(ctx, "payments"); err != nil {
		return nil, fmt.Errorf("count payments: %w", err)
	}
	return &s, nil
}
