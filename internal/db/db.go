package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
)

// Open connects to Postgres and registers the decimal codec on every
// connection so NUMERIC columns scan straight into decimal.Decimal.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	slog.Info("connected to postgres")
	return pool, nil
}

// Migrate creates or upgrades every table. Each step is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"users", ensureUsersTable},
		{"listings", ensureListingsTable},
		{"routes", ensureRoutesTable},
		{"bids", ensureBidsTable},
		{"contracts", ensureContractsTable},
		{"payments", ensurePaymentsTable},
		{"reviews", ensureReviewsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
		slog.Debug("schema ensured", "table", s.name)
	}
	return nil
}

func ensureUsersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('farmer','broker','admin')),
            phone TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	if err != nil {
		return err
	}

	// Profile and notification columns, added after the first release.
	for _, col := range []string{
		`location TEXT NOT NULL DEFAULT ''`,
		`id_number TEXT NOT NULL DEFAULT ''`,
		`farm_name TEXT NOT NULL DEFAULT ''`,
		`farm_size NUMERIC(10,2) NULL CHECK (farm_size >= 0)`,
		`bank_name TEXT NOT NULL DEFAULT ''`,
		`account_number TEXT NOT NULL DEFAULT ''`,
		`mpesa_number TEXT NOT NULL DEFAULT ''`,
		`payment_preference TEXT NOT NULL DEFAULT 'mpesa'`,
		`email_notifications BOOLEAN NOT NULL DEFAULT TRUE`,
		`sms_notifications BOOLEAN NOT NULL DEFAULT TRUE`,
		`updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
	} {
		if _, err := pool.Exec(ctx, `ALTER TABLE users ADD COLUMN IF NOT EXISTS `+col); err != nil {
			return err
		}
	}
	_, err = pool.Exec(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`)
	return err
}

func ensureListingsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS listings (
            id UUID PRIMARY KEY,
            farmer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            produce_type TEXT NOT NULL,
            quantity_available NUMERIC(14,2) NOT NULL CHECK (quantity_available >= 0),
            unit TEXT NOT NULL,
            quality TEXT NOT NULL,
            price_expected NUMERIC(14,2) NULL,
            origin_text TEXT NOT NULL DEFAULT '',
            available_from TIMESTAMPTZ NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','sold','expired')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_listings_farmer ON listings(farmer_id);
        CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
    `)
	return err
}

func ensureRoutesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS routes (
            id UUID PRIMARY KEY,
            broker_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            origin TEXT NOT NULL,
            destination TEXT NOT NULL,
            route_date TIMESTAMPTZ NOT NULL,
            capacity INTEGER NOT NULL CHECK (capacity > 0),
            price_per_kg NUMERIC(14,2) NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed','cancelled')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_routes_broker ON routes(broker_id);
    `)
	return err
}

func ensureBidsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS bids (
            id UUID PRIMARY KEY,
            broker_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            route_id UUID NULL REFERENCES routes(id),
            quantity_requested NUMERIC(14,2) NOT NULL CHECK (quantity_requested > 0),
            price_per_unit NUMERIC(14,2) NOT NULL CHECK (price_per_unit > 0),
            total_price NUMERIC(16,2) NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending','accepted','rejected','cancelled','collected','completed')),
            notes TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_bids_listing_created ON bids(listing_id, created_at, id);
        CREATE INDEX IF NOT EXISTS idx_bids_broker ON bids(broker_id);
        CREATE INDEX IF NOT EXISTS idx_bids_route ON bids(route_id) WHERE route_id IS NOT NULL;
    `)
	return err
}

func ensureContractsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS contracts (
            id UUID PRIMARY KEY,
            bid_id UUID NOT NULL UNIQUE REFERENCES bids(id) ON DELETE CASCADE,
            terms TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	return err
}

// ensurePaymentsTable keeps at most one active payment per bid through a
// partial unique index, so concurrent initiations collide on insert.
func ensurePaymentsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS payments (
            id UUID PRIMARY KEY,
            bid_id UUID NOT NULL REFERENCES bids(id) ON DELETE CASCADE,
            amount NUMERIC(16,2) NOT NULL CHECK (amount > 0),
            payment_method TEXT NOT NULL DEFAULT 'mpesa',
            currency TEXT NOT NULL DEFAULT 'KES',
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending','paid','released','refunded','failed')),
            reference TEXT NOT NULL UNIQUE,
            transaction_id TEXT NULL UNIQUE,
            phone TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_active_bid
            ON payments(bid_id) WHERE status IN ('pending','paid','released');
        CREATE INDEX IF NOT EXISTS idx_payments_bid ON payments(bid_id, created_at);
    `)
	return err
}

func ensureReviewsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS reviews (
            id UUID PRIMARY KEY,
            bid_id UUID NOT NULL UNIQUE REFERENCES bids(id) ON DELETE CASCADE,
            broker_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            farmer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_farmer ON reviews(farmer_id, created_at);
    `)
	return err
}
