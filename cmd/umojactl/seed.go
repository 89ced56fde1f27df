package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/umoja/internal/db"
	"github.com/sudo-init-do/umoja/internal/domain"
)

func seedCmd() *cobra.Command {
	var (
		farmers  int
		password string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo farmers, a broker and active listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if farmers < 1 {
				return fmt.Errorf("--farmers must be at least 1")
			}
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			users, listings, err := seed(cmd.Context(), pool, farmers, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d listings\n", users, listings)
			return nil
		},
	}
	cmd.Flags().IntVar(&farmers, "farmers", 3, "number of demo farmers")
	cmd.Flags().StringVar(&password, "password", "umoja123", "password for every demo account")
	return cmd
}

var seedCounties = []string{"Nakuru", "Eldoret", "Kitale", "Meru", "Kisumu"}

// seed bulk-loads demo rows with COPY inside one transaction.
func seed(ctx context.Context, pool *pgxpool.Pool, farmers int, password string) (int64, int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, 0, err
	}
	now := time.Now().UTC()
	batch := now.Unix()

	userRows := [][]any{{uuid.New().String(), "Demo Broker", fmt.Sprintf("broker+%d@umoja.test", batch), string(hash), domain.RoleBroker, "254700000001", now}}
	var listingRows [][]any
	for i := 0; i < farmers; i++ {
		farmerID := uuid.New().String()
		userRows = append(userRows, []any{
			farmerID, fmt.Sprintf("Demo Farmer %d", i+1), fmt.Sprintf("farmer%d+%d@umoja.test", i+1, batch),
			string(hash), domain.RoleFarmer, fmt.Sprintf("25471100%04d", i+1), now,
		})
		produce := domain.ProduceKinds[i%(len(domain.ProduceKinds)-1)]
		listingRows = append(listingRows, []any{
			uuid.New().String(), farmerID, produce, decimal.NewFromInt(int64(100 * (i + 1))), "kg", "standard",
			decimal.NewFromInt(int64(40 + 5*i)), seedCounties[i%len(seedCounties)], now, domain.ListingActive, now, now,
		})
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	users, err := tx.CopyFrom(ctx, pgx.Identifier{"users"},
		[]string{"id", "name", "email", "password_hash", "role", "phone", "created_at"},
		pgx.CopyFromRows(userRows))
	if err != nil {
		return 0, 0, fmt.Errorf("copy users: %w", err)
	}
	listings, err := tx.CopyFrom(ctx, pgx.Identifier{"listings"},
		[]string{"id", "farmer_id", "produce_type", "quantity_available", "unit", "quality",
			"price_expected", "origin_text", "available_from", "status", "created_at", "updated_at"},
		pgx.CopyFromRows(listingRows))
	if err != nil {
		return 0, 0, fmt.Errorf("copy listings: %w", err)
	}
	return users, listings, tx.Commit(ctx)
}
