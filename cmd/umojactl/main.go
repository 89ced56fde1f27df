// umojactl runs operator tasks against the Umoja database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/umoja/internal/config"
	"github.com/sudo-init-do/umoja/internal/db"
	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "umojactl",
		Short:        "Operator tooling for the Umoja marketplace",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(promoteCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect opens the pool from DATABASE_URL or the DB_* variables.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return db.Open(ctx, config.DatabaseURL(os.Getenv))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func promoteCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "promote [email]",
		Short: "Set a user's role",
		Long: `Set the role of an existing account by e-mail.

Examples:
  umojactl promote ops@umoja.co.ke
  umojactl promote grower@example.com --role farmer`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case domain.RoleAdmin, domain.RoleFarmer, domain.RoleBroker:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := cmd.Context()
			err = store.NewPostgres(pool).InTx(ctx, func(tx store.Tx) error {
				return tx.SetUserRole(ctx, args[0], role)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", domain.RoleAdmin, "role to assign (admin, farmer, broker)")
	return cmd
}
