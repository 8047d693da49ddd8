package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/casebill/casebill/internal/auth"
	"github.com/casebill/casebill/internal/config"
	"github.com/casebill/casebill/internal/logger"
	"github.com/casebill/casebill/internal/postgres"
	"github.com/casebill/casebill/internal/types"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Database and key administration for the billing service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return withDB(timeout, func(ctx context.Context, db *postgres.DB, log *logger.Logger) error {
			log.Info("Running database migrations...")
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			log.Info("Migration completed successfully")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they have been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return withDB(timeout, func(ctx context.Context, db *postgres.DB, _ *logger.Logger) error {
			statuses, err := db.MigrationStatuses(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", s.Version, state)
			}
			return nil
		})
	},
}

var apiKeyCmd = &cobra.Command{
	Use:   "generate-api-key",
	Short: "Generate an API key and print its config entry",
	Example: `  migrate generate-api-key --name "front desk" --tenant-id 00000000-0000-0000-0000-000000000000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		tenantID, _ := cmd.Flags().GetString("tenant-id")
		userID, _ := cmd.Flags().GetString("user-id")

		rawKey, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		hashed := auth.HashAPIKey(rawKey)
		details := config.APIKeyDetails{
			TenantID: tenantID,
			UserID:   userID,
			Name:     name,
			IsActive: true,
		}
		encoded, err := json.Marshal(map[string]config.APIKeyDetails{hashed: details})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Raw key (shown once): %s\n\n", rawKey)
		fmt.Fprintf(out, "Add under auth.api_key.keys in config.yaml:\n")
		fmt.Fprintf(out, "  %s:\n", hashed)
		fmt.Fprintf(out, "    tenant_id: %s\n", details.TenantID)
		fmt.Fprintf(out, "    user_id: %s\n", details.UserID)
		fmt.Fprintf(out, "    name: %s\n", details.Name)
		fmt.Fprintf(out, "    is_active: true\n\n")
		fmt.Fprintf(out, "Or set CASEBILL_AUTH_API_KEY_KEYS='%s'\n", encoded)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().Duration("timeout", 30*time.Second, "Give up after this long")
	}
	apiKeyCmd.Flags().String("name", "", "Label for the key")
	apiKeyCmd.Flags().String("tenant-id", types.DefaultTenantID, "Tenant the key acts as")
	apiKeyCmd.Flags().String("user-id", types.DefaultUserID, "User recorded on changes made with the key")
	_ = apiKeyCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(upCmd, statusCmd, apiKeyCmd)
}

func withDB(timeout time.Duration, fn func(ctx context.Context, db *postgres.DB, log *logger.Logger) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	// migrations run explicitly here, never as a side effect of connecting
	cfg.Postgres.AutoMigrate = false
	log.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, db, log)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
