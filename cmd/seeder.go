package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/frahmantamala/authcore/internal/auth"
	"github.com/frahmantamala/authcore/internal/seed"
	"github.com/frahmantamala/authcore/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	seedAdminUsername string
	seedAdminEmail    string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed roles, permissions and the default admin user",
	Long: `Seed the reference roles (admin, analyst, viewer), their permissions and a default admin account.
The admin password is read from SEED_ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.InitWithLevel(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		password := os.Getenv("SEED_ADMIN_PASSWORD")
		if password == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be set")
		}

		hasher := auth.NewBcryptHasher(cfg.Security.BCryptCost, 0, nil)
		seeder := seed.NewSeeder(db, hasher, lg)

		ctx := context.Background()
		if clearData {
			if err := seeder.Clear(ctx); err != nil {
				return err
			}
		}

		if err := seeder.Run(ctx, seed.AdminSeed{
			Username: seedAdminUsername,
			Email:    seedAdminEmail,
			Password: password,
		}); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}

		fmt.Println("Seeded roles, permissions and admin user:", seedAdminUsername)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-username", "admin", "username of the default admin account")
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@example.com", "email of the default admin account")
}
