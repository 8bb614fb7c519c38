package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/frahmantamala/authcore/internal/auth"
	"github.com/frahmantamala/authcore/internal/user"
	userPostgres "github.com/frahmantamala/authcore/internal/user/postgres"
	"github.com/frahmantamala/authcore/pkg/logger"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User administration commands",
}

var (
	newUser       user.CreateUserDTO
	newUserActive bool
)

var createUserCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Long:  `Create a user account. The password is read from AUTHCORE_USER_PASSWORD.`,
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

		gormDB, err := initGorm(db)
		if err != nil {
			return err
		}

		newUser.Password = os.Getenv("AUTHCORE_USER_PASSWORD")
		newUser.Inactive = !newUserActive

		svc := user.NewService(
			userPostgres.NewRepository(gormDB),
			auth.NewBcryptHasher(cfg.Security.BCryptCost, 0, nil),
			auth.NewPermissionResolver(cfg.Security.AdminRoles),
			lg,
		)
		created, err := svc.Create(context.Background(), newUser)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(created)
	},
}

func init() {
	createUserCmd.Flags().StringVar(&newUser.Username, "username", "", "username (required)")
	createUserCmd.Flags().StringVar(&newUser.Email, "email", "", "email address")
	createUserCmd.Flags().StringVar(&newUser.FullName, "full-name", "", "display name")
	createUserCmd.Flags().StringSliceVar(&newUser.Roles, "role", nil, "role to assign; repeatable")
	createUserCmd.Flags().BoolVar(&newUserActive, "active", true, "create the account active")
	_ = createUserCmd.MarkFlagRequired("username")

	userCmd.AddCommand(createUserCmd)
}
