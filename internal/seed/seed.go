package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/authcore/internal/auth"
	"github.com/jmoiron/sqlx"
)

type PermissionSeed struct {
	Name        string
	Description string
}

type RoleSeed struct {
	Name        string
	Description string
	Permissions []string
}

type AdminSeed struct {
	Username string
	Email    string
	Password string
}

var DefaultPermissions = []PermissionSeed{
	{"alert:read", "View alerts"},
	{"alert:write", "Create and update alerts"},
	{"asset:read", "View assets"},
	{"asset:write", "Create and update assets"},
	{"user:read", "View user accounts"},
	{"user:manage", "Manage user accounts"},
}

// The admin role carries no explicit permissions; it passes every check by name.
var DefaultRoles = []RoleSeed{
	{Name: "admin", Description: "Full administrator"},
	{Name: "analyst", Description: "Security analyst", Permissions: []string{"alert:read", "alert:write", "asset:read", "asset:write", "user:read"}},
	{Name: "viewer", Description: "Read-only access", Permissions: []string{"alert:read", "asset:read"}},
}

// Seeder writes reference roles and permissions with plain SQL so it runs
// before any ORM mapping is involved. Every step is idempotent.
type Seeder struct {
	db     *sqlx.DB
	hasher auth.PasswordHasher
	logger *slog.Logger
	now    func() time.Time
}

func NewSeeder(db *sqlx.DB, hasher auth.PasswordHasher, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{db: db, hasher: hasher, logger: logger, now: time.Now}
}

func (s *Seeder) Run(ctx context.Context, admin AdminSeed) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range DefaultPermissions {
		if err := s.ensurePermission(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, r := range DefaultRoles {
		if err := s.ensureRole(ctx, tx, r); err != nil {
			return err
		}
	}
	if admin.Username != "" {
		if err := s.ensureAdmin(ctx, tx, admin); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// Clear removes every auth row, join tables first.
func (s *Seeder) Clear(ctx context.Context) error {
	for _, table := range []string{"user_roles", "role_permissions", "users", "roles", "permissions"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	s.logger.Info("auth tables cleared")
	return nil
}

func (s *Seeder) ensurePermission(ctx context.Context, tx *sqlx.Tx, p PermissionSeed) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO permissions (name, description, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING"),
		p.Name, p.Description, s.now())
	if err != nil {
		return fmt.Errorf("insert permission %s: %w", p.Name, err)
	}
	return nil
}

func (s *Seeder) ensureRole(ctx context.Context, tx *sqlx.Tx, r RoleSeed) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO roles (name, description, created_at) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING"),
		r.Name, r.Description, s.now())
	if err != nil {
		return fmt.Errorf("insert role %s: %w", r.Name, err)
	}

	roleID, err := lookupID(ctx, tx, "roles", r.Name)
	if err != nil {
		return err
	}
	for _, name := range r.Permissions {
		permID, err := lookupID(ctx, tx, "permissions", name)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			"INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?) ON CONFLICT DO NOTHING"),
			roleID, permID)
		if err != nil {
			return fmt.Errorf("grant %s to %s: %w", name, r.Name, err)
		}
	}
	s.logger.Info("seeded role", "role", r.Name, "permissions", len(r.Permissions))
	return nil
}

func (s *Seeder) ensureAdmin(ctx context.Context, tx *sqlx.Tx, admin AdminSeed) error {
	var userID int64
	err := tx.GetContext(ctx, &userID, tx.Rebind("SELECT id FROM users WHERE username = ?"), admin.Username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		hash, err := s.hasher.Hash(admin.Password)
		if err != nil {
			return err
		}
		var email interface{}
		if admin.Email != "" {
			email = admin.Email
		}
		now := s.now()
		_, err = tx.ExecContext(ctx, tx.Rebind(
			"INSERT INTO users (username, email, full_name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
			admin.Username, email, "Administrator", hash, true, now, now)
		if err != nil {
			return fmt.Errorf("insert admin user: %w", err)
		}
		if userID, err = lookupUserID(ctx, tx, admin.Username); err != nil {
			return err
		}
		s.logger.Info("seeded admin user", "username", admin.Username)
	case err != nil:
		return fmt.Errorf("lookup admin user: %w", err)
	default:
		s.logger.Info("admin user already exists; ensuring role", "username", admin.Username)
	}

	roleID, err := lookupID(ctx, tx, "roles", "admin")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING"),
		userID, roleID)
	if err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	return nil
}

func lookupID(ctx context.Context, tx *sqlx.Tx, table, name string) (int64, error) {
	var id int64
	if err := tx.GetContext(ctx, &id, tx.Rebind("SELECT id FROM "+table+" WHERE name = ?"), name); err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", table, name, err)
	}
	return id, nil
}

func lookupUserID(ctx context.Context, tx *sqlx.Tx, username string) (int64, error) {
	var id int64
	if err := tx.GetContext(ctx, &id, tx.Rebind("SELECT id FROM users WHERE username = ?"), username); err != nil {
		return 0, fmt.Errorf("lookup user %q: %w", username, err)
	}
	return id, nil
}
