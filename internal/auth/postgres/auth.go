package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/authcore/internal/auth"
	datamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// Repository is the gorm-backed credential store. Each lookup is a single
// logical read with roles and permissions preloaded.
type Repository struct {
	db *gorm.DB
}

var _ auth.CredentialStore = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*datamodel.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*datamodel.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *Repository) findOne(ctx context.Context, query string, arg interface{}) (*datamodel.User, error) {
	var u datamodel.User
	err := r.db.WithContext(ctx).
		Preload("Roles.Permissions").
		Where(query, arg).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	res := r.db.WithContext(ctx).
		Model(&datamodel.User{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash)
	if res.Error != nil {
		return fmt.Errorf("update password hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}
