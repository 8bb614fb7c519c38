package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/authcore/internal"
	userDatamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
	"github.com/frahmantamala/authcore/internal/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

var _ user.Repository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Preload("Roles.Permissions").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// Create inserts u and links it to the named roles. Every role must exist.
func (r *Repository) Create(ctx context.Context, u *userDatamodel.User, roleNames []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		q := tx.Model(&userDatamodel.User{}).Where("username = ?", u.Username)
		if u.Email != nil {
			q = q.Or("email = ?", *u.Email)
		}
		if err := q.Count(&taken).Error; err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if taken > 0 {
			return internal.ErrUserExists
		}

		if len(roleNames) > 0 {
			var roles []userDatamodel.Role
			if err := tx.Where("name IN ?", roleNames).Find(&roles).Error; err != nil {
				return fmt.Errorf("load roles: %w", err)
			}
			if len(roles) != len(unique(roleNames)) {
				return internal.ErrRoleNotFound
			}
			u.Roles = roles
		}

		if err := tx.Omit("Roles.*").Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.ErrUserExists
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("update is_active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

func (r *Repository) AssignRole(ctx context.Context, id int64, roleName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, role, err := loadUserAndRole(tx, id, roleName)
		if err != nil {
			return err
		}
		if err := tx.Model(u).Association("Roles").Append(role); err != nil {
			return fmt.Errorf("append role: %w", err)
		}
		return nil
	})
}

func (r *Repository) RemoveRole(ctx context.Context, id int64, roleName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, role, err := loadUserAndRole(tx, id, roleName)
		if err != nil {
			return err
		}
		if err := tx.Model(u).Association("Roles").Delete(role); err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		return nil
	})
}

func loadUserAndRole(tx *gorm.DB, id int64, roleName string) (*userDatamodel.User, *userDatamodel.Role, error) {
	var u userDatamodel.User
	if err := tx.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, internal.ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	var role userDatamodel.Role
	if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, internal.ErrRoleNotFound
		}
		return nil, nil, fmt.Errorf("load role: %w", err)
	}
	return &u, &role, nil
}

func unique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
