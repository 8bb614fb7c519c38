package user

import (
	"context"
	"time"

	"github.com/frahmantamala/authcore/internal/auth"
	userDatamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
)

// User is the admin-facing view of an account. The password hash never leaves
// the repository layer.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
	IsActive    bool      `json:"is_active"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User, roleNames []string) error
	SetActive(ctx context.Context, id int64, active bool) error
	AssignRole(ctx context.Context, id int64, roleName string) error
	RemoveRole(ctx context.Context, id int64, roleName string) error
}

func FromDataModel(u *userDatamodel.User, resolver *auth.PermissionResolver) *User {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}
	return &User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		Roles:       roles,
		Permissions: resolver.ResolvePermissions(u).Slice(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
