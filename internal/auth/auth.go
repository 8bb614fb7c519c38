package auth

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/frahmantamala/authcore/internal"
	datamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
)

// Identity is the request-scoped view of an authenticated user. It is rebuilt
// on every request and never cached.
type Identity struct {
	UserID      int64         `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email,omitempty"`
	FullName    string        `json:"full_name,omitempty"`
	Active      bool          `json:"is_active"`
	Admin       bool          `json:"-"`
	Roles       []string      `json:"roles"`
	Permissions PermissionSet `json:"permissions"`
}

// Can reports whether the identity may perform an operation gated by permission.
func (i *Identity) Can(permission string) bool {
	if i == nil {
		return false
	}
	return i.Admin || i.Permissions.Contains(permission)
}

// PermissionSet is an unordered set of permission strings.
type PermissionSet map[string]struct{}

func NewPermissionSet(permissions ...string) PermissionSet {
	set := make(PermissionSet, len(permissions))
	for _, p := range permissions {
		set.Add(p)
	}
	return set
}

func (s PermissionSet) Add(permission string) {
	s[permission] = struct{}{}
}

func (s PermissionSet) Contains(permission string) bool {
	_, ok := s[permission]
	return ok
}

// Slice returns the permissions sorted, for stable output.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// CredentialStore owns user records and the role/permission graph. Lookups
// return the user with roles and their permissions loaded, or ErrUserNotFound.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*datamodel.User, error)
	FindByEmail(ctx context.Context, email string) (*datamodel.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

var (
	ErrInvalidCredentials = internal.ErrInvalidCredentials
	ErrUnauthorized       = internal.ErrUnauthorized
	ErrUserInactive       = internal.ErrUserInactive
	ErrPermissionDenied   = internal.ErrPermissionDenied
	ErrHashing            = internal.ErrHashing
	ErrUserNotFound       = internal.ErrUserNotFound
)
