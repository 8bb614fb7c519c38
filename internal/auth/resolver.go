package auth

import (
	datamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
)

// PermissionResolver flattens a user's roles into permissions. Role names in
// adminRoles bypass explicit permission checks entirely.
type PermissionResolver struct {
	adminRoles map[string]struct{}
}

func NewPermissionResolver(adminRoles []string) *PermissionResolver {
	set := make(map[string]struct{}, len(adminRoles))
	for _, name := range adminRoles {
		set[name] = struct{}{}
	}
	return &PermissionResolver{adminRoles: set}
}

func (r *PermissionResolver) ResolvePermissions(u *datamodel.User) PermissionSet {
	set := NewPermissionSet()
	if u == nil {
		return set
	}
	for _, role := range u.Roles {
		for _, p := range role.Permissions {
			set.Add(p.Name)
		}
	}
	return set
}

// HasPermission matches exactly; there are no wildcards or hierarchies.
func (r *PermissionResolver) HasPermission(u *datamodel.User, permission string) bool {
	if r.IsAdmin(u) {
		return true
	}
	return r.ResolvePermissions(u).Contains(permission)
}

// IsAdmin compares role names exactly, case included.
func (r *PermissionResolver) IsAdmin(u *datamodel.User) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if _, ok := r.adminRoles[role.Name]; ok {
			return true
		}
	}
	return false
}

// BuildIdentity derives the request-scoped identity for u.
func (r *PermissionResolver) BuildIdentity(u *datamodel.User) *Identity {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, role.Name)
	}
	id := &Identity{
		UserID:      u.ID,
		Username:    u.Username,
		FullName:    u.FullName,
		Active:      u.IsActive,
		Admin:       r.IsAdmin(u),
		Roles:       roles,
		Permissions: r.ResolvePermissions(u),
	}
	if u.Email != nil {
		id.Email = *u.Email
	}
	return id
}
