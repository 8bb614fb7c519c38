package user

import "time"

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;uniqueIndex;not null"`
	Email        *string   `gorm:"column:email;uniqueIndex"`
	FullName     string    `gorm:"column:full_name"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
	Roles        []Role    `gorm:"many2many:user_roles;"`
}

type Role struct {
	ID          int64        `gorm:"primaryKey"`
	Name        string       `gorm:"column:name;uniqueIndex;not null"`
	Description string       `gorm:"column:description"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	Permissions []Permission `gorm:"many2many:role_permissions;"`
}

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// Models lists every table owned by the auth schema, in dependency order.
func Models() []interface{} {
	return []interface{}{&Permission{}, &Role{}, &User{}}
}
