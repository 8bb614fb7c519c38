package user

import (
	"strings"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/core/common/validation"
)

type CreateUserDTO struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	Inactive bool     `json:"inactive,omitempty"`
}

type AssignRoleDTO struct {
	Role string `json:"role"`
}

func (d *CreateUserDTO) Normalize() {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.TrimSpace(d.Email)
	d.FullName = strings.TrimSpace(d.FullName)
}

func (d CreateUserDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("username", d.Username).
		NotBlank(internal.ErrCodeInvalidUsername).
		MaxLength(validation.MaxUsernameLength, internal.ErrCodeInvalidUsername)
	v.Field("email", d.Email).Email()
	v.Field("password", d.Password).NewPassword()
	return v.Validate()
}

func (d AssignRoleDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("role", d.Role).NotBlank(internal.ErrCodeValidationFailed)
	return v.Validate()
}
