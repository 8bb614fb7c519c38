package auth

import (
	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/core/common/validation"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequestDTO struct {
	Email string `json:"email"`
}

type PasswordResetConfirmDTO struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (d LoginDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("username", d.Username).NotBlank(internal.ErrCodeInvalidUsername)
	v.Field("password", d.Password).Required()
	return v.Validate()
}

func (d RefreshTokenDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}

func (d PasswordResetRequestDTO) Validate() *internal.AppError {
	return validation.ValidateEmail(d.Email)
}

func (d PasswordResetConfirmDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("token", d.Token).Required()
	v.Field("new_password", d.NewPassword).NewPassword()
	return v.Validate()
}

func (d ChangePasswordDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("old_password", d.OldPassword).Required()
	v.Field("new_password", d.NewPassword).NewPassword()
	return v.Validate()
}

// LoginResponse carries the token pair plus the user it was issued for.
type LoginResponse struct {
	AuthTokens
	User *Identity `json:"user"`
}

type PermissionsResponse struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}
