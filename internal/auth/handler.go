package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/transport"
	"github.com/frahmantamala/authcore/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.login(w, r, dto)
}

// LoginOAuth accepts the OAuth2 password grant as an urlencoded form, so
// standard OAuth2 clients and the Swagger UI can sign in.
func (h *Handler) LoginOAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.WriteAppError(w, r, internal.NewValidationError("Invalid form body", internal.ErrCodeValidationFailed))
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "" && grant != "password" {
		h.WriteAppError(w, r, internal.NewValidationFieldError("grant_type",
			"grant_type must be password", internal.ErrCodeValidationFailed))
		return
	}
	h.login(w, r, LoginDTO{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, dto LoginDTO) {
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	identity, err := h.Service.Authenticate(r.Context(), dto.Username, dto.Password)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	tokens, err := h.Service.IssueTokens(identity)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, LoginResponse{AuthTokens: tokens, User: identity})
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	tokens, err := h.Service.RefreshAccessToken(r.Context(), dto.RefreshToken)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), h.ExtractTokenFromHeader(r)); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, ErrUnauthorized)
		return
	}
	h.WriteJSON(w, http.StatusOK, identity)
}

func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, ErrUnauthorized)
		return
	}
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{
		Permissions: identity.Permissions.Slice(),
		Roles:       identity.Roles,
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, ErrUnauthorized)
		return
	}

	var dto ChangePasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), identity, dto.OldPassword, dto.NewPassword); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset answers the same way whether or not the email exists.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var dto PasswordResetRequestDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if err := h.Service.RequestPasswordReset(r.Context(), dto.Email); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If the email is registered, a password reset link has been sent",
	})
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var dto PasswordResetConfirmDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if err := h.Service.ConfirmPasswordReset(r.Context(), dto.Token, dto.NewPassword); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}
