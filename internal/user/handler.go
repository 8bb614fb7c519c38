package user

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/transport"
	"github.com/frahmantamala/authcore/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, dto CreateUserDTO) (*User, error)
	Activate(ctx context.Context, id int64) (*User, error)
	Deactivate(ctx context.Context, id int64) (*User, error)
	AssignRole(ctx context.Context, id int64, roleName string) (*User, error)
	RemoveRole(ctx context.Context, id int64, roleName string) (*User, error)
}

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

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	u, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

// Activate handles PATCH /users/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Activate)
}

// Deactivate handles PATCH /users/{id}/deactivate
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Deactivate)
}

// AssignRole handles POST /users/{id}/roles
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var dto AssignRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	u, err := h.Service.AssignRole(r.Context(), id, dto.Role)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// RemoveRole handles DELETE /users/{id}/roles/{role}
func (h *Handler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.Service.RemoveRole(r.Context(), id, chi.URLParam(r, "role"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*User, error)) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := fn(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, r, internal.NewValidationFieldError("id", "id must be a positive integer", internal.ErrCodeValidationFailed))
		return 0, false
	}
	return id, true
}
