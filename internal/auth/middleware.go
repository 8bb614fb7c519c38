package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/authcore/internal"
)

// RequireAuth resolves the bearer token into an Identity. Missing or invalid
// tokens and unknown users get 401; inactive users get 403.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.Service.CurrentIdentity(r.Context(), h.ExtractTokenFromHeader(r))
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r, identity)))
	})
}

// OptionalAuth attaches an Identity when one can be resolved and otherwise
// lets the request through anonymously.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := h.Service.OptionalIdentity(r.Context(), h.ExtractTokenFromHeader(r))
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r, identity)))
	})
}

// RequirePermission gates on a single permission. Behind RequireAuth it reuses
// the resolved identity; on its own it authorizes the bearer token directly.
func (h *Handler) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				var err error
				identity, err = h.Service.Authorize(r.Context(), h.ExtractTokenFromHeader(r), permission)
				if err != nil {
					h.WriteAppError(w, r, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r, identity)))
				return
			}

			if !identity.Can(permission) {
				h.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", identity.UserID,
					"required_permission", permission)
				h.WriteAppError(w, r, internal.NewPermissionDeniedError(permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after RequireAuth.
func (h *Handler) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				h.WriteAppError(w, r, ErrUnauthorized)
				return
			}
			if !identity.Admin {
				h.Logger.WarnContext(r.Context(), "access denied: admin role required", "user_id", identity.UserID)
				h.WriteAppError(w, r, internal.NewForbiddenError("Administrator role required", internal.ErrCodePermissionDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withIdentity(r *http.Request, identity *Identity) context.Context {
	ctx := ContextWithIdentity(r.Context(), identity)
	return internal.ContextWithSubject(ctx, identity.Username)
}
