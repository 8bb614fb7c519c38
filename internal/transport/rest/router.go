package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/authcore/internal/auth"
	"github.com/frahmantamala/authcore/internal/transport/middleware"
	"github.com/frahmantamala/authcore/internal/transport/swagger"
	"github.com/frahmantamala/authcore/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

const (
	PermissionUserRead = "user:read"
)

type RouterDeps struct {
	Health         *HealthHandler
	AuthHandler    *auth.Handler
	UserHandler    *user.Handler
	LoginLimiter   *middleware.RateLimiter
	Metrics        http.Handler
	MetricsPath    string
	AllowedOrigins string
	OpenAPIPath    string
	Logger         *slog.Logger

	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	// Apply global middleware
	if deps.TrustProxyHeaders {
		router.Use(chiMiddleware.RealIP)
	}
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware(deps.Logger))

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, deps.Metrics)
	}

	// Serve the OpenAPI document at root (outside API prefix)
	if deps.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, deps.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if deps.Health != nil {
			r.Get("/health", deps.Health.healthCheckHandler)
			r.Get("/ping", deps.Health.pingHandler)
		}

		ah := deps.AuthHandler
		if ah == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Group(func(lr chi.Router) {
				if deps.LoginLimiter != nil {
					lr.Use(deps.LoginLimiter.Middleware)
				}
				lr.Post("/login", ah.Login)
				lr.Post("/login/oauth", ah.LoginOAuth)
				lr.Post("/password-reset", ah.RequestPasswordReset)
			})
			sr.Post("/refresh", ah.RefreshToken)
			sr.Post("/password-reset/confirm", ah.ConfirmPasswordReset)

			sr.Group(func(pr chi.Router) {
				pr.Use(ah.RequireAuth)
				pr.Use(middleware.SubjectLogging)
				pr.Post("/logout", ah.Logout)
				pr.Get("/me", ah.Me)
				pr.Get("/permissions", ah.Permissions)
				pr.Put("/password", ah.ChangePassword)
			})
		})

		uh := deps.UserHandler
		if uh == nil {
			return
		}

		r.Route("/users", func(ur chi.Router) {
			ur.Use(ah.RequireAuth)
			ur.Use(middleware.SubjectLogging)

			ur.With(ah.RequirePermission(PermissionUserRead)).Get("/{id}", uh.GetUser)

			ur.Group(func(adm chi.Router) {
				adm.Use(ah.RequireAdmin())
				adm.Post("/", uh.CreateUser)
				adm.Patch("/{id}/activate", uh.Activate)
				adm.Patch("/{id}/deactivate", uh.Deactivate)
				adm.Post("/{id}/roles", uh.AssignRole)
				adm.Delete("/{id}/roles/{role}", uh.RemoveRole)
			})
		})
	})
}
