package middleware

import (
	"net/http"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/pkg/logger"
)

// SubjectLogging tags the request logger with the authenticated username. It
// must run after authentication has put the subject into the context.
func SubjectLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := internal.SubjectFromContext(r.Context())
		if subject == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logger.With(r.Context(), "username", subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
