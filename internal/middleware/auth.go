package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/logger"
)

// ErrSessionValidation wraps any failure of the session validator. It never
// reaches a handler: the request continues as unauthenticated.
var ErrSessionValidation = errors.New("session validation failed")

// SessionMiddleware runs once per request, resolves the caller and applies
// Decide. It is stateless and safe for concurrent use.
type SessionMiddleware struct {
	validator provider.SessionValidator
	routes    Routes
	timeout   time.Duration
}

func NewSessionMiddleware(validator provider.SessionValidator, routes Routes, timeout time.Duration) *SessionMiddleware {
	return &SessionMiddleware{
		validator: validator,
		routes:    routes,
		timeout:   timeout,
	}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), m.timeout)
		principal, cookies, err := m.validator.ValidateSession(ctx, r)
		cancel()

		if err != nil {
			logger.Warn("session validation failed, continuing unauthenticated", map[string]any{
				"event": "session_validation_failed",
				"path":  r.URL.Path,
				"error": fmt.Errorf("%w: %w", ErrSessionValidation, err).Error(),
			})
			principal = nil
		}

		// refreshed or cleared cookies go out on every exit
		for _, c := range cookies {
			http.SetCookie(w, c)
		}

		class := m.routes.Classify(r.URL.Path)
		decision := Decide(principal != nil, class, r.URL.Query(), m.routes)
		if !decision.Allowed() {
			http.Redirect(w, r, decision.Location(), http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
