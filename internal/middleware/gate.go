package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/logger"
	"crm-gateway/internal/profile"
)

var (
	ErrUnauthenticated    = errors.New("no authenticated principal")
	ErrPhantomProfile     = errors.New("authenticated identity has no profile")
	ErrRoleMismatch       = errors.New("profile role does not grant this route")
	ErrProfileUnavailable = errors.New("profile lookup failed")
)

// Verdict is the gate's answer. Allowed verdicts carry the verified
// profile; denied ones carry the redirect and the reason.
type Verdict struct {
	Profile  *profile.Profile
	Redirect Decision
	Reason   error
}

func (v Verdict) Allowed() bool {
	return v.Reason == nil && v.Profile != nil
}

// Gate authorizes requests in the protected tree against the stored
// profile. It fails closed: anything but a found profile with a sufficient
// role is a denial.
type Gate struct {
	profiles profile.Store
	routes   Routes
	timeout  time.Duration
}

func NewGate(profiles profile.Store, routes Routes, timeout time.Duration) *Gate {
	return &Gate{
		profiles: profiles,
		routes:   routes,
		timeout:  timeout,
	}
}

func (g *Gate) Authorize(ctx context.Context, principal *auth.Principal, required profile.Role) Verdict {
	if principal == nil {
		return Verdict{
			Redirect: loginWith(g.routes, MarkerPleaseLogin),
			Reason:   ErrUnauthenticated,
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	p, err := g.profiles.FindByID(lookupCtx, principal.IdentityID)
	cancel()

	switch {
	case errors.Is(err, profile.ErrNotFound):
		logger.Warn("authenticated identity has no profile", map[string]any{
			"event":       "gate_phantom_profile",
			"identity_id": principal.IdentityID,
			"email":       principal.Email,
		})
		return Verdict{
			Redirect: loginWith(g.routes, MarkerAccountNotFound),
			Reason:   ErrPhantomProfile,
		}
	case err != nil:
		logger.Error("profile lookup failed", map[string]any{
			"event":       "gate_profile_lookup_failed",
			"identity_id": principal.IdentityID,
			"error":       err.Error(),
		})
		return Verdict{
			Redirect: loginWith(g.routes, MarkerProfileUnavailable),
			Reason:   ErrProfileUnavailable,
		}
	}

	if !entitled(p.Role, required) {
		return Verdict{
			Redirect: RedirectTo(g.routes.Dashboard, url.Values{}),
			Reason:   ErrRoleMismatch,
		}
	}
	return Verdict{Profile: p}
}

// entitled reports whether a profile holding have may use a route that
// requires required. Unknown values on either side deny.
func entitled(have, required profile.Role) bool {
	switch required {
	case profile.RoleAdmin:
		switch have {
		case profile.RoleAdmin:
			return true
		case profile.RoleUser:
			return false
		}
	case profile.RoleUser:
		switch have {
		case profile.RoleAdmin, profile.RoleUser:
			return true
		}
	}
	return false
}

// RequireProfile wraps handlers of the protected tree. The required role
// comes from the request path.
func (g *Gate) RequireProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required := g.routes.RequiredRole(r.URL.Path)
		verdict := g.Authorize(r.Context(), PrincipalFromContext(r.Context()), required)
		if !verdict.Allowed() {
			if errors.Is(verdict.Reason, ErrRoleMismatch) {
				logger.Info("role mismatch, redirecting to dashboard", map[string]any{
					"event":    "gate_role_mismatch",
					"path":     r.URL.Path,
					"required": required.String(),
				})
			}
			http.Redirect(w, r, verdict.Redirect.Location(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), verdict.Profile)))
	})
}
