package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crm-gateway/internal/auth"
)

// ErrIdentityExists is wrapped by IdentityAdmin implementations when the
// email is already registered at the provider.
var ErrIdentityExists = errors.New("identity already exists")

// Grant is the result of a completed login at an external provider:
// the identity facts plus the tokens the session layer keeps server-side.
type Grant struct {
	Identity     auth.Identity
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// OAuthProvider defines the contract every redirect-based login provider
// must implement. Implementations return identity facts only and
// must not perform profile creation or session management.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "keycloak").
	Name() string

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for provider credentials.
	// No auth decisions are made here.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*Grant, error)
}

// SessionValidator resolves the caller of a request. A nil principal with
// a nil error means "no session". Returned cookies carry refreshed or
// cleared session state and must reach the response on every exit path.
type SessionValidator interface {
	ValidateSession(ctx context.Context, r *http.Request) (*auth.Principal, []*http.Cookie, error)
}

// IdentityAdmin is the privileged half of the identity provider. It is
// built from admin credentials and handed only to provisioning and the
// password-change path, never to request-path session checks.
type IdentityAdmin interface {
	CreateIdentity(ctx context.Context, email string, password string, metadata map[string]string) (string, error)
	DeleteIdentity(ctx context.Context, identityID string) error
	SetPassword(ctx context.Context, identityID string, password string) error
}
