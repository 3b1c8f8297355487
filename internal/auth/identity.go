package auth

// Identity represents a normalized authentication identity returned by an
// identity provider after a successful login. It contains facts only, no decisions.
type Identity struct {
	Provider      string // e.g. "keycloak", "local"
	IdentityID    string // provider-issued unique identifier (sub)
	Email         string
	EmailVerified bool
}

// Principal is the authenticated caller resolved from a valid session.
// It lives as long as the request; nothing here is trusted for authorization
// beyond "this identity holds a live session".
type Principal struct {
	IdentityID string
	Email      string
}
