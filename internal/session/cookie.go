package session

import (
	"net/http"
	"time"
)

const (
	CookieName = "__Host-crm-session"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // should usually be empty for __Host- cookies
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// NewCookie builds the session cookie without writing it, so callers that
// collect cookies (the session validator) can hand them to whoever owns the
// response.
func NewCookie(sessionID string, expiresAt time.Time, opts CookieOptions) *http.Cookie {
	opts = opts.normalize()
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
}

// ExpiredCookie builds a cookie that removes the session cookie from the client.
func ExpiredCookie(opts CookieOptions) *http.Cookie {
	opts = opts.normalize()
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
}

// SetCookie issues the session cookie to the client.
func SetCookie(
	w http.ResponseWriter,
	sessionID string,
	expiresAt time.Time,
	opts CookieOptions,
) {
	http.SetCookie(w, NewCookie(sessionID, expiresAt, opts))
}
