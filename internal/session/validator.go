package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/logger"
)

// ErrRejected marks a Verifier failure that permanently invalidates the
// session (identity deleted, refresh token revoked). Any other Verifier
// error is treated as transient and leaves the stored session alone.
var ErrRejected = errors.New("session rejected by identity provider")

// Verifier confirms with the identity provider that the identity behind a
// session is still live, refreshing provider tokens when they expired.
// A non-nil returned session carries changed token fields and replaces the
// stored one.
type Verifier interface {
	Verify(ctx context.Context, s Session) (*Session, error)
}

// Validator resolves the request's session cookie into a Principal. It is
// the only code that reads the session cookie on the request path.
type Validator struct {
	store    Store
	verifier Verifier
	lifetime Lifetime
	cookie   CookieOptions
	now      func() time.Time
}

func NewValidator(store Store, verifier Verifier, lifetime Lifetime, cookie CookieOptions) *Validator {
	return &Validator{
		store:    store,
		verifier: verifier,
		lifetime: lifetime,
		cookie:   cookie,
		now:      time.Now,
	}
}

// ValidateSession returns the principal for r, or nil when the request is
// unauthenticated. The returned cookies must be written to the response
// whatever the caller decides to do with the request: they carry refreshed
// expiry or clear a dead session cookie.
func (v *Validator) ValidateSession(ctx context.Context, r *http.Request) (*auth.Principal, []*http.Cookie, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil, nil
	}
	if !wellFormedID(cookie.Value) {
		return nil, v.cleared(), nil
	}

	sess, err := v.store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("session: load: %w", err)
	}
	if sess == nil {
		return nil, v.cleared(), nil
	}

	now := v.now()
	if now.After(sess.ExpiresAt) || (!sess.AbsoluteExpiresAt.IsZero() && now.After(sess.AbsoluteExpiresAt)) {
		_ = v.store.Delete(ctx, sess.SessionID)
		return nil, v.cleared(), nil
	}

	refreshed, err := v.verifier.Verify(ctx, *sess)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			_ = v.store.Delete(ctx, sess.SessionID)
			return nil, v.cleared(), err
		}
		return nil, nil, err
	}

	next := *sess
	if refreshed != nil {
		next = *refreshed
	} else if sess.ExpiresAt.Sub(now) > v.lifetime.IdleTTL/2 {
		return sess.Principal(), nil, nil
	}

	absolute := next.AbsoluteExpiresAt
	if absolute.IsZero() {
		absolute = next.ExpiresAt
	}
	next.ExpiresAt = v.lifetime.idleExpiry(now, absolute)

	if err := v.store.Update(ctx, next); err != nil {
		if errors.Is(err, ErrNotFound) {
			// logged out concurrently
			return nil, v.cleared(), nil
		}
		logger.Warn("session refresh not persisted", map[string]any{
			"event":       "session_refresh_failed",
			"identity_id": next.IdentityID,
			"error":       err.Error(),
		})
		return next.Principal(), nil, nil
	}

	return next.Principal(), []*http.Cookie{NewCookie(next.SessionID, next.ExpiresAt, v.cookie)}, nil
}

// Revoke deletes the session named by the request cookie, if any, and
// returns the cookie that clears it client-side.
func (v *Validator) Revoke(ctx context.Context, r *http.Request) *http.Cookie {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		_ = v.store.Delete(ctx, cookie.Value)
	}
	return ExpiredCookie(v.cookie)
}

func (v *Validator) cleared() []*http.Cookie {
	return []*http.Cookie{ExpiredCookie(v.cookie)}
}
