package session

import (
	"context"
	"errors"
	"time"

	"crm-gateway/internal/auth"
)

var ErrNotFound = errors.New("session: not found")

// Session represents an authenticated user session. The cookie carries only
// SessionID; provider tokens stay server-side.
type Session struct {
	SessionID  string `json:"session_id"`
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	Provider   string `json:"provider"`

	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry"`

	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	ExpiresAt         time.Time `json:"expires_at"` // idle expiry, never past AbsoluteExpiresAt
}

// Lifetime bounds a session: TTL is absolute, IdleTTL slides on activity.
type Lifetime struct {
	TTL     time.Duration
	IdleTTL time.Duration
}

func (l Lifetime) idleExpiry(now time.Time, absolute time.Time) time.Time {
	exp := now.Add(l.IdleTTL)
	if exp.After(absolute) {
		return absolute
	}
	return exp
}

// Start creates a fresh session record for a just-authenticated identity.
func Start(identity auth.Identity, lifetime Lifetime, now time.Time) (Session, error) {
	if identity.IdentityID == "" {
		return Session{}, errors.New("session: identity id is required")
	}
	id, err := GenerateID()
	if err != nil {
		return Session{}, err
	}
	absolute := now.Add(lifetime.TTL)
	return Session{
		SessionID:         id,
		IdentityID:        identity.IdentityID,
		Email:             identity.Email,
		Provider:          identity.Provider,
		CreatedAt:         now,
		AbsoluteExpiresAt: absolute,
		ExpiresAt:         lifetime.idleExpiry(now, absolute),
	}, nil
}

func (s Session) Principal() *auth.Principal {
	return &auth.Principal{IdentityID: s.IdentityID, Email: s.Email}
}

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) for an unknown session.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
