package credentials

import (
	"context"
	"errors"
	"fmt"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/session"
)

// Authenticator is the read-only side of the local identity provider. It
// checks passwords and vouches for sessions but cannot change identities.
type Authenticator struct {
	store Store
}

func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{store: store}
}

func (a *Authenticator) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (*auth.Identity, error) {

	c, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		// hide whether user exists or not
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(c.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &auth.Identity{
		Provider:      ProviderName,
		IdentityID:    c.ID,
		Email:         c.Email,
		EmailVerified: true,
	}, nil
}

// Verify implements session.Verifier. Local sessions carry no tokens, so
// the only check is that the identity still exists.
func (a *Authenticator) Verify(ctx context.Context, sess session.Session) (*session.Session, error) {
	_, err := a.store.GetByID(ctx, sess.IdentityID)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, fmt.Errorf("%w: identity %s no longer exists", session.ErrRejected, sess.IdentityID)
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

var _ session.Verifier = (*Authenticator)(nil)
