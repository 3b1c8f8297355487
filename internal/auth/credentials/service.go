package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"crm-gateway/internal/auth/provider"

	"github.com/google/uuid"
)

const ProviderName = "local"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = fmt.Errorf("credentials already exist: %w", provider.ErrIdentityExists)
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrIdentityNotFound   = errors.New("identity not found")
)

// Service is the write side of the local identity provider: it creates,
// deletes and re-keys email/password identities. Logins and session checks
// go through an Authenticator over the same store.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateIdentity registers a new identity and returns its ID.
// metadata["name"] becomes the display name.
func (s *Service) CreateIdentity(
	ctx context.Context,
	email string,
	password string,
	metadata map[string]string,
) (string, error) {

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	hash, version, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	c := Credential{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(addr.Address),
		DisplayName:  strings.TrimSpace(metadata["name"]),
		PasswordHash: hash,
		HashVersion:  version,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// DeleteIdentity removes the identity. Deleting an identity that is
// already gone succeeds.
func (s *Service) DeleteIdentity(ctx context.Context, identityID string) error {
	err := s.store.Delete(ctx, identityID)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil
	}
	return err
}

func (s *Service) SetPassword(ctx context.Context, identityID string, password string) error {
	hash, version, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, identityID, hash, version)
}

var _ provider.IdentityAdmin = (*Service)(nil)
