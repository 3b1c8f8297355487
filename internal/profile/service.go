package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

const MinPasswordLength = 6

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// PasswordSetter replaces an identity's password at the identity provider.
type PasswordSetter interface {
	SetPassword(ctx context.Context, identityID string, password string) error
}

// Service implements the self-service profile actions. Callers pass the
// identity ID of the gate-verified profile, never a client-supplied one.
type Service struct {
	store     Store
	passwords PasswordSetter
	timeout   time.Duration
}

func NewService(store Store, passwords PasswordSetter, timeout time.Duration) *Service {
	return &Service{store: store, passwords: passwords, timeout: timeout}
}

// UpdateInfo changes the display name and mobile number.
// An empty mobile number leaves the stored one untouched.
func (s *Service) UpdateInfo(ctx context.Context, identityID, name, mobileNumber string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u := Update{}
	name = strings.TrimSpace(name)
	u.Name = &name

	mobileNumber = strings.TrimSpace(mobileNumber)
	if mobileNumber != "" {
		existing, err := s.store.FindByField(ctx, FieldMobileNumber, mobileNumber)
		switch {
		case err == nil && existing.ID != identityID:
			return ErrDuplicateContact
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}
		u.MobileNumber = &mobileNumber
	}

	return s.store.Update(ctx, identityID, u)
}

func (s *Service) UpdateAvatar(ctx context.Context, identityID, avatarURL string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	avatarURL = strings.TrimSpace(avatarURL)
	return s.store.Update(ctx, identityID, Update{AvatarURL: &avatarURL})
}

// ChangePassword touches only the identity provider; the profile row is unchanged.
func (s *Service) ChangePassword(ctx context.Context, identityID, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.passwords.SetPassword(ctx, identityID, newPassword)
}
