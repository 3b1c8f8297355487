package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/logger"
	"crm-gateway/internal/profile"
)

const (
	stepCreateIdentity = "create_identity"
	stepInsertProfile  = "insert_profile"
)

// Request is the provisioning input. All fields are required.
type Request struct {
	Name         string
	Email        string
	MobileNumber string
	Role         profile.Role
}

func (r Request) normalized() (Request, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.MobileNumber = strings.TrimSpace(r.MobileNumber)

	var missing []string
	if r.Name == "" {
		missing = append(missing, "name")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.MobileNumber == "" {
		missing = append(missing, "mobileNumber")
	}
	if len(missing) > 0 {
		return r, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if !r.Role.Valid() {
		return r, profile.ErrUnknownRole
	}
	return r, nil
}

// Service creates CRM members: an identity at the identity provider and
// the matching profile row, as one compensated unit.
type Service struct {
	identities provider.IdentityAdmin
	profiles   profile.Store
	timeout    time.Duration
}

func NewService(identities provider.IdentityAdmin, profiles profile.Store, timeout time.Duration) *Service {
	return &Service{
		identities: identities,
		profiles:   profiles,
		timeout:    timeout,
	}
}

// Provision creates the identity, then the profile. If the profile cannot
// be written, the identity created by this call, and only that one, is
// deleted again. Errors are *Error values.
//
// Provision ignores cancellation of ctx: once the identity exists the
// unwind must be allowed to finish. Each provider and store call is still
// bounded by the service timeout.
func (s *Service) Provision(ctx context.Context, req Request) (string, error) {
	req, err := req.normalized()
	if err != nil {
		return "", &Error{Kind: ErrInvalidRequest, Cause: err}
	}

	ctx = context.WithoutCancel(ctx)
	password := DerivePassword(req.Name, req.MobileNumber)

	var identityID string

	saga := NewSaga(
		Step{
			Name: stepCreateIdentity,
			Action: func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()

				id, err := s.identities.CreateIdentity(callCtx, req.Email, password, map[string]string{
					"name": req.Name,
				})
				if err != nil {
					return err
				}
				if id == "" {
					return errors.New("identity provider returned an empty id")
				}
				identityID = id
				return nil
			},
			Compensate: func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()

				return s.identities.DeleteIdentity(callCtx, identityID)
			},
		},
		Step{
			Name: stepInsertProfile,
			Action: func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()

				return s.profiles.Insert(callCtx, profile.Profile{
					ID:           identityID,
					Email:        req.Email,
					Name:         req.Name,
					MobileNumber: req.MobileNumber,
					Role:         req.Role,
				})
			},
		},
	)

	if err := saga.Run(ctx); err != nil {
		return "", s.translate(err, identityID, req)
	}

	logger.Info("member provisioned", map[string]any{
		"event":       "provisioning_completed",
		"identity_id": identityID,
		"role":        req.Role.String(),
	})
	return identityID, nil
}

func (s *Service) translate(err error, identityID string, req Request) error {
	var failure *StepError
	if !errors.As(err, &failure) {
		return &Error{Kind: ErrProfileWriteFailed, IdentityID: identityID, Cause: err}
	}

	if failure.Step == stepCreateIdentity {
		if errors.Is(failure.Err, provider.ErrIdentityExists) {
			logger.Warn("identity already registered", map[string]any{
				"event": "provisioning_duplicate_email",
				"email": req.Email,
			})
			return &Error{Kind: ErrDuplicateContact, Cause: failure.Err}
		}
		logger.Warn("identity creation rejected", map[string]any{
			"event": "provisioning_identity_failed",
			"email": req.Email,
			"error": failure.Err.Error(),
		})
		return &Error{Kind: ErrIdentityCreationFailed, Cause: failure.Err}
	}

	if failure.CompensationErr != nil {
		logger.Error("compensating identity delete failed; identity has no profile and needs manual cleanup", map[string]any{
			"event":              "provisioning_compensation_failed",
			"identity_id":        identityID,
			"email":              req.Email,
			"error":              failure.Err.Error(),
			"compensation_error": failure.CompensationErr.Error(),
		})
		return &Error{
			Kind:       ErrCompensationFailed,
			IdentityID: identityID,
			Cause:      errors.Join(failure.Err, failure.CompensationErr),
		}
	}

	logger.Warn("profile write failed; identity rolled back", map[string]any{
		"event":       "provisioning_rolled_back",
		"identity_id": identityID,
		"error":       failure.Err.Error(),
	})

	if errors.Is(failure.Err, profile.ErrDuplicateContact) {
		return &Error{Kind: ErrDuplicateContact, Cause: failure.Err}
	}
	return &Error{Kind: ErrProfileWriteFailed, Cause: failure.Err}
}

// Bootstrap provisions an admin member unless a profile with that email
// already exists. It lets a fresh deployment reach the admin pages.
func (s *Service) Bootstrap(ctx context.Context, name, email, mobileNumber string) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.profiles.FindByField(lookupCtx, profile.FieldEmail, email)
	cancel()

	switch {
	case err == nil:
		return nil
	case !errors.Is(err, profile.ErrNotFound):
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	id, err := s.Provision(ctx, Request{
		Name:         name,
		Email:        email,
		MobileNumber: mobileNumber,
		Role:         profile.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	logger.Info("bootstrap admin provisioned", map[string]any{
		"event":       "bootstrap_admin_created",
		"identity_id": id,
	})
	return nil
}
