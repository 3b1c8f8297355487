package provisioning

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest         = errors.New("invalid provisioning request")
	ErrIdentityCreationFailed = errors.New("identity creation failed")
	ErrDuplicateContact       = errors.New("email or mobile number already exists")
	ErrProfileWriteFailed     = errors.New("failed to save user profile")
	ErrCompensationFailed     = errors.New("compensation failed, identity left without profile")
)

// Error is the typed result of a failed Provision call. Kind is one of the
// sentinels above and is matched with errors.Is; Cause is the underlying
// provider or store error.
type Error struct {
	Kind       error
	IdentityID string // set once the identity provider issued an ID
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.IdentityID != "" {
		msg += fmt.Sprintf(" (identity %s)", e.IdentityID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
