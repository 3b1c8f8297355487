package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("profile not found")
	ErrDuplicateContact = errors.New("email or mobile number already exists")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrUnknownField     = errors.New("unknown profile lookup field")
	ErrUnknownRole      = errors.New("unknown role")
)

// Role is the closed set of CRM roles. The zero value is not a role.
type Role int

const (
	RoleUser Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// ParseRole maps the stored/form representation onto Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "user":
		return RoleUser, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Profile is the locally owned record of a CRM team member, keyed by the
// identity ID issued by the identity provider.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	MobileNumber string    `json:"mobileNumber"`
	Role         Role      `json:"role"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (p Profile) validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	case strings.TrimSpace(p.Email) == "":
		return fmt.Errorf("%w: missing email", ErrInvalidProfile)
	case strings.TrimSpace(p.MobileNumber) == "":
		return fmt.Errorf("%w: missing mobile number", ErrInvalidProfile)
	case !p.Role.Valid():
		return fmt.Errorf("%w: invalid role", ErrInvalidProfile)
	}
	return nil
}

// Field names a unique column that FindByField may search.
type Field string

const (
	FieldEmail        Field = "email"
	FieldMobileNumber Field = "mobile_number"
)

func (f Field) valid() bool {
	return f == FieldEmail || f == FieldMobileNumber
}

// Update carries the self-service mutable attributes. Nil pointers are left untouched.
type Update struct {
	Name         *string
	MobileNumber *string
	AvatarURL    *string
}
