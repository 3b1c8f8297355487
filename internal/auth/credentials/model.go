package credentials

import "time"

// Credential is an identity owned by the local identity provider.
type Credential struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	HashVersion  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
