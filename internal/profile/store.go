package profile

import "context"

// Store persists profiles. Insert and Update report uniqueness collisions
// on email or mobile number as ErrDuplicateContact; lookups that find
// nothing return ErrNotFound.
type Store interface {
	FindByID(ctx context.Context, id string) (*Profile, error)
	FindByField(ctx context.Context, field Field, value string) (*Profile, error)
	Insert(ctx context.Context, p Profile) error
	Update(ctx context.Context, id string, u Update) error
}
