package profile

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same uniqueness rules as the
// users table. Used by tests and the local development backend.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		now:      time.Now,
	}
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) FindByField(_ context.Context, field Field, value string) (*Profile, error) {
	if !field.valid() {
		return nil, ErrUnknownField
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.profiles {
		if fieldValue(p, field) == normalizeField(field, value) {
			p := p
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Insert(_ context.Context, p Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	p.Email = normalizeField(FieldEmail, p.Email)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.profiles[p.ID]; exists {
		return ErrDuplicateContact
	}
	if m.collides("", p.Email, p.MobileNumber) {
		return ErrDuplicateContact
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	if u.MobileNumber != nil {
		if m.collides(id, "", *u.MobileNumber) {
			return ErrDuplicateContact
		}
		p.MobileNumber = *u.MobileNumber
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	m.profiles[id] = p
	return nil
}

// collides must be called with mu held.
func (m *MemoryStore) collides(selfID, email, mobile string) bool {
	for id, existing := range m.profiles {
		if id == selfID {
			continue
		}
		if email != "" && existing.Email == email {
			return true
		}
		if mobile != "" && existing.MobileNumber == mobile {
			return true
		}
	}
	return false
}

func fieldValue(p Profile, field Field) string {
	switch field {
	case FieldEmail:
		return p.Email
	case FieldMobileNumber:
		return p.MobileNumber
	}
	return ""
}

func normalizeField(field Field, value string) string {
	value = strings.TrimSpace(value)
	if field == FieldEmail {
		return strings.ToLower(value)
	}
	return value
}

var _ Store = (*MemoryStore)(nil)
