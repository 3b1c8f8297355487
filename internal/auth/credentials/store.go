package credentials

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store persists local identities. Create reports an email collision as
// ErrAlreadyRegistered; lookups, updates and deletes of a missing identity
// return ErrIdentityNotFound.
type Store interface {
	Create(ctx context.Context, c Credential) error
	GetByID(ctx context.Context, id string) (*Credential, error)
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	UpdatePassword(ctx context.Context, id, hash, version string) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps identities in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Credential)}
}

func (m *MemoryStore) Create(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, c.Email) {
			return ErrAlreadyRegistered
		}
	}
	if _, ok := m.byID[c.ID]; ok {
		return ErrAlreadyRegistered
	}
	m.byID[c.ID] = c
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &c, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.byID {
		if strings.EqualFold(c.Email, email) {
			c := c
			return &c, nil
		}
	}
	return nil, ErrIdentityNotFound
}

func (m *MemoryStore) UpdatePassword(_ context.Context, id, hash, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	c.PasswordHash = hash
	c.HashVersion = version
	c.UpdatedAt = time.Now().UTC()
	m.byID[id] = c
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ErrIdentityNotFound
	}
	delete(m.byID, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
