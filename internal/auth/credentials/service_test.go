package credentials

import (
	"context"
	"testing"
	"time"

	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)
	logins := NewAuthenticator(store)

	id, err := svc.CreateIdentity(ctx, "Ana@CRM.io", "Ana@9876", map[string]string{"name": "Ana Lima"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	identity, err := logins.Authenticate(ctx, "ana@crm.io", "Ana@9876")
	require.NoError(t, err)
	assert.Equal(t, id, identity.IdentityID)
	assert.Equal(t, "ana@crm.io", identity.Email)
	assert.Equal(t, ProviderName, identity.Provider)

	_, err = logins.Authenticate(ctx, "ana@crm.io", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = logins.Authenticate(ctx, "nobody@crm.io", "Ana@9876")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateIdentityRejections(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	_, err := svc.CreateIdentity(ctx, "not-an-email", "Ana@9876", nil)
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.CreateIdentity(ctx, "ana@crm.io", "A@98", nil)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.CreateIdentity(ctx, "ana@crm.io", "Ana@9876", nil)
	require.NoError(t, err)
	_, err = svc.CreateIdentity(ctx, "ANA@crm.io", "Ana@9876", nil)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.ErrorIs(t, err, provider.ErrIdentityExists)
}

func TestDeleteIdentityIsIdempotentAndRejectsSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)
	verifier := NewAuthenticator(store)

	id, err := svc.CreateIdentity(ctx, "ana@crm.io", "Ana@9876", nil)
	require.NoError(t, err)

	sess := session.Session{SessionID: "s", IdentityID: id, ExpiresAt: time.Now().Add(time.Hour)}
	refreshed, err := verifier.Verify(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, refreshed)

	require.NoError(t, svc.DeleteIdentity(ctx, id))
	require.NoError(t, svc.DeleteIdentity(ctx, id))

	_, err = verifier.Verify(ctx, sess)
	assert.ErrorIs(t, err, session.ErrRejected)
}

func TestSetPassword(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)
	logins := NewAuthenticator(store)

	id, err := svc.CreateIdentity(ctx, "ana@crm.io", "Ana@9876", nil)
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, id, "n3w-secret"))
	_, err = logins.Authenticate(ctx, "ana@crm.io", "Ana@9876")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = logins.Authenticate(ctx, "ana@crm.io", "n3w-secret")
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.SetPassword(ctx, "missing", "n3w-secret"), ErrIdentityNotFound)
}
