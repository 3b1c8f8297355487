package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.IdentityBackend)
	assert.Equal(t, "/dashboard", cfg.Routes.Protected)
	assert.Equal(t, "/auth", cfg.Routes.AuthFlow)
	assert.Equal(t, "/", cfg.Routes.Root)
	assert.Equal(t, []string{"/dashboard/users"}, cfg.Routes.AdminPrefixes)
	assert.Equal(t, 5*time.Second, cfg.IdentityTimeout)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_port: "9000"
store_timeout: 750ms
routes:
  protected: /app
  dashboard: /app
  admin_prefixes: [/app/admin]
`), 0o600))

	t.Setenv("APP_PORT", "9100")
	t.Setenv("ADMIN_PREFIXES", "/app/admin, /app/team")
	t.Setenv("COOKIE_SECURE", "off")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.AppPort)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, "/app", cfg.Routes.Protected)
	assert.Equal(t, []string{"/app/admin", "/app/team"}, cfg.Routes.AdminPrefixes)
	assert.False(t, cfg.CookieSecure)
}

func TestLoadRejectsIncompleteKeycloak(t *testing.T) {
	t.Setenv("IDENTITY_BACKEND", BackendKeycloak)
	t.Setenv("KEYCLOAK_ISSUER", "http://kc/realms/crm")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SESSION_TTL", "forever")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_TTL")
}

func TestValidateRoutePrefixes(t *testing.T) {
	cfg := Default()
	cfg.Routes.Login = "auth/login"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}
