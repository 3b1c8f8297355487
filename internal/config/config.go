package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendLocal    = "local"
	BackendKeycloak = "keycloak"

	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

type Config struct {
	AppPort string `yaml:"app_port"`

	// IdentityBackend selects who owns identities: the local bcrypt
	// store or a Keycloak realm.
	IdentityBackend string `yaml:"identity_backend"`

	Keycloak KeycloakConfig `yaml:"keycloak"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	DatabaseDSN    string `yaml:"database_dsn"`
	DatabaseDriver string `yaml:"database_driver"`

	CookieSecure   bool          `yaml:"cookie_secure"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	IdentityTimeout time.Duration `yaml:"identity_timeout"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`

	Routes RoutesConfig `yaml:"routes"`

	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin"`
}

type KeycloakConfig struct {
	Issuer        string `yaml:"issuer"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	RedirectURL   string `yaml:"redirect_url"`
	PublicBaseURL string `yaml:"public_base_url"`

	// Admin API credentials. Only the provisioning path receives a client
	// built from these.
	AdminBaseURL      string `yaml:"admin_base_url"`
	Realm             string `yaml:"realm"`
	AdminClientID     string `yaml:"admin_client_id"`
	AdminClientSecret string `yaml:"admin_client_secret"`
}

type RoutesConfig struct {
	Root          string   `yaml:"root"`
	Protected     string   `yaml:"protected"`
	AuthFlow      string   `yaml:"auth_flow"`
	Login         string   `yaml:"login"`
	Dashboard     string   `yaml:"dashboard"`
	AdminPrefixes []string `yaml:"admin_prefixes"`
}

type BootstrapAdminConfig struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	MobileNumber string `yaml:"mobile_number"`
}

func Default() Config {
	return Config{
		AppPort:         "8080",
		IdentityBackend: BackendLocal,
		RedisAddr:       "localhost:6379",
		DatabaseDriver:  DriverPgx,
		CookieSecure:    true,
		SessionTTL:      24 * time.Hour,
		SessionIdleTTL:  2 * time.Hour,
		IdentityTimeout: 5 * time.Second,
		StoreTimeout:    3 * time.Second,
		Keycloak: KeycloakConfig{
			Realm: "crm",
		},
		Routes: RoutesConfig{
			Root:          "/",
			Protected:     "/dashboard",
			AuthFlow:      "/auth",
			Login:         "/auth/login",
			Dashboard:     "/dashboard",
			AdminPrefixes: []string{"/dashboard/users"},
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML
// file at path, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	envString("APP_PORT", &cfg.AppPort)
	envString("IDENTITY_BACKEND", &cfg.IdentityBackend)

	envString("KEYCLOAK_ISSUER", &cfg.Keycloak.Issuer)
	envString("KEYCLOAK_CLIENT_ID", &cfg.Keycloak.ClientID)
	envString("KEYCLOAK_CLIENT_SECRET", &cfg.Keycloak.ClientSecret)
	envString("KEYCLOAK_REDIRECT_URL", &cfg.Keycloak.RedirectURL)
	envString("KEYCLOAK_PUBLIC_BASE_URL", &cfg.Keycloak.PublicBaseURL)
	envString("KEYCLOAK_ADMIN_BASE_URL", &cfg.Keycloak.AdminBaseURL)
	envString("KEYCLOAK_REALM", &cfg.Keycloak.Realm)
	envString("KEYCLOAK_ADMIN_CLIENT_ID", &cfg.Keycloak.AdminClientID)
	envString("KEYCLOAK_ADMIN_CLIENT_SECRET", &cfg.Keycloak.AdminClientSecret)

	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.RedisPassword)

	envString("DATABASE_DSN", &cfg.DatabaseDSN)
	envString("DATABASE_DRIVER", &cfg.DatabaseDriver)

	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.CookieSecure)

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"SESSION_TTL", &cfg.SessionTTL},
		{"SESSION_IDLE_TTL", &cfg.SessionIdleTTL},
		{"IDENTITY_TIMEOUT", &cfg.IdentityTimeout},
		{"STORE_TIMEOUT", &cfg.StoreTimeout},
	}
	for _, d := range durations {
		if err := envDuration(d.name, d.dst); err != nil {
			return Config{}, err
		}
	}

	envString("ROUTE_ROOT", &cfg.Routes.Root)
	envString("ROUTE_PROTECTED", &cfg.Routes.Protected)
	envString("ROUTE_AUTH_FLOW", &cfg.Routes.AuthFlow)
	envString("ROUTE_LOGIN", &cfg.Routes.Login)
	envString("ROUTE_DASHBOARD", &cfg.Routes.Dashboard)
	if list := envList("ADMIN_PREFIXES"); len(list) > 0 {
		cfg.Routes.AdminPrefixes = list
	}

	envString("BOOTSTRAP_ADMIN_EMAIL", &cfg.BootstrapAdmin.Email)
	envString("BOOTSTRAP_ADMIN_NAME", &cfg.BootstrapAdmin.Name)
	envString("BOOTSTRAP_ADMIN_MOBILE", &cfg.BootstrapAdmin.MobileNumber)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.IdentityBackend {
	case BackendLocal:
	case BackendKeycloak:
		k := c.Keycloak
		if k.Issuer == "" || k.ClientID == "" || k.RedirectURL == "" {
			errs = append(errs, errors.New("keycloak backend requires issuer, client_id and redirect_url"))
		}
		if k.AdminBaseURL == "" || k.Realm == "" || k.AdminClientID == "" || k.AdminClientSecret == "" {
			errs = append(errs, errors.New("keycloak backend requires admin_base_url, realm and admin client credentials"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown identity backend %q", c.IdentityBackend))
	}

	switch c.DatabaseDriver {
	case DriverPgx, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DatabaseDriver))
	}

	if c.SessionTTL <= 0 || c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("session ttls must be positive"))
	}
	if c.IdentityTimeout <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("call timeouts must be positive"))
	}

	r := c.Routes
	for name, p := range map[string]string{
		"root":      r.Root,
		"protected": r.Protected,
		"auth_flow": r.AuthFlow,
		"login":     r.Login,
		"dashboard": r.Dashboard,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("route %s must start with '/': %q", name, p))
		}
	}

	return errors.Join(errs...)
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envList(name string) []string {
	var out []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
