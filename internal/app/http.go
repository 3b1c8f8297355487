package app

import (
	"context"
	"fmt"
	"net/http"

	"crm-gateway/internal/auth/credentials"
	"crm-gateway/internal/auth/handler"
	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/auth/provider/keycloak"
	"crm-gateway/internal/config"
	"crm-gateway/internal/logger"
	"crm-gateway/internal/middleware"
	"crm-gateway/internal/profile"
	"crm-gateway/internal/provisioning"
	"crm-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

// identityBackend is what the selected identity provider contributes to
// the wiring.
type identityBackend struct {
	registry  *provider.Registry
	verifier  session.Verifier
	admin     provider.IdentityAdmin
	passwords handler.PasswordAuthenticator
}

func setupIdentity(ctx context.Context, cfg config.Config, infra *Infra) (*identityBackend, error) {
	switch cfg.IdentityBackend {
	case config.BackendLocal:
		store := credentials.NewPostgresStore(infra.DB)
		logins := credentials.NewAuthenticator(store)
		return &identityBackend{
			registry:  provider.NewRegistry(),
			verifier:  logins,
			admin:     credentials.NewService(store),
			passwords: logins,
		}, nil

	case config.BackendKeycloak:
		k := cfg.Keycloak
		kc, err := keycloak.New(ctx, k.Issuer, k.ClientID, k.ClientSecret, k.RedirectURL, k.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		admin, err := keycloak.NewAdmin(k.AdminBaseURL, k.Realm, k.AdminClientID, k.AdminClientSecret)
		if err != nil {
			return nil, err
		}
		return &identityBackend{
			registry: provider.NewRegistry(kc),
			verifier: kc,
			admin:    admin,
		}, nil
	}
	return nil, fmt.Errorf("unknown identity backend %q", cfg.IdentityBackend)
}

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func buildRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	routes, err := middleware.NewRoutes(cfg.Routes)
	if err != nil {
		return nil, err
	}

	identity, err := setupIdentity(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	lifetime := session.Lifetime{TTL: cfg.SessionTTL, IdleTTL: cfg.SessionIdleTTL}
	cookieOpts := session.CookieOptions{Secure: cfg.CookieSecure}

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	validator := session.NewValidator(sessionStore, identity.verifier, lifetime, cookieOpts)

	profiles := profile.NewPostgresStore(infra.DB)
	provisioner := provisioning.NewService(identity.admin, profiles, cfg.IdentityTimeout)
	profileActions := profile.NewService(profiles, identity.admin, cfg.IdentityTimeout)

	if b := cfg.BootstrapAdmin; b.Email != "" {
		if err := provisioner.Bootstrap(ctx, b.Name, b.Email, b.MobileNumber); err != nil {
			return nil, err
		}
	}

	authHandler := handler.NewHandler(handler.Options{
		Providers: identity.registry,
		Sessions:  sessionStore,
		Revoker:   validator,
		Passwords: identity.passwords,
		Lifetime:  lifetime,
		Cookie:    cookieOpts,
		Routes:    routes,
		Timeout:   cfg.IdentityTimeout,
	})
	dashboard := handler.NewDashboard(provisioner, profileActions)

	sessionMiddleware := middleware.NewSessionMiddleware(validator, routes, cfg.IdentityTimeout)
	gate := middleware.NewGate(profiles, routes, cfg.StoreTimeout)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Gin(sessionMiddleware.Handler))

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET(routes.Root, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "crm-gateway",
			"login":   routes.Login,
			"error":   c.Query(middleware.ErrorParam),
		})
	})

	// ----------------------------
	// Protected Routes
	// ----------------------------

	protected := router.Group(routes.Protected, middleware.Gin(gate.RequireProfile))
	dashboard.RegisterRoutes(protected)

	logger.Info("routes registered", map[string]any{
		"identity_backend": cfg.IdentityBackend,
		"routes":           len(router.Routes()),
	})

	return router, nil
}
