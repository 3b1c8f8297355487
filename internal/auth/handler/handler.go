package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/logger"
	"crm-gateway/internal/middleware"
	"crm-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

// PasswordAuthenticator checks an email/password pair against the local
// identity store.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Identity, error)
}

// SessionRevoker ends the session named by the request cookie.
type SessionRevoker interface {
	Revoke(ctx context.Context, r *http.Request) *http.Cookie
}

type Options struct {
	Providers *provider.Registry
	Sessions  session.Store
	Revoker   SessionRevoker

	// Passwords is nil when the identity backend has no password login.
	Passwords PasswordAuthenticator

	Lifetime session.Lifetime
	Cookie   session.CookieOptions
	Routes   middleware.Routes
	Timeout  time.Duration
}

// Handler serves the auth flow: login page context, password and OIDC
// login, and logout. It only creates and ends sessions; authorization
// happens in the middleware.
type Handler struct {
	providers *provider.Registry
	sessions  session.Store
	revoker   SessionRevoker
	passwords PasswordAuthenticator
	lifetime  session.Lifetime
	cookie    session.CookieOptions
	routes    middleware.Routes
	timeout   time.Duration
	now       func() time.Time
}

func NewHandler(opts Options) *Handler {
	providers := opts.Providers
	if providers == nil {
		providers = provider.NewRegistry()
	}
	return &Handler{
		providers: providers,
		sessions:  opts.Sessions,
		revoker:   opts.Revoker,
		passwords: opts.Passwords,
		lifetime:  opts.Lifetime,
		cookie:    opts.Cookie,
		routes:    opts.Routes,
		timeout:   opts.Timeout,
		now:       time.Now,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET(h.routes.Login, h.loginPage)
	r.POST(h.routes.Login, h.Login)
	r.GET(h.routes.AuthFlow+"/oauth/:provider", h.login)
	r.GET(h.routes.AuthFlow+"/callback/:provider", h.callback)
	r.POST("/logout", h.Logout)
}

// loginPage returns the view context of the login page. The error marker
// is echoed unmodified.
func (h *Handler) loginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers":     h.providers.Names(),
		"passwordLogin": h.passwords != nil,
		"error":         c.Query(middleware.ErrorParam),
	})
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state := h.generateState(c)
	_, codeChallenge := h.generatePKCE(c)

	authURL := p.AuthCodeURL(state, codeChallenge)
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// single use
	h.setFlowCookie(c, stateCookieName, "", -1)

	errParam := c.Query("error")
	errDesc := c.Query("error_description")

	if errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"event":    "oidc_callback_error",
			"provider": providerName,
			"error":    errParam,
			"desc":     errDesc,
		})

		// start over at login, carrying the provider's reason
		c.Redirect(http.StatusFound, h.routes.Login+"?"+url.Values{middleware.ErrorParam: {errParam}}.Encode())
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", map[string]any{
			"event":    "oidc_callback_invalid",
			"provider": providerName,
		})
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}
	h.setFlowCookie(c, pkceCookieName, "", -1)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	grant, err := p.ExchangeCode(ctx, code, codeVerifier)
	cancel()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	sess, err := session.Start(grant.Identity, h.lifetime, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create session",
		})
		return
	}
	sess.IDToken = grant.IDToken
	sess.RefreshToken = grant.RefreshToken
	sess.TokenExpiry = grant.Expiry

	if !h.persistSession(c, sess) {
		return
	}

	c.Redirect(http.StatusFound, h.routes.Dashboard)
}

// persistSession replaces any session the request still carries with sess
// and issues its cookie. It writes the error response itself and reports
// false on failure.
func (h *Handler) persistSession(c *gin.Context, sess session.Session) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	// the expiring cookie is superseded by the one set below
	_ = h.revoker.Revoke(ctx, c.Request)

	if err := h.sessions.Create(ctx, sess); err != nil {
		logger.Error("session persist failed", map[string]any{
			"event":       "session_create_failed",
			"identity_id": sess.IdentityID,
			"error":       err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return false
	}

	session.SetCookie(c.Writer, sess.SessionID, sess.ExpiresAt, h.cookie)

	logger.Info("login succeeded", map[string]any{
		"event":       "login_success",
		"identity_id": sess.IdentityID,
		"provider":    sess.Provider,
		"ip":          c.ClientIP(),
	})
	return true
}

// Logout deletes the server-side session and clears the cookie. It is
// idempotent.
func (h *Handler) Logout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	cleared := h.revoker.Revoke(ctx, c.Request)
	cancel()

	http.SetCookie(c.Writer, cleared)

	if p := middleware.PrincipalFromGin(c); p != nil {
		logger.Info("logout", map[string]any{
			"event":       "logout",
			"identity_id": p.IdentityID,
			"ip":          c.ClientIP(),
		})
	}

	c.Status(http.StatusNoContent)
}
