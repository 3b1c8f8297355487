package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/auth/credentials"
	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/config"
	"crm-gateway/internal/middleware"
	"crm-gateway/internal/profile"
	"crm-gateway/internal/provisioning"
	"crm-gateway/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

type harness struct {
	router   *gin.Engine
	logins   *credentials.Authenticator
	profiles *profile.MemoryStore
	sessions *session.RedisStore
}

type acceptAll struct{}

func (acceptAll) Verify(context.Context, session.Session) (*session.Session, error) { return nil, nil }

type fakeOAuth struct{}

func (fakeOAuth) Name() string { return "fake" }

func (fakeOAuth) AuthCodeURL(state, challenge string) string {
	return "https://idp.example/authorize?" + url.Values{"state": {state}, "code_challenge": {challenge}}.Encode()
}

func (fakeOAuth) ExchangeCode(_ context.Context, code, verifier string) (*provider.Grant, error) {
	return &provider.Grant{
		Identity:     auth.Identity{Provider: "fake", IdentityID: "sso-" + code, Email: "sso@crm.io"},
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

// newHarness wires the gateway the way the app does, on in-memory stores.
// A nil verifier uses the local identity service.
func newHarness(t *testing.T, verifier session.Verifier) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	routes, err := middleware.NewRoutes(config.Default().Routes)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	accounts := credentials.NewMemoryStore()
	identities := credentials.NewService(accounts)
	logins := credentials.NewAuthenticator(accounts)
	if verifier == nil {
		verifier = logins
	}
	profiles := profile.NewMemoryStore()

	lifetime := session.Lifetime{TTL: time.Hour, IdleTTL: 30 * time.Minute}
	cookieOpts := session.CookieOptions{}
	sessions := session.NewRedisStore(client)
	validator := session.NewValidator(sessions, verifier, lifetime, cookieOpts)

	provisioner := provisioning.NewService(identities, profiles, testTimeout)
	require.NoError(t, provisioner.Bootstrap(context.Background(), "Root Admin", "root@crm.io", "5550001111"))

	h := NewHandler(Options{
		Providers: provider.NewRegistry(fakeOAuth{}),
		Sessions:  sessions,
		Revoker:   validator,
		Passwords: logins,
		Lifetime:  lifetime,
		Cookie:    cookieOpts,
		Routes:    routes,
		Timeout:   testTimeout,
	})
	d := NewDashboard(provisioner, profile.NewService(profiles, identities, testTimeout))

	r := gin.New()
	r.Use(middleware.Gin(middleware.NewSessionMiddleware(validator, routes, testTimeout).Handler))
	h.RegisterRoutes(r)
	d.RegisterRoutes(r.Group(routes.Protected, middleware.Gin(middleware.NewGate(profiles, routes, testTimeout).RequireProfile)))

	return &harness{router: r, logins: logins, profiles: profiles, sessions: sessions}
}

// browser replays cookies between requests.
type browser struct {
	t       *testing.T
	handler http.Handler
	jar     map[string]*http.Cookie
}

func (h *harness) browser(t *testing.T) *browser {
	return &browser{t: t, handler: h.router, jar: map[string]*http.Cookie{}}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range b.jar {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.jar, c.Name)
			continue
		}
		b.jar[c.Name] = c
	}
	return rec
}

func (b *browser) login(email, password string) {
	b.t.Helper()
	rec := b.do(http.MethodPost, "/auth/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(b.t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(b.t, b.jar, session.CookieName)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLoginDashboardLogout(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)

	rec := b.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?error=please_login", rec.Header().Get("Location"))

	rec = b.do(http.MethodPost, "/auth/login", url.Values{"email": {"root@crm.io"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	b.login("root@crm.io", "Root@5550")

	rec = b.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["isAdmin"])
	assert.Equal(t, "admin", body["profile"].(map[string]any)["role"])

	// signed in users are sent from login to the dashboard
	rec = b.do(http.MethodGet, "/auth/login", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	sessionID := b.jar[session.CookieName].Value
	rec = b.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, b.jar, session.CookieName)
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, session.CookieName, cleared[len(cleared)-1].Name)
	assert.Negative(t, cleared[len(cleared)-1].MaxAge)

	gone, err := h.sessions.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	rec = b.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestLoginReplacesCarriedSession(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.login("root@crm.io", "Root@5550")
	stale := b.jar[session.CookieName].Value

	// an error marker lets a signed in browser reach the login form
	rec := b.do(http.MethodPost, "/auth/login?error=please_login", url.Values{"email": {"root@crm.io"}, "password": {"Root@5550"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fresh := b.jar[session.CookieName].Value
	assert.NotEqual(t, stale, fresh)

	ctx := context.Background()
	old, err := h.sessions.Get(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := h.sessions.Get(ctx, fresh)
	require.NoError(t, err)
	require.NotNil(t, current)

	rec = b.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminProvisionsMember(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.browser(t)
	admin.login("root@crm.io", "Root@5550")

	rec := admin.do(http.MethodGet, "/dashboard/users/password-preview?name=Ana+Lima&phone=9876543210", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana@9876", decode(t, rec)["password"])

	form := url.Values{
		"name":  {"Ana Lima"},
		"email": {"ana@crm.io"},
		"phone": {"9876543210"},
		"role":  {"user"},
	}
	rec = admin.do(http.MethodPost, "/dashboard/users", form)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	p, err := h.profiles.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", p.MobileNumber)

	dup := url.Values{
		"name":         {"Bruno Costa"},
		"email":        {"bruno@crm.io"},
		"mobileNumber": {"9876543210"},
		"role":         {"user"},
	}
	rec = admin.do(http.MethodPost, "/dashboard/users", dup)
	assert.Equal(t, http.StatusConflict, rec.Code)
	_, err = h.logins.Authenticate(context.Background(), "bruno@crm.io", "Bruno@9876")
	assert.ErrorIs(t, err, credentials.ErrInvalidCredentials)

	dupEmail := url.Values{
		"name":         {"Ana Souza"},
		"email":        {"ANA@crm.io"},
		"mobileNumber": {"1112223333"},
		"role":         {"user"},
	}
	rec = admin.do(http.MethodPost, "/dashboard/users", dupEmail)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email or mobile number already exists", decode(t, rec)["error"])

	rec = admin.do(http.MethodPost, "/dashboard/users", url.Values{"name": {"No Mail"}, "phone": {"1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = admin.do(http.MethodPost, "/dashboard/users", url.Values{
		"name": {"X"}, "email": {"x@crm.io"}, "phone": {"2"}, "role": {"owner"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the new member logs in with the derived password and is not an admin
	member := h.browser(t)
	member.login("ana@crm.io", "Ana@9876")

	rec = member.do(http.MethodPost, "/dashboard/users", form)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestSelfServiceProfile(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.browser(t)
	admin.login("root@crm.io", "Root@5550")

	rec := admin.do(http.MethodPost, "/dashboard/users", url.Values{
		"name": {"Ana Lima"}, "email": {"ana@crm.io"}, "mobileNumber": {"9876543210"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	member := h.browser(t)
	member.login("ana@crm.io", "Ana@9876")

	rec = member.do(http.MethodPost, "/dashboard/profile", url.Values{"name": {"Ana L."}, "mobileNumber": {"5550001111"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = member.do(http.MethodPost, "/dashboard/profile", url.Values{"name": {"Ana L."}, "mobileNumber": {"9998887777"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = member.do(http.MethodPost, "/dashboard/profile/avatar", url.Values{"avatarUrl": {"https://cdn.crm.io/a.png"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = member.do(http.MethodGet, "/dashboard/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode(t, rec)["profile"].(map[string]any)
	assert.Equal(t, "Ana L.", p["name"])
	assert.Equal(t, "9998887777", p["mobileNumber"])
	assert.Equal(t, "https://cdn.crm.io/a.png", p["avatarUrl"])

	rec = member.do(http.MethodPost, "/dashboard/profile/password", url.Values{"newPassword": {"abc"}, "confirmPassword": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = member.do(http.MethodPost, "/dashboard/profile/password", url.Values{"newPassword": {"s3cret!"}, "confirmPassword": {"other"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = member.do(http.MethodPost, "/dashboard/profile/password", url.Values{"newPassword": {"s3cret!"}, "confirmPassword": {"s3cret!"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := h.logins.Authenticate(context.Background(), "ana@crm.io", "s3cret!")
	assert.NoError(t, err)
}

func TestOAuthLoginWithoutProfileIsPhantom(t *testing.T) {
	h := newHarness(t, acceptAll{})
	b := h.browser(t)

	rec := b.do(http.MethodGet, "/auth/oauth/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = b.do(http.MethodGet, "/auth/oauth/fake", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)
	assert.NotEmpty(t, authURL.Query().Get("code_challenge"))

	rec = b.do(http.MethodGet, "/auth/callback/fake?code=abc&state=forged", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = b.do(http.MethodGet, "/auth/callback/fake?code=abc&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	require.Contains(t, b.jar, session.CookieName)

	// the identity is valid but was never provisioned
	rec = b.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?error=account_not_found", rec.Header().Get("Location"))

	rec = b.do(http.MethodGet, "/auth/login?error=account_not_found", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "account_not_found", body["error"])
	assert.Equal(t, []any{"fake"}, body["providers"])
}

func TestOAuthCallbackProviderError(t *testing.T) {
	h := newHarness(t, acceptAll{})
	b := h.browser(t)

	rec := b.do(http.MethodGet, "/auth/oauth/fake", nil)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")

	rec = b.do(http.MethodGet, "/auth/callback/fake?error=access_denied&state="+url.QueryEscape(state), nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?error=access_denied", rec.Header().Get("Location"))
	assert.NotContains(t, b.jar, session.CookieName)
}
