package middleware

import (
	"fmt"
	"net/url"
	"testing"

	"crm-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutes(t *testing.T) Routes {
	t.Helper()
	r, err := NewRoutes(config.Default().Routes)
	require.NoError(t, err)
	return r
}

func TestClassify(t *testing.T) {
	routes := testRoutes(t)

	cases := map[string]PathClass{
		"/":                 PathRoot,
		"":                  PathRoot,
		"/dashboard":        PathProtected,
		"/dashboard/":       PathProtected,
		"/dashboard/users":  PathProtected,
		"/dashboardx":       PathOther,
		"/auth":             PathAuthFlow,
		"/auth/login":       PathAuthFlow,
		"/auth/callback/kc": PathAuthFlow,
		"/authority":        PathOther,
		"/logout":           PathOther,
		"/static/app.css":   PathOther,
	}
	for path, want := range cases {
		assert.Equal(t, want, routes.Classify(path), path)
	}
}

func TestRequiredRole(t *testing.T) {
	routes := testRoutes(t)

	assert.Equal(t, "admin", routes.RequiredRole("/dashboard/users").String())
	assert.Equal(t, "admin", routes.RequiredRole("/dashboard/users/password-preview").String())
	assert.Equal(t, "user", routes.RequiredRole("/dashboard/usersettings").String())
	assert.Equal(t, "user", routes.RequiredRole("/dashboard").String())
}

func TestNewRoutesRejectsLoopingLayouts(t *testing.T) {
	base := config.Default().Routes

	loginOutsideAuth := base
	loginOutsideAuth.Login = "/signin"
	_, err := NewRoutes(loginOutsideAuth)
	assert.Error(t, err)

	dashboardOutsideProtected := base
	dashboardOutsideProtected.Dashboard = "/home"
	_, err = NewRoutes(dashboardOutsideProtected)
	assert.Error(t, err)

	adminCoversDashboard := base
	adminCoversDashboard.AdminPrefixes = []string{"/dashboard"}
	_, err = NewRoutes(adminCoversDashboard)
	assert.Error(t, err)
}

var classPaths = map[PathClass]string{
	PathRoot:      "/",
	PathProtected: "/dashboard/deals",
	PathAuthFlow:  "/auth/login",
	PathOther:     "/health",
}

func TestDecisionTable(t *testing.T) {
	routes := testRoutes(t)

	const (
		allow       = "allow"
		toLogin     = "login"
		toDashboard = "dashboard"
	)
	rows := []struct {
		user     bool
		class    PathClass
		hasError bool
		want     string
	}{
		{false, PathProtected, false, toLogin},
		{false, PathProtected, true, toLogin},
		{false, PathAuthFlow, false, allow},
		{false, PathAuthFlow, true, allow},
		{false, PathRoot, false, allow},
		{false, PathRoot, true, allow},
		{false, PathOther, false, allow},
		{false, PathOther, true, allow},
		{true, PathAuthFlow, false, toDashboard},
		{true, PathRoot, false, toDashboard},
		{true, PathAuthFlow, true, allow},
		{true, PathRoot, true, allow},
		{true, PathProtected, false, allow},
		{true, PathProtected, true, allow},
		{true, PathOther, false, allow},
		{true, PathOther, true, allow},
	}
	require.Len(t, rows, 16)

	for _, row := range rows {
		name := fmt.Sprintf("user=%t/%s/error=%t", row.user, row.class, row.hasError)
		t.Run(name, func(t *testing.T) {
			q := url.Values{"tab": {"open"}}
			if row.hasError {
				q.Set(ErrorParam, "session_expired")
			}

			d := Decide(row.user, row.class, q, routes)

			switch row.want {
			case allow:
				assert.True(t, d.Allowed())
			case toLogin:
				require.False(t, d.Allowed())
				assert.Equal(t, routes.Login, d.Path())
				if row.hasError {
					assert.Equal(t, "session_expired", d.Query().Get(ErrorParam))
				} else {
					assert.Equal(t, MarkerPleaseLogin, d.Query().Get(ErrorParam))
				}
				assert.Equal(t, "open", d.Query().Get("tab"))
			case toDashboard:
				require.False(t, d.Allowed())
				assert.Equal(t, routes.Dashboard, d.Path())
				assert.False(t, d.Query().Has(ErrorParam))
			}
		})
	}
}

func TestDecideDoesNotMutateQuery(t *testing.T) {
	routes := testRoutes(t)
	q := url.Values{}

	d := Decide(false, PathProtected, q, routes)
	require.False(t, d.Allowed())
	assert.Empty(t, q)
	assert.Equal(t, "/auth/login?error=please_login", d.Location())
}

// follow applies Decide to the target of each redirect, as a browser
// would, and returns how many decisions it took to reach Allow.
func follow(routes Routes, authenticated bool, path string, q url.Values, maxHops int) (int, bool) {
	for hop := 1; hop <= maxHops; hop++ {
		d := Decide(authenticated, routes.Classify(path), q, routes)
		if d.Allowed() {
			return hop, true
		}
		path, q = d.Path(), d.Query()
	}
	return maxHops, false
}

func TestNoRedirectLoops(t *testing.T) {
	routes := testRoutes(t)

	paths := []string{"/", "/dashboard", "/dashboard/users", "/auth", "/auth/login", "/health", "/logout"}
	queries := []url.Values{
		{},
		{ErrorParam: {MarkerPleaseLogin}},
		{ErrorParam: {MarkerAccountNotFound}},
		{ErrorParam: {""}},
		{"next": {"/dashboard"}},
	}

	for _, authenticated := range []bool{false, true} {
		for _, path := range paths {
			for _, q := range queries {
				hops, ok := follow(routes, authenticated, path, q, 5)
				assert.True(t, ok, "user=%t %s?%s never settles", authenticated, path, q.Encode())
				assert.LessOrEqual(t, hops, 2, "user=%t %s?%s", authenticated, path, q.Encode())
			}
		}
	}
}
