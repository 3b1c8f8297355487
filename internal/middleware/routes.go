package middleware

import (
	"fmt"
	"strings"

	"crm-gateway/internal/config"
	"crm-gateway/internal/profile"
)

// PathClass is the coarse route category the session policy keys on.
type PathClass int

const (
	PathOther PathClass = iota
	PathRoot
	PathProtected
	PathAuthFlow
)

func (c PathClass) String() string {
	switch c {
	case PathRoot:
		return "root"
	case PathProtected:
		return "protected"
	case PathAuthFlow:
		return "auth_flow"
	default:
		return "other"
	}
}

// Routes holds the configured route prefixes and redirect targets.
type Routes struct {
	Root      string
	Protected string
	AuthFlow  string
	Login     string
	Dashboard string

	// AdminPrefixes are Protected subtrees that require RoleAdmin.
	AdminPrefixes []string
}

// NewRoutes builds Routes from configuration and rejects layouts in which
// following a redirect could itself redirect again.
func NewRoutes(cfg config.RoutesConfig) (Routes, error) {
	r := Routes{
		Root:          cleanPrefix(cfg.Root),
		Protected:     cleanPrefix(cfg.Protected),
		AuthFlow:      cleanPrefix(cfg.AuthFlow),
		Login:         cleanPrefix(cfg.Login),
		Dashboard:     cleanPrefix(cfg.Dashboard),
		AdminPrefixes: make([]string, 0, len(cfg.AdminPrefixes)),
	}
	for _, p := range cfg.AdminPrefixes {
		r.AdminPrefixes = append(r.AdminPrefixes, cleanPrefix(p))
	}

	if r.Protected == r.Root || r.AuthFlow == r.Root {
		return Routes{}, fmt.Errorf("route prefixes must differ from root %q", r.Root)
	}
	if c := r.Classify(r.Login); c != PathAuthFlow {
		return Routes{}, fmt.Errorf("login route %q must be under the auth flow prefix, classified %s", r.Login, c)
	}
	if c := r.Classify(r.Dashboard); c != PathProtected {
		return Routes{}, fmt.Errorf("dashboard route %q must be under the protected prefix, classified %s", r.Dashboard, c)
	}
	for _, p := range r.AdminPrefixes {
		if r.Classify(p) != PathProtected {
			return Routes{}, fmt.Errorf("admin prefix %q must be under the protected prefix", p)
		}
		if underPrefix(r.Dashboard, p) {
			return Routes{}, fmt.Errorf("admin prefix %q covers the dashboard root", p)
		}
	}
	return r, nil
}

// Classify maps a request path to its class. Root matches exactly; the
// other classes match by path segment, so "/dashboardx" is not Protected.
func (r Routes) Classify(path string) PathClass {
	path = cleanPrefix(path)
	switch {
	case path == r.Root:
		return PathRoot
	case underPrefix(path, r.Protected):
		return PathProtected
	case underPrefix(path, r.AuthFlow):
		return PathAuthFlow
	default:
		return PathOther
	}
}

// RequiredRole is the least role a profile needs for path.
func (r Routes) RequiredRole(path string) profile.Role {
	path = cleanPrefix(path)
	for _, p := range r.AdminPrefixes {
		if underPrefix(path, p) {
			return profile.RoleAdmin
		}
	}
	return profile.RoleUser
}

func underPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func cleanPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
