package middleware

import (
	"context"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/profile"
)

// unexported, collision-proof context keys
type principalContextKeyType struct{}
type profileContextKeyType struct{}

var (
	principalKey = principalContextKeyType{}
	profileKey   = profileContextKeyType{}
)

func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller resolved by the session
// middleware, or nil for an unauthenticated request.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey).(*auth.Principal)
	return p
}

func WithProfile(ctx context.Context, p *profile.Profile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFromContext returns the profile the gate verified for this
// request. Handlers behind the gate may rely on it being non-nil.
func ProfileFromContext(ctx context.Context) (*profile.Profile, bool) {
	p, ok := ctx.Value(profileKey).(*profile.Profile)
	return p, ok && p != nil
}
