package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"crm-gateway/internal/auth"
	"crm-gateway/internal/auth/provider"
	"crm-gateway/internal/logger"
	"crm-gateway/internal/session"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// Provider implements OAuth + OIDC login against a Keycloak realm and
// vouches for the sessions that login produced. It never creates profiles.
type Provider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New initializes a Keycloak OIDC provider using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8080/realms/crm
// publicBaseURL, when set, replaces scheme and host of the authorization
// endpoint so browsers are sent to the externally reachable address.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	redirectURL string,
	publicBaseURL string,
) (*Provider, error) {

	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	ep := oidcProvider.Endpoint()
	if publicBaseURL != "" {
		ep.AuthURL, err = rebase(ep.AuthURL, publicBaseURL)
		if err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     ep,
		Scopes: []string{
			oidc.ScopeOpenID,
			oidc.ScopeOfflineAccess,
			"email",
			"profile",
		},
	}

	return newProvider(oauthCfg, oidcProvider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

func newProvider(cfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *Provider {
	return &Provider{oauthConfig: cfg, verifier: verifier}
}

func rebase(endpoint, publicBaseURL string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse keycloak auth endpoint: %w", err)
	}
	pub, err := url.Parse(publicBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse keycloak public base url: %w", err)
	}
	u.Scheme = pub.Scheme
	u.Host = pub.Host
	return u.String(), nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and returns the verified
// identity with the tokens the session keeps.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*provider.Grant, error) {

	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		logger.Error("keycloak token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("keycloak did not return id_token")
	}

	identity, idToken, err := p.verify(ctx, rawIDToken)
	if err != nil {
		logger.Error("keycloak id_token verification failed", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	logger.Info("keycloak oidc verified", map[string]any{
		"issuer":         idToken.Issuer,
		"identity_id":    identity.IdentityID,
		"email_verified": identity.EmailVerified,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return &provider.Grant{
		Identity:     *identity,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		Expiry:       idToken.Expiry,
	}, nil
}

func (p *Provider) verify(ctx context.Context, rawIDToken string) (*auth.Identity, *oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, err
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("keycloak id_token claims parse failed: %w", err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, nil, errors.New("keycloak id_token missing required claims")
	}

	return &auth.Identity{
		Provider:      providerName,
		IdentityID:    claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, idToken, nil
}

// Verify implements session.Verifier. A live ID token needs nothing; an
// expired one is refreshed with the stored refresh token. Keycloak refusing
// the refresh (identity deleted, session ended at the realm) rejects the
// session; network trouble does not.
func (p *Provider) Verify(ctx context.Context, sess session.Session) (*session.Session, error) {
	if sess.IDToken == "" {
		return nil, fmt.Errorf("%w: session carries no id token", session.ErrRejected)
	}

	identity, _, err := p.verify(ctx, sess.IDToken)
	if err == nil {
		if identity.IdentityID != sess.IdentityID {
			return nil, fmt.Errorf("%w: token subject does not match session", session.ErrRejected)
		}
		return nil, nil
	}

	var expired *oidc.TokenExpiredError
	if !errors.As(err, &expired) {
		return nil, fmt.Errorf("keycloak: verify id token: %w", err)
	}
	if sess.RefreshToken == "" {
		return nil, fmt.Errorf("%w: id token expired and no refresh token", session.ErrRejected)
	}

	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: sess.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}).Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil &&
			(retrieve.Response.StatusCode == http.StatusBadRequest || retrieve.Response.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: refresh refused: %v", session.ErrRejected, err)
		}
		return nil, fmt.Errorf("keycloak: refresh token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: refresh returned no id_token", session.ErrRejected)
	}
	identity, idToken, err := p.verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("keycloak: verify refreshed id token: %w", err)
	}
	if identity.IdentityID != sess.IdentityID {
		return nil, fmt.Errorf("%w: refreshed subject does not match session", session.ErrRejected)
	}

	next := sess
	next.IDToken = rawIDToken
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	next.TokenExpiry = idToken.Expiry
	return &next, nil
}

var (
	_ provider.OAuthProvider = (*Provider)(nil)
	_ session.Verifier       = (*Provider)(nil)
)
