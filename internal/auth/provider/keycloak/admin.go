package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"crm-gateway/internal/auth/provider"

	"golang.org/x/oauth2/clientcredentials"
)

var ErrIdentityExists = fmt.Errorf("keycloak: %w", provider.ErrIdentityExists)

// APIError is a non-success answer from the Keycloak admin REST API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keycloak admin %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Admin talks to the Keycloak admin REST API with a service-account
// client. It holds a privileged credential and implements
// provider.IdentityAdmin.
type Admin struct {
	baseURL string
	realm   string
	client  *http.Client
}

// NewAdmin builds an admin client authenticating with the client
// credentials grant against the realm's token endpoint.
func NewAdmin(baseURL, realm, clientID, clientSecret string) (*Admin, error) {
	if baseURL == "" || realm == "" || clientID == "" || clientSecret == "" {
		return nil, errors.New("keycloak admin config missing required fields")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/token",
	}
	// the token source outlives any single request
	return &Admin{
		baseURL: baseURL,
		realm:   realm,
		client:  cc.Client(context.Background()),
	}, nil
}

func (a *Admin) usersURL(segments ...string) string {
	u := a.baseURL + "/admin/realms/" + url.PathEscape(a.realm) + "/users"
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	return u
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	FirstName     string                     `json:"firstName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Attributes    map[string][]string        `json:"attributes,omitempty"`
	Credentials   []credentialRepresentation `json:"credentials"`
}

// CreateIdentity creates an enabled realm user with the given password and
// returns the ID Keycloak assigned, taken from the Location header.
func (a *Admin) CreateIdentity(
	ctx context.Context,
	email string,
	password string,
	metadata map[string]string,
) (string, error) {

	attrs := map[string][]string{}
	for k, v := range metadata {
		attrs[k] = []string{v}
	}

	body := userRepresentation{
		Username:      strings.ToLower(strings.TrimSpace(email)),
		Email:         strings.TrimSpace(email),
		FirstName:     metadata["name"],
		Enabled:       true,
		EmailVerified: true,
		Attributes:    attrs,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: password, Temporary: false},
		},
	}

	resp, err := a.do(ctx, http.MethodPost, a.usersURL(), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return "", ErrIdentityExists
	default:
		return "", apiError("create user", resp)
	}

	location := resp.Header.Get("Location")
	id := path.Base(location)
	if location == "" || id == "." || id == "/" || id == "users" {
		return "", errors.New("keycloak admin create user: missing Location header")
	}
	return id, nil
}

// DeleteIdentity deletes the realm user. A user that is already gone counts
// as deleted.
func (a *Admin) DeleteIdentity(ctx context.Context, identityID string) error {
	resp, err := a.do(ctx, http.MethodDelete, a.usersURL(identityID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return apiError("delete user", resp)
	}
}

func (a *Admin) SetPassword(ctx context.Context, identityID string, password string) error {
	body := credentialRepresentation{Type: "password", Value: password, Temporary: false}
	resp, err := a.do(ctx, http.MethodPut, a.usersURL(identityID, "reset-password"), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError("reset password", resp)
	}
	return nil
}

func (a *Admin) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("keycloak admin: encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keycloak admin %s %s: %w", method, target, err)
	}
	return resp, nil
}

func apiError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

var _ provider.IdentityAdmin = (*Admin)(nil)
