package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/zpkg/registry/configuration"
)

// OAuthClient speaks the plain OAuth2 authorization-code flow against one
// provider and reads the identity from its user-info endpoint.
type OAuthClient struct {
	name        string
	userInfoURL string
	config      oauth2.Config
}

// NewOAuthClient builds a client from explicit endpoint configuration.
func NewOAuthClient(name string, cfg configuration.OAuthProvider, redirectURL string) *OAuthClient {
	return &OAuthClient{
		name:        name,
		userInfoURL: cfg.UserInfoURL,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: redirectURL,
			Scopes:      []string{"read:user", "user:email"},
		},
	}
}

// Name returns the configured provider name.
func (c *OAuthClient) Name() string { return c.name }

// AuthCodeURL builds the provider authorize URL carrying the state nonce.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange redeems the authorization code and fetches the user-info
// document. Providers disagree on field names, so the common aliases are
// all accepted.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*RemoteIdentity, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthCodeExpired, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching user info: %v", ErrIdentityProof, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info status %d", ErrIdentityProof, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var info struct {
		ID       json.Number `json:"id"`
		Sub      string      `json:"sub"`
		Login    string      `json:"login"`
		Username string      `json:"username"`
		Email    string      `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: parsing user info: %v", ErrIdentityProof, err)
	}

	subject := info.Sub
	if subject == "" {
		subject = info.ID.String()
	}
	if subject == "" || subject == "0" {
		return nil, fmt.Errorf("%w: user info carries no subject", ErrIdentityProof)
	}

	username := info.Login
	if username == "" {
		username = info.Username
	}

	return &RemoteIdentity{
		Provider:          c.name,
		Subject:           subject,
		Email:             info.Email,
		EmailVerified:     info.Email != "",
		PreferredUsername: username,
	}, nil
}
