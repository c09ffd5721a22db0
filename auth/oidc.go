package auth

import (
	"context"
	"errors"
	"fmt"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/zpkg/registry/configuration"
)

// Delegated-identity errors, mapped to API error codes by the handlers.
var (
	ErrStateInvalid    = errors.New("auth: authorization state mismatch")
	ErrIdentityProof   = errors.New("auth: identity token failed verification")
	ErrAuthCodeExpired = errors.New("auth: authorization code rejected")
)

// OIDCClient speaks the authorization-code flow with PKCE against one OIDC
// provider. Discovery and JWKS caching (with deduplicated refresh) are
// handled by the go-oidc library.
type OIDCClient struct {
	name     string
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	config   oauth2.Config
}

// NewOIDCClient discovers the provider's endpoints from its issuer URL.
// redirectURL is the absolute callback URL for this provider.
func NewOIDCClient(ctx context.Context, name string, cfg configuration.OIDCProvider, redirectURL string) (*OIDCClient, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider %q: %w", name, err)
	}

	return &OIDCClient{
		name:     name,
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// Name returns the configured provider name.
func (c *OIDCClient) Name() string { return c.name }

// AuthCodeURL builds the provider authorize URL carrying the state nonce,
// the OIDC nonce and the PKCE S256 challenge for verifier.
func (c *OIDCClient) AuthCodeURL(state, nonce, verifier string) string {
	return c.config.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange redeems the authorization code, validates the ID token against
// the provider JWKS and the expected nonce, and extracts the identity
// claims.
func (c *OIDCClient) Exchange(ctx context.Context, code, verifier, nonce string) (*RemoteIdentity, error) {
	token, err := c.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthCodeExpired, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: no id_token in response", ErrIdentityProof)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityProof, err)
	}
	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrIdentityProof)
	}

	var claims struct {
		Email             string `json:"email"`
		EmailVerified     bool   `json:"email_verified"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityProof, err)
	}

	return &RemoteIdentity{
		Provider:          c.name,
		Subject:           idToken.Subject,
		Email:             claims.Email,
		EmailVerified:     claims.EmailVerified,
		PreferredUsername: claims.PreferredUsername,
	}, nil
}
