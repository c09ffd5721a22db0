package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/auth"
	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// spaCallbackPath is where the browser lands after a delegated-identity
// round trip. Success carries the token in the fragment so it never hits
// server logs; failure carries an error code in the query.
const spaCallbackPath = "/auth/callback"

// oidcLoginDispatcher constructs the OIDC login redirect handler.
func oidcLoginDispatcher(ctx *Context, r *http.Request) http.Handler {
	federationHandler := &federationHandler{Context: ctx, Provider: getProvider(ctx)}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(federationHandler.OIDCLogin),
	}
}

// oidcCallbackDispatcher constructs the OIDC callback handler.
func oidcCallbackDispatcher(ctx *Context, r *http.Request) http.Handler {
	federationHandler := &federationHandler{Context: ctx, Provider: getProvider(ctx)}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(federationHandler.OIDCCallback),
	}
}

// oauthLoginDispatcher constructs the OAuth login redirect handler.
func oauthLoginDispatcher(ctx *Context, r *http.Request) http.Handler {
	federationHandler := &federationHandler{Context: ctx, Provider: getProvider(ctx)}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(federationHandler.OAuthLogin),
	}
}

// oauthCallbackDispatcher constructs the OAuth callback handler.
func oauthCallbackDispatcher(ctx *Context, r *http.Request) http.Handler {
	federationHandler := &federationHandler{Context: ctx, Provider: getProvider(ctx)}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(federationHandler.OAuthCallback),
	}
}

type federationHandler struct {
	*Context

	Provider string
}

// OIDCLogin starts the authorization-code flow with PKCE: stash the state
// nonce, OIDC nonce and code verifier in a sealed cookie, then redirect to
// the provider.
func (fh *federationHandler) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	client, ok := fh.oidc[fh.Provider]
	if !ok {
		fh.Errors = append(fh.Errors,
			v1.ErrorCodeNameInvalid.WithDetail("unknown provider "+fh.Provider))
		return
	}

	state := auth.FlowState{
		Provider: fh.Provider,
		State:    auth.RandomNonce(),
		Nonce:    auth.RandomNonce(),
		Verifier: auth.RandomNonce(),
	}
	if err := fh.states.Set(w, state); err != nil {
		dcontext.GetLogger(fh).Errorf("error sealing flow state: %v", err)
		fh.Errors = append(fh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	http.Redirect(w, r, client.AuthCodeURL(state.State, state.Nonce, state.Verifier),
		http.StatusFound)
}

// OIDCCallback finishes the flow: verify state, exchange the code,
// validate the ID token, then map the remote identity onto a local
// account.
func (fh *federationHandler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	client, ok := fh.oidc[fh.Provider]
	if !ok {
		fh.Errors = append(fh.Errors,
			v1.ErrorCodeNameInvalid.WithDetail("unknown provider "+fh.Provider))
		return
	}

	state, err := fh.states.Get(r, r.URL.Query().Get("state"))
	if err != nil || state.Provider != fh.Provider {
		fh.Errors = append(fh.Errors, v1.ErrorCodeStateInvalid)
		return
	}
	fh.states.Clear(w)

	identity, err := client.Exchange(fh, r.URL.Query().Get("code"), state.Verifier, state.Nonce)
	if err != nil {
		fh.callbackFailure(w, r, err)
		return
	}

	fh.completeSignIn(w, r, identity)
}

// OAuthLogin starts the plain OAuth2 authorization-code flow.
func (fh *federationHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	client, ok := fh.oauth[fh.Provider]
	if !ok {
		fh.Errors = append(fh.Errors,
			v1.ErrorCodeNameInvalid.WithDetail("unknown provider "+fh.Provider))
		return
	}

	state := auth.FlowState{
		Provider: fh.Provider,
		State:    auth.RandomNonce(),
	}
	if err := fh.states.Set(w, state); err != nil {
		dcontext.GetLogger(fh).Errorf("error sealing flow state: %v", err)
		fh.Errors = append(fh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	http.Redirect(w, r, client.AuthCodeURL(state.State), http.StatusFound)
}

// OAuthCallback finishes the plain OAuth2 flow.
func (fh *federationHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	client, ok := fh.oauth[fh.Provider]
	if !ok {
		fh.Errors = append(fh.Errors,
			v1.ErrorCodeNameInvalid.WithDetail("unknown provider "+fh.Provider))
		return
	}

	state, err := fh.states.Get(r, r.URL.Query().Get("state"))
	if err != nil || state.Provider != fh.Provider {
		fh.Errors = append(fh.Errors, v1.ErrorCodeStateInvalid)
		return
	}
	fh.states.Clear(w)

	identity, err := client.Exchange(fh, r.URL.Query().Get("code"))
	if err != nil {
		fh.callbackFailure(w, r, err)
		return
	}

	fh.completeSignIn(w, r, identity)
}

// completeSignIn maps a vouched-for remote identity onto a local account:
// an already-linked identity signs straight in; an authenticated session
// links the identity to the current user; a fresh identity whose email is
// unclaimed creates a new account. A matching email on an unauthenticated
// flow is a conflict, never an automatic link.
func (fh *federationHandler) completeSignIn(w http.ResponseWriter, r *http.Request, identity *auth.RemoteIdentity) {
	user, err := fh.catalog.GetUserByIdentity(fh, identity.Provider, identity.Subject)
	switch {
	case err == nil:
		// Linked identity; sign in.

	case err != catalog.ErrNotFound:
		dcontext.GetLogger(fh).Errorf("error resolving identity: %v", err)
		fh.Errors = append(fh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return

	case fh.User != nil:
		// Authenticated session linking a new provider.
		if err := fh.catalog.LinkIdentity(fh, fh.User.ID, identity.Provider,
			identity.Subject, identity.PreferredUsername); err != nil {
			if err == catalog.ErrAlreadyLinked {
				fh.redirectError(w, r, "identity_linked_elsewhere")
				return
			}
			dcontext.GetLogger(fh).Errorf("error linking identity: %v", err)
			fh.Errors = append(fh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
			return
		}
		user = fh.User

	default:
		user, err = fh.createFederatedUser(identity)
		if err != nil {
			if err == catalog.ErrEmailTaken {
				fh.redirectError(w, r, v1.ErrorCodeEmailInUse.Descriptor().Value)
				return
			}
			dcontext.GetLogger(fh).Errorf("error creating federated user: %v", err)
			fh.Errors = append(fh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
			return
		}
	}

	// The session machinery is shared with local login; both handlers
	// append errors to the same request context.
	session, err := (&authHandler{Context: fh.Context}).issueSession(user)
	if err != nil {
		return
	}

	dcontext.GetLogger(fh).Infof("federated sign-in for %q via %s", user.Username, identity.Provider)
	http.Redirect(w, r, spaCallbackPath+"#token="+url.QueryEscape(session.Token), http.StatusFound)
}

// createFederatedUser registers a fresh account for a first federated
// sign-in. The email must be vouched for and unclaimed; the username comes
// from the identity with a numeric suffix when taken.
func (fh *federationHandler) createFederatedUser(identity *auth.RemoteIdentity) (*catalog.User, error) {
	if identity.Email == "" || !identity.EmailVerified {
		return nil, errors.New("provider did not vouch for an email")
	}

	if _, err := fh.catalog.GetUserByEmail(fh, identity.Email); err == nil {
		return nil, catalog.ErrEmailTaken
	} else if err != catalog.ErrNotFound {
		return nil, err
	}

	username, err := fh.catalog.NextFreeUsername(fh, identity.UsernameBase())
	if err != nil {
		return nil, err
	}

	user, err := fh.catalog.CreateUser(fh, username, identity.Email, "")
	if err != nil {
		return nil, err
	}

	if err := fh.catalog.LinkIdentity(fh, user.ID, identity.Provider,
		identity.Subject, identity.PreferredUsername); err != nil {
		return nil, err
	}

	return user, nil
}

// callbackFailure maps an exchange failure. Broken proofs and rejected
// codes are the client's problem and answer as JSON; an unreachable
// provider bounces the browser back to the SPA with an error parameter.
func (fh *federationHandler) callbackFailure(w http.ResponseWriter, r *http.Request, err error) {
	dcontext.GetLogger(fh).Warnf("callback failure for provider %q: %v", fh.Provider, err)

	switch {
	case errors.Is(err, auth.ErrIdentityProof):
		fh.Errors = append(fh.Errors, v1.ErrorCodeIdentityProofInvalid)
	case errors.Is(err, auth.ErrAuthCodeExpired):
		fh.Errors = append(fh.Errors, v1.ErrorCodeAuthCodeExpired)
	default:
		fh.redirectError(w, r, errcode.ErrorCodeBadGateway.Descriptor().Value)
	}
}

func (fh *federationHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, spaCallbackPath+"?error="+url.QueryEscape(code), http.StatusFound)
}
