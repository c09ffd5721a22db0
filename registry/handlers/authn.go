package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/auth"
	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// minPasswordLength is the floor for local account passwords.
const minPasswordLength = 8

// registerDispatcher constructs the local account registration handler.
func registerDispatcher(ctx *Context, r *http.Request) http.Handler {
	authHandler := &authHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(authHandler.Register),
	}
}

// loginDispatcher constructs the credential login handler.
func loginDispatcher(ctx *Context, r *http.Request) http.Handler {
	authHandler := &authHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(authHandler.Login),
	}
}

// logoutDispatcher constructs the token revocation handler.
func logoutDispatcher(ctx *Context, r *http.Request) http.Handler {
	authHandler := &authHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(authHandler.Logout),
	}
}

// meDispatcher constructs the caller identification handler.
func meDispatcher(ctx *Context, r *http.Request) http.Handler {
	authHandler := &authHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(authHandler.Me),
	}
}

type authHandler struct {
	*Context
}

// Register creates a local account and signs the new user in.
func (ah *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSONBody(r, &body); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}

	if err := v1.ValidateIdentifier(body.Username); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}
	if !strings.Contains(body.Email, "@") {
		ah.Errors = append(ah.Errors, v1.ErrorCodeBodyInvalid.WithDetail("invalid email"))
		return
	}
	if len(body.Password) < minPasswordLength {
		ah.Errors = append(ah.Errors,
			v1.ErrorCodeBodyInvalid.WithDetail("password must be at least 8 characters"))
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		dcontext.GetLogger(ah).Errorf("error hashing password: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	user, err := ah.catalog.CreateUser(ah, body.Username, body.Email, hash)
	if err != nil {
		switch err {
		case catalog.ErrUsernameTaken:
			ah.Errors = append(ah.Errors, v1.ErrorCodeUsernameTaken)
		case catalog.ErrEmailTaken:
			ah.Errors = append(ah.Errors, v1.ErrorCodeEmailTaken)
		default:
			dcontext.GetLogger(ah).Errorf("error creating user: %v", err)
			ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		}
		return
	}

	session, err := ah.issueSession(user)
	if err != nil {
		return
	}

	dcontext.GetLogger(ah).Infof("registered user %q", user.Username)
	serveJSON(w, http.StatusCreated, session)
}

// Login exchanges credentials for a bearer token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (ah *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSONBody(r, &body); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}

	user, err := ah.catalog.GetUserByName(ah, body.Username)
	if err != nil && err != catalog.ErrNotFound {
		dcontext.GetLogger(ah).Errorf("error fetching user: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	if user == nil || !user.Active || user.PasswordHash == nil {
		// Burn the same key-derivation work as a real check so response
		// timing does not reveal whether the account exists.
		// nolint:errcheck
		auth.VerifyPassword(body.Password, auth.DummyHash())
		ah.Errors = append(ah.Errors, v1.ErrorCodeCredentialsInvalid)
		return
	}
	ok, err := auth.VerifyPassword(body.Password, *user.PasswordHash)
	if err != nil {
		dcontext.GetLogger(ah).Errorf("error verifying password for %q: %v", body.Username, err)
	}
	if !ok {
		ah.Errors = append(ah.Errors, v1.ErrorCodeCredentialsInvalid)
		return
	}

	session, err := ah.issueSession(user)
	if err != nil {
		return
	}

	serveJSON(w, http.StatusOK, session)
}

// Logout revokes the presented token.
func (ah *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !ah.requireUser() {
		return
	}

	if err := ah.catalog.DeleteToken(ah, ah.Token); err != nil {
		dcontext.GetLogger(ah).Errorf("error revoking token: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me identifies the caller.
func (ah *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	if !ah.requireUser() {
		return
	}

	serveJSON(w, http.StatusOK, v1.Identity{
		UserID:        ah.User.ID,
		Username:      ah.User.Username,
		Authenticated: true,
		Admin:         ah.isAdmin(),
	})
}

// issueSession signs a token for user, records it for revocation and
// shapes the session response. Admin accounts get the admin scope baked
// into their tokens.
func (ah *authHandler) issueSession(user *catalog.User) (*v1.AuthSession, error) {
	var scopes []string
	if user.Admin {
		scopes = []string{auth.ScopeAdmin}
	}

	token, issuedAt, expiresAt, err := ah.tokens.Issue(user.ID, scopes)
	if err != nil {
		dcontext.GetLogger(ah).Errorf("error issuing token: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return nil, err
	}

	expiry := expiresAt.Unix()
	if err := ah.catalog.InsertToken(ah, token, user.ID, issuedAt.Unix(), &expiry,
		strings.Join(scopes, " ")); err != nil {
		dcontext.GetLogger(ah).Errorf("error recording token: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return nil, err
	}

	return &v1.AuthSession{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Token:    token,
	}, nil
}
