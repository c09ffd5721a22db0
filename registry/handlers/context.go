package handlers

import (
	"context"
	"net/http"

	"github.com/zpkg/registry/auth"
	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// Context should contain the request specific context for use in across
// handlers. Resources that don't need to be shared across handlers should
// not be on this object.
type Context struct {
	// App points to the application structure that created this context.
	*App
	context.Context

	// URLBuilder builds API urls relative to the current request.
	URLBuilder *v1.URLBuilder

	// Errors is a collection of errors encountered during the request to
	// be reported to the client in one JSON envelope.
	Errors errcode.Errors

	// User is the authenticated caller, nil for anonymous requests.
	User *catalog.User

	// Claims are the verified claims of the presented token.
	Claims *auth.Claims

	// Token is the raw presented bearer token, kept so logout can revoke
	// it.
	Token string
}

// Value overrides context.Context.Value to ensure that calls are routed to
// correct context.
func (ctx *Context) Value(key interface{}) interface{} {
	return ctx.Context.Value(key)
}

func getOwner(ctx context.Context) string {
	return dcontext.GetStringValue(ctx, "vars.owner")
}

func getRepo(ctx context.Context) string {
	return dcontext.GetStringValue(ctx, "vars.repo")
}

func getTag(ctx context.Context) string {
	return dcontext.GetStringValue(ctx, "vars.tag")
}

func getShortName(ctx context.Context) string {
	return dcontext.GetStringValue(ctx, "vars.short_name")
}

func getProvider(ctx context.Context) string {
	return dcontext.GetStringValue(ctx, "vars.provider")
}

// validateNameVars checks the owner/repo path parameters against the
// identifier rules, pushing a 400 onto the context on failure. Validation
// here, rather than in route patterns, keeps bad identifiers from falling
// through to the SPA as a misleading 404.
func (ctx *Context) validateNameVars() bool {
	for _, name := range []string{getOwner(ctx), getRepo(ctx)} {
		if err := v1.ValidateIdentifier(name); err != nil {
			ctx.Errors = append(ctx.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
			return false
		}
	}
	return true
}

// requireUser ensures the request is authenticated, pushing a 401 onto the
// context otherwise.
func (ctx *Context) requireUser() bool {
	if ctx.User == nil {
		ctx.Errors = append(ctx.Errors,
			errcode.ErrorCodeUnauthorized.WithMessage("authentication required"))
		return false
	}
	return true
}

// authorizedForOwner reports whether the caller may act on packages under
// owner: the caller's username must match, or the token must carry the
// admin scope (or the account's admin flag).
func (ctx *Context) authorizedForOwner(owner string) bool {
	if ctx.User == nil {
		return false
	}
	if ctx.User.Username == owner {
		return true
	}
	return ctx.isAdmin()
}

func (ctx *Context) isAdmin() bool {
	if ctx.User != nil && ctx.User.Admin {
		return true
	}
	return ctx.Claims != nil && ctx.Claims.HasScope(auth.ScopeAdmin)
}

var _ http.Handler = (*App)(nil)
