package v1

import "github.com/gorilla/mux"

// Route names, used to register handlers and build URLs. Keeping routing in
// one table keeps the server and any client in agreement.
const (
	RouteNameBase           = "base"
	RouteNamePackage        = "package"
	RouteNameReleases       = "releases"
	RouteNameRelease        = "release"
	RouteNameTags           = "tags"
	RouteNameDownload       = "download"
	RouteNameSearch         = "search"
	RouteNameResolve        = "resolve"
	RouteNameAlias          = "alias"
	RouteNameRegistryConfig = "registry-config"
	RouteNameHealth         = "health"
	RouteNameStats          = "stats"
	RouteNameAuthRegister   = "auth-register"
	RouteNameAuthLogin      = "auth-login"
	RouteNameAuthLogout     = "auth-logout"
	RouteNameAuthMe         = "auth-me"
	RouteNameOIDCLogin      = "oidc-login"
	RouteNameOIDCCallback   = "oidc-callback"
	RouteNameOAuthLogin     = "oauth-login"
	RouteNameOAuthCallback  = "oauth-callback"
	RouteNameDiscover       = "discover"
	RouteNameTrending       = "trending"
	RouteNameBrowse         = "browse"
)

var allRoutes = []string{
	RouteNameBase,
	RouteNamePackage,
	RouteNameReleases,
	RouteNameRelease,
	RouteNameTags,
	RouteNameDownload,
	RouteNameSearch,
	RouteNameResolve,
	RouteNameAlias,
	RouteNameRegistryConfig,
	RouteNameHealth,
	RouteNameStats,
	RouteNameAuthRegister,
	RouteNameAuthLogin,
	RouteNameAuthLogout,
	RouteNameAuthMe,
	RouteNameOIDCLogin,
	RouteNameOIDCCallback,
	RouteNameOAuthLogin,
	RouteNameOAuthCallback,
	RouteNameDiscover,
	RouteNameTrending,
	RouteNameBrowse,
}

// Router builds a gorilla router with named routes for the v1 API and the
// discovery proxy surface. Handlers are attached to the named routes by the
// application; identifier validation happens in the handlers so that bad
// identifiers produce 400 rather than falling through to the SPA.
func Router() *mux.Router {
	return RouterWithPrefix("")
}

// RouterWithPrefix builds a router as Router does, prefixing every route
// with the given path prefix.
func RouterWithPrefix(prefix string) *mux.Router {
	rootRouter := mux.NewRouter()
	router := rootRouter
	if prefix != "" {
		router = router.PathPrefix(prefix).Subrouter()
	}

	router.StrictSlash(true)

	// GET /api/v1/  capability ping
	router.Path("/api/v1/").Name(RouteNameBase)

	// Package metadata and releases.
	router.Path("/api/v1/packages/{owner}/{repo}").Name(RouteNamePackage)
	router.Path("/api/v1/packages/{owner}/{repo}/releases").Name(RouteNameReleases)
	router.Path("/api/v1/packages/{owner}/{repo}/releases/{tag}").Name(RouteNameRelease)
	router.Path("/api/v1/packages/{owner}/{repo}/tags").Name(RouteNameTags)
	router.Path("/api/v1/packages/{owner}/{repo}/download/{tag}").Name(RouteNameDownload)

	// Search and aliases.
	router.Path("/api/v1/search").Name(RouteNameSearch)
	router.Path("/api/v1/resolve/{short_name}").Name(RouteNameResolve)
	router.Path("/api/v1/aliases/{short_name}").Name(RouteNameAlias)

	// Registry introspection.
	router.Path("/api/v1/registry/config").Name(RouteNameRegistryConfig)
	router.Path("/api/v1/health").Name(RouteNameHealth)
	router.Path("/api/v1/stats").Name(RouteNameStats)

	// Local accounts.
	router.Path("/api/v1/auth/register").Name(RouteNameAuthRegister)
	router.Path("/api/v1/auth/login").Name(RouteNameAuthLogin)
	router.Path("/api/v1/auth/logout").Name(RouteNameAuthLogout)
	router.Path("/api/v1/auth/me").Name(RouteNameAuthMe)

	// Delegated identity.
	router.Path("/api/v1/auth/oidc/{provider}/login").Name(RouteNameOIDCLogin)
	router.Path("/api/v1/auth/oidc/{provider}/callback").Name(RouteNameOIDCCallback)
	router.Path("/api/v1/auth/oauth/{provider}/login").Name(RouteNameOAuthLogin)
	router.Path("/api/v1/auth/oauth/{provider}/callback").Name(RouteNameOAuthCallback)

	// Discovery proxy surface.
	router.Path("/api/discover").Name(RouteNameDiscover)
	router.Path("/api/trending").Name(RouteNameTrending)
	router.Path("/api/browse").Name(RouteNameBrowse)

	return rootRouter
}
