package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zpkg/registry/auth"
	"github.com/zpkg/registry/catalog"
	"github.com/zpkg/registry/configuration"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/discovery"
	"github.com/zpkg/registry/health"
	"github.com/zpkg/registry/health/checks"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
	"github.com/zpkg/registry/storage"
)

// Per-request deadlines. Publish uploads stream archive bodies and get a
// longer budget than metadata requests.
const (
	requestTimeout = 30 * time.Second
	uploadTimeout  = 300 * time.Second
)

// App is a global registry application object. Shared resources can be
// placed on this object that will be accessible from all requests. Any
// writable fields should be protected.
type App struct {
	context.Context

	Config *configuration.Configuration

	router    *mux.Router
	catalog   *catalog.Catalog
	blobs     *storage.BlobStore
	tokens    *auth.TokenIssuer
	states    *auth.StateCodec
	oidc      map[string]*auth.OIDCClient
	oauth     map[string]*auth.OAuthClient
	discovery *discovery.Client
	limiter   *clientLimiter
	health    *health.Registry
}

// NewApp takes a configuration and returns a configured app, ready to serve
// requests. The app only implements ServeHTTP and can be wrapped in other
// handlers accordingly.
func NewApp(ctx context.Context, config *configuration.Configuration) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cat, err := catalog.Open(ctx, config.Catalog.Path, catalog.Options{
		MaxOpenConns: config.Catalog.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(config.HTTP.Secret, 0)
	if err != nil {
		cat.Close()
		return nil, err
	}

	app := &App{
		Context: ctx,
		Config:  config,
		router:  v1.Router(),
		catalog: cat,
		blobs:   storage.NewBlobStore(config.Storage.Root, config.MaxPackageSize()),
		tokens:  tokens,
		states:  auth.NewStateCodec(config.HTTP.Secret),
		oidc:    map[string]*auth.OIDCClient{},
		oauth:   map[string]*auth.OAuthClient{},
		health:  health.NewRegistry(),
		limiter: newClientLimiter(config.RateLimit.Anonymous, config.RateLimit.Authenticated),
	}
	app.discovery = discovery.New(config.Discovery.URL, cat)

	app.configureProviders(ctx)
	app.configureHealth()

	// Register the handler dispatchers.
	app.register(v1.RouteNameBase, func(ctx *Context, r *http.Request) http.Handler {
		return http.HandlerFunc(apiBase)
	})
	app.register(v1.RouteNamePackage, packageDispatcher)
	app.register(v1.RouteNameReleases, releasesDispatcher)
	app.register(v1.RouteNameRelease, releaseDispatcher)
	app.register(v1.RouteNameTags, tagsDispatcher)
	app.register(v1.RouteNameDownload, downloadDispatcher)
	app.register(v1.RouteNameSearch, searchDispatcher)
	app.register(v1.RouteNameResolve, resolveDispatcher)
	app.register(v1.RouteNameAlias, aliasDispatcher)
	app.register(v1.RouteNameRegistryConfig, registryConfigDispatcher)
	app.register(v1.RouteNameHealth, healthDispatcher)
	app.register(v1.RouteNameStats, statsDispatcher)
	app.register(v1.RouteNameAuthRegister, registerDispatcher)
	app.register(v1.RouteNameAuthLogin, loginDispatcher)
	app.register(v1.RouteNameAuthLogout, logoutDispatcher)
	app.register(v1.RouteNameAuthMe, meDispatcher)
	app.register(v1.RouteNameOIDCLogin, oidcLoginDispatcher)
	app.register(v1.RouteNameOIDCCallback, oidcCallbackDispatcher)
	app.register(v1.RouteNameOAuthLogin, oauthLoginDispatcher)
	app.register(v1.RouteNameOAuthCallback, oauthCallbackDispatcher)
	app.register(v1.RouteNameDiscover, discoverDispatcher)
	app.register(v1.RouteNameTrending, trendingDispatcher)
	app.register(v1.RouteNameBrowse, browseDispatcher)

	// Surfaces outside the versioned API: the bare liveness alias, the
	// Prometheus endpoint and the SPA fallback for everything else.
	app.router.Path("/health").Handler(app.dispatcher(healthDispatcher))
	app.router.Path("/metrics").Handler(promhttp.Handler())
	app.router.NotFoundHandler = app.staticHandler()

	return app, nil
}

// Close releases the app's long-lived resources.
func (app *App) Close() error {
	return app.catalog.Close()
}

// configureProviders builds delegated-identity clients from configuration.
// A provider whose discovery document cannot be fetched is skipped with an
// error log rather than failing boot; local accounts keep working.
func (app *App) configureProviders(ctx context.Context) {
	for name, cfg := range app.Config.OIDC {
		client, err := auth.NewOIDCClient(ctx, name, cfg, app.callbackURL("oidc", name))
		if err != nil {
			dcontext.GetLogger(app).Errorf("skipping oidc provider %q: %v", name, err)
			continue
		}
		app.oidc[name] = client
	}
	for name, cfg := range app.Config.OAuth {
		app.oauth[name] = auth.NewOAuthClient(name, cfg, app.callbackURL("oauth", name))
	}
}

func (app *App) callbackURL(kind, provider string) string {
	base := strings.TrimSuffix(app.Config.HTTP.RedirectBaseURL, "/")
	return base + "/api/v1/auth/" + kind + "/" + provider + "/callback"
}

func (app *App) configureHealth() {
	cat := app.catalog
	app.health.RegisterPeriodicFunc("catalog", 10*time.Second, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cat.Ping(ctx)
	})
	app.health.RegisterPeriodicFunc("storage", 10*time.Second,
		checks.WritableDirectoryChecker(app.Config.Storage.Root).Check)
	if app.Config.Discovery.URL != "" {
		app.health.RegisterPeriodicThresholdFunc("discovery", time.Minute, 3,
			checks.HTTPChecker(app.Config.Discovery.URL, 5*time.Second).Check)
	}
}

// register a handler with the application, by route name. The handler will
// be passed through the application filters and context will be constructed
// at request time.
func (app *App) register(routeName string, dispatch dispatchFunc) {
	app.router.GetRoute(routeName).Handler(app.dispatcher(dispatch))
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close() // ensure that request body is always closed.

	if !app.allowRequest(r) {
		errcode.ServeJSON(w, errcode.ErrorCodeTooManyRequests)
		return
	}

	timeout := requestTimeout
	if isUpload(r) {
		timeout = uploadTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	app.router.ServeHTTP(w, r.WithContext(ctx))
}

// allowRequest charges the request to a rate budget. Only a token that
// passes signature verification reaches the authenticated budget; a
// request carrying a forged or expired token draws from its IP bucket
// like any other anonymous caller.
func (app *App) allowRequest(r *http.Request) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if _, err := app.tokens.Verify(token); err == nil {
			return app.limiter.allowToken(token)
		}
	}
	return app.limiter.allowAnonymous(dcontext.RemoteIP(r))
}

// isUpload reports whether r is a publish upload, which gets the longer
// deadline.
func isUpload(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/releases")
}

// dispatchFunc takes a context and request and returns a constructed
// handler for the route. The dispatcher will use this to dynamically create
// request specific handlers for each endpoint without creating a new router
// for each request.
type dispatchFunc func(ctx *Context, r *http.Request) http.Handler

// dispatcher returns a handler that constructs a request specific context
// and handler, using the dispatch factory function.
func (app *App) dispatcher(dispatch dispatchFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		context, w := app.context(w, r)

		defer func() {
			status, _ := context.Value("http.response.status").(int)
			duration := dcontext.Since(context, "http.request.startedat")
			instrumentResponse(mux.CurrentRoute(r), r, status, duration.Seconds())
			dcontext.GetResponseLogger(context).Infof("response completed")
		}()

		if err := app.authorized(context, r); err != nil {
			dcontext.GetLogger(context).Warnf("error authorizing request: %v", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="registry"`)
			errcode.ServeJSON(w, err)
			return
		}

		dispatch(context, r).ServeHTTP(w, r)

		// Automatic error response handling: anything the handler pushed
		// onto the context that has not been written yet.
		if len(context.Errors) > 0 {
			errcode.ServeJSON(w, context.Errors)
		}
	})
}

// context constructs the request-scoped context for a dispatch, layering
// the request, instrumented response writer, mux vars and a request logger
// over the application context.
func (app *App) context(w http.ResponseWriter, r *http.Request) (*Context, http.ResponseWriter) {
	ctx := r.Context()
	ctx = dcontext.WithRequest(ctx, r)
	ctx, w = dcontext.WithResponseWriter(ctx, w)
	ctx = dcontext.WithVars(ctx, r)
	ctx = dcontext.WithLogger(ctx, dcontext.GetRequestLogger(ctx))

	return &Context{
		App:        app,
		Context:    ctx,
		URLBuilder: v1.NewURLBuilderFromRequest(r, true),
	}, w
}

// authorized resolves the caller from the Authorization header, if any.
// Anonymous requests proceed with a nil user; endpoints that require
// authentication check for one. A presented token that fails verification
// is an error even on endpoints that allow anonymous access.
func (app *App) authorized(context *Context, r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errcode.ErrorCodeUnauthorized.WithMessage("unsupported authorization scheme")
	}

	claims, err := app.tokens.Verify(token)
	if err != nil {
		if err == auth.ErrTokenExpired {
			return errcode.ErrorCodeUnauthorized.WithMessage("token expired")
		}
		return errcode.ErrorCodeUnauthorized.WithMessage("invalid token")
	}

	user, err := app.catalog.GetUserByToken(context, token)
	if err != nil {
		switch err {
		case catalog.ErrNotFound:
			// Signed but revoked; logout removed the row.
			return errcode.ErrorCodeUnauthorized.WithMessage("token revoked")
		case catalog.ErrTokenExpired:
			return errcode.ErrorCodeUnauthorized.WithMessage("token expired")
		case catalog.ErrUserInactive:
			return errcode.ErrorCodeUnauthorized.WithMessage("account deactivated")
		}
		return errcode.ErrorCodeUnknown.WithDetail(err.Error())
	}

	context.User = user
	context.Claims = claims
	context.Token = token
	context.Context = dcontext.WithLogger(context.Context,
		dcontext.GetLoggerWithField(context.Context, "auth.user", user.Username))

	return nil
}

// apiBase implements a simple yes-man for doing overall checks against the
// API. Clients probe it to confirm they are talking to a zpkg registry.
func apiBase(w http.ResponseWriter, r *http.Request) {
	const emptyJSON = "{}"

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", "2")

	w.Write([]byte(emptyJSON))
}
