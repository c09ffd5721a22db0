package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/handlers"

	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
	"github.com/zpkg/registry/version"
)

// healthDispatcher constructs the liveness handler.
func healthDispatcher(ctx *Context, r *http.Request) http.Handler {
	metaHandler := &metaHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(metaHandler.GetHealth),
	}
}

// statsDispatcher constructs the aggregate statistics handler.
func statsDispatcher(ctx *Context, r *http.Request) http.Handler {
	metaHandler := &metaHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(metaHandler.GetStats),
	}
}

// registryConfigDispatcher constructs the capability document handler.
func registryConfigDispatcher(ctx *Context, r *http.Request) http.Handler {
	metaHandler := &metaHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(metaHandler.GetRegistryConfig),
	}
}

type metaHandler struct {
	*Context
}

// GetHealth reports liveness. Failing checks degrade the status but keep
// the HTTP code at 200; load balancers that need a hard signal use the
// per-check detail.
func (mh *metaHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	failing := mh.health.CheckStatus()
	if len(failing) > 0 {
		status = "degraded"
		dcontext.GetLogger(mh).Warnf("failing health checks: %v", failing)
	}

	serveJSON(w, http.StatusOK, v1.Health{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Version:   version.Version(),
		Features:  mh.features(),
	})
}

// GetStats serves the aggregate counters.
func (mh *metaHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := mh.catalog.GetStats(mh)
	if err != nil {
		dcontext.GetLogger(mh).Errorf("error reading stats: %v", err)
		mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	serveJSON(w, http.StatusOK, v1.Stats{
		TotalPackages:  stats.TotalPackages,
		TotalDownloads: stats.TotalDownloads,
		DownloadsToday: stats.DownloadsToday,
	})
}

// GetRegistryConfig serves the capability document the CLI and SPA use to
// discover what this instance supports.
func (mh *metaHandler) GetRegistryConfig(w http.ResponseWriter, r *http.Request) {
	providers := make([]string, 0, len(mh.oidc)+len(mh.oauth))
	for name := range mh.oidc {
		providers = append(providers, name)
	}
	for name := range mh.oauth {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	serveJSON(w, http.StatusOK, v1.RegistryConfig{
		Name:           mh.Config.Registry.Name,
		Domain:         mh.Config.Registry.Domain,
		MaxPackageSize: mh.Config.MaxPackageSize(),
		Features:       mh.features(),
		AuthProviders:  providers,
	})
}

func (mh *metaHandler) features() map[string]bool {
	return map[string]bool{
		"publish":   true,
		"search":    true,
		"aliases":   true,
		"discovery": mh.discovery.Enabled(),
		"oidc":      len(mh.oidc) > 0,
		"oauth":     len(mh.oauth) > 0,
	}
}
