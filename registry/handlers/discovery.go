package handlers

import (
	"net/http"

	"github.com/gorilla/handlers"

	v1 "github.com/zpkg/registry/registry/api/v1"
)

// The discovery proxy surface never errors toward the client: upstream
// failures degrade to cached or empty results so the UI stays live.

// discoverDispatcher constructs the proxied discovery search handler.
func discoverDispatcher(ctx *Context, r *http.Request) http.Handler {
	discoveryHandler := &discoveryHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(discoveryHandler.Discover),
	}
}

// trendingDispatcher constructs the proxied trending handler.
func trendingDispatcher(ctx *Context, r *http.Request) http.Handler {
	discoveryHandler := &discoveryHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(discoveryHandler.Trending),
	}
}

// browseDispatcher constructs the proxied category browse handler.
func browseDispatcher(ctx *Context, r *http.Request) http.Handler {
	discoveryHandler := &discoveryHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(discoveryHandler.Browse),
	}
}

type discoveryHandler struct {
	*Context
}

func (dh *discoveryHandler) Discover(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items := dh.discovery.Search(dh, query.Get("q"), parseLimit(query.Get("limit")))
	dh.serveItems(w, items)
}

func (dh *discoveryHandler) Trending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items := dh.discovery.Trending(dh, query.Get("category"), parseLimit(query.Get("limit")))
	dh.serveItems(w, items)
}

func (dh *discoveryHandler) Browse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items := dh.discovery.Browse(dh, query.Get("category"), parseLimit(query.Get("limit")))
	dh.serveItems(w, items)
}

func (dh *discoveryHandler) serveItems(w http.ResponseWriter, items []v1.DiscoveredPackage) {
	serveJSON(w, http.StatusOK, struct {
		Items      []v1.DiscoveredPackage `json:"items"`
		TotalCount int                    `json:"total_count"`
	}{Items: items, TotalCount: len(items)})
}
