package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"

	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// Search result bounds. An explicit limit=0 is honored and returns an
// empty page; larger requests are clamped.
const (
	defaultSearchLimit = 25
	maxSearchLimit     = 100
)

// searchDispatcher constructs the package search handler.
func searchDispatcher(ctx *Context, r *http.Request) http.Handler {
	searchHandler := &searchHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(searchHandler.Search),
	}
}

type searchHandler struct {
	*Context
}

// Search serves ranked package summaries for a query.
func (sh *searchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := parseLimit(r.URL.Query().Get("limit"))

	items := []v1.Package{}
	if q != "" && limit > 0 {
		results, err := sh.catalog.SearchPackages(sh, q, limit)
		if err != nil {
			dcontext.GetLogger(sh).Errorf("error searching packages: %v", err)
			sh.Errors = append(sh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
			return
		}
		for _, p := range results {
			items = append(items, packageAPI(p))
		}
	}

	serveJSON(w, http.StatusOK, v1.SearchResults{
		Items:      items,
		TotalCount: len(items),
	})
}

// parseLimit interprets the limit query parameter: absent or unparseable
// means the default, oversized is clamped, zero and negative mean none.
func parseLimit(raw string) int {
	if raw == "" {
		return defaultSearchLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return defaultSearchLimit
	}
	if limit < 0 {
		return 0
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}
