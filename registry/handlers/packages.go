package handlers

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// packageDispatcher constructs the package metadata handler.
func packageDispatcher(ctx *Context, r *http.Request) http.Handler {
	packageHandler := &packageHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(packageHandler.GetPackage),
	}
}

type packageHandler struct {
	*Context
}

// GetPackage serves the package metadata document.
func (ph *packageHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	if !ph.validateNameVars() {
		return
	}

	pkg, err := ph.catalog.GetPackage(ph, getOwner(ph), getRepo(ph))
	if err != nil {
		if err == catalog.ErrNotFound {
			ph.Errors = append(ph.Errors, v1.ErrorCodePackageUnknown)
			return
		}
		dcontext.GetLogger(ph).Errorf("error fetching package: %v", err)
		ph.Errors = append(ph.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	serveJSON(w, http.StatusOK, packageAPI(pkg))
}
