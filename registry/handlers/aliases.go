package handlers

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// resolveDispatcher constructs the alias resolution handler.
func resolveDispatcher(ctx *Context, r *http.Request) http.Handler {
	aliasHandler := &aliasHandler{Context: ctx, ShortName: getShortName(ctx)}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(aliasHandler.Resolve),
	}
}

// aliasDispatcher constructs the alias management handler.
func aliasDispatcher(ctx *Context, r *http.Request) http.Handler {
	aliasHandler := &aliasHandler{Context: ctx, ShortName: getShortName(ctx)}

	return handlers.MethodHandler{
		http.MethodPut:    http.HandlerFunc(aliasHandler.PutAlias),
		http.MethodDelete: http.HandlerFunc(aliasHandler.DeleteAlias),
	}
}

type aliasHandler struct {
	*Context

	ShortName string
}

// Resolve maps a short name to its target package. A dangling alias, whose
// target package no longer exists, reports the same 404 as a missing one.
func (ah *aliasHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if err := v1.ValidateIdentifier(ah.ShortName); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}

	alias, err := ah.catalog.ResolveAlias(ah, ah.ShortName)
	if err != nil {
		if err == catalog.ErrNotFound {
			ah.Errors = append(ah.Errors, v1.ErrorCodeAliasUnknown)
			return
		}
		dcontext.GetLogger(ah).Errorf("error resolving alias: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	if _, err := ah.catalog.GetPackage(ah, alias.Owner, alias.Repo); err != nil {
		if err == catalog.ErrNotFound {
			ah.Errors = append(ah.Errors, v1.ErrorCodeAliasUnknown)
			return
		}
		dcontext.GetLogger(ah).Errorf("error fetching alias target: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	serveJSON(w, http.StatusOK, v1.Alias{
		ShortName: alias.ShortName,
		FullName:  alias.Owner + "/" + alias.Repo,
		Owner:     alias.Owner,
		Repo:      alias.Repo,
		CreatedAt: alias.CreatedAt,
		CreatedBy: alias.CreatedBy,
	})
}

// PutAlias creates or repoints an alias. Only the target's owner or an
// admin may claim a short name.
func (ah *aliasHandler) PutAlias(w http.ResponseWriter, r *http.Request) {
	if err := v1.ValidateIdentifier(ah.ShortName); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}
	if !ah.requireUser() {
		return
	}

	var body struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
	}
	if err := readJSONBody(r, &body); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}
	if err := v1.ValidateIdentifier(body.Owner); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}
	if err := v1.ValidateIdentifier(body.Repo); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}

	if !ah.authorizedForOwner(body.Owner) {
		ah.Errors = append(ah.Errors, errcode.ErrorCodeDenied)
		return
	}

	if err := ah.catalog.UpsertAlias(ah, ah.ShortName, body.Owner, body.Repo, ah.User.Username); err != nil {
		dcontext.GetLogger(ah).Errorf("error upserting alias: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	alias, err := ah.catalog.ResolveAlias(ah, ah.ShortName)
	if err != nil {
		dcontext.GetLogger(ah).Errorf("error reading alias back: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	dcontext.GetLogger(ah).Infof("alias %q -> %s/%s", ah.ShortName, body.Owner, body.Repo)
	serveJSON(w, http.StatusOK, v1.Alias{
		ShortName: alias.ShortName,
		FullName:  alias.Owner + "/" + alias.Repo,
		Owner:     alias.Owner,
		Repo:      alias.Repo,
		CreatedAt: alias.CreatedAt,
		CreatedBy: alias.CreatedBy,
	})
}

// DeleteAlias removes an alias. Admin only; short names are a shared
// namespace and owners come and go.
func (ah *aliasHandler) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	if err := v1.ValidateIdentifier(ah.ShortName); err != nil {
		ah.Errors = append(ah.Errors, v1.ErrorCodeNameInvalid.WithDetail(err.Error()))
		return
	}
	if !ah.requireUser() {
		return
	}
	if !ah.isAdmin() {
		ah.Errors = append(ah.Errors, errcode.ErrorCodeDenied)
		return
	}

	if err := ah.catalog.DeleteAlias(ah, ah.ShortName); err != nil {
		if err == catalog.ErrNotFound {
			ah.Errors = append(ah.Errors, v1.ErrorCodeAliasUnknown)
			return
		}
		dcontext.GetLogger(ah).Errorf("error deleting alias: %v", err)
		ah.Errors = append(ah.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
