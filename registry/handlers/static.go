package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	dcontext "github.com/zpkg/registry/context"
)

// spaPrefixes are the client-routed paths that serve the SPA's index
// document so deep links work.
var spaPrefixes = []string{"/", "/packages", "/search", "/trending", "/docs", "/auth"}

// assetPrefixes are served from disk under the static root.
var assetPrefixes = []string{"/css/", "/js/", "/images/", "/assets/"}

// assetContentTypes maps file extensions to content types. Extensions
// outside this table are served as octet-stream.
var assetContentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript",
	".wasm": "application/wasm",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".ico":  "image/x-icon",
}

// staticHandler serves the SPA and its assets for every GET the API router
// does not claim. With no static root configured, everything here is 404.
func (app *App) staticHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		if app.Config.Static.Root == "" {
			http.NotFound(w, r)
			return
		}

		// Reject traversal before any path is derived.
		if strings.Contains(r.URL.Path, "..") {
			http.NotFound(w, r)
			return
		}

		if isAssetPath(r.URL.Path) || strings.HasSuffix(r.URL.Path, ".wasm") {
			app.serveAsset(w, r)
			return
		}

		if isSPAPath(r.URL.Path) {
			app.serveFile(w, r, "index.html")
			return
		}

		http.NotFound(w, r)
	})
}

func isSPAPath(p string) bool {
	for _, prefix := range spaPrefixes {
		if p == prefix || (prefix != "/" && strings.HasPrefix(p, prefix+"/")) {
			return true
		}
	}
	return false
}

func isAssetPath(p string) bool {
	for _, prefix := range assetPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (app *App) serveAsset(w http.ResponseWriter, r *http.Request) {
	app.serveFile(w, r, strings.TrimPrefix(r.URL.Path, "/"))
}

// serveFile streams one file from the static root with a content type
// inferred from its extension and an hour of client caching.
func (app *App) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	full := filepath.Join(app.Config.Static.Root, filepath.FromSlash(path.Clean("/"+name)))

	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := assetContentTypes[strings.ToLower(filepath.Ext(full))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)

	dcontext.GetLogger(r.Context()).Debugf("served static %s", name)
}
