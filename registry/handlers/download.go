package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
	"github.com/zpkg/registry/storage"
)

// downloadDispatcher constructs the archive download handler.
func downloadDispatcher(ctx *Context, r *http.Request) http.Handler {
	downloadHandler := &downloadHandler{Context: ctx, Tag: getTag(ctx)}

	return handlers.MethodHandler{
		http.MethodGet:  http.HandlerFunc(downloadHandler.GetArchive),
		http.MethodHead: http.HandlerFunc(downloadHandler.GetArchive),
	}
}

type downloadHandler struct {
	*Context

	Tag string
}

// GetArchive streams the release archive with integrity metadata. Drafts
// are not downloadable and report the same 404 as a missing release. The
// download counter is incremented only after the last byte reaches the
// client, so aborted transfers do not count.
func (dh *downloadHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if !dh.validateNameVars() {
		return
	}

	owner, repo := getOwner(dh), getRepo(dh)

	rel, err := dh.catalog.GetRelease(dh, owner, repo, dh.Tag)
	if err != nil {
		if err == catalog.ErrNotFound {
			dh.Errors = append(dh.Errors, v1.ErrorCodeReleaseUnknown)
			return
		}
		dcontext.GetLogger(dh).Errorf("error fetching release: %v", err)
		dh.Errors = append(dh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}
	if rel.Draft {
		dh.Errors = append(dh.Errors, v1.ErrorCodeReleaseUnknown)
		return
	}

	blob, desc, err := dh.blobs.Open(dh, owner, repo, dh.Tag)
	if err != nil {
		if err == storage.ErrBlobUnknown {
			// Catalog row without a blob: an integrity violation worth
			// shouting about, but a plain 404 for the client.
			dcontext.GetLogger(dh).Errorf("release %s/%s@%s has no blob", owner, repo, dh.Tag)
			dh.Errors = append(dh.Errors, v1.ErrorCodeReleaseUnknown)
			return
		}
		dcontext.GetLogger(dh).Errorf("error opening blob: %v", err)
		dh.Errors = append(dh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(desc.Size, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-%s%s"`, repo, dh.Tag, storage.ArchiveExtension))
	w.Header().Set("X-Content-SHA256", rel.SHA256)

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, blob)
	if err != nil || n != desc.Size {
		// Headers are long gone; all that is left is to close the
		// connection and not count the download.
		dcontext.GetLogger(dh).Warnf("aborted download of %s/%s@%s after %d bytes: %v",
			owner, repo, dh.Tag, n, err)
		return
	}

	dh.catalog.IncrementDownloadCount(dh, owner, repo, dh.Tag)
	downloadsServed.Inc()
}
