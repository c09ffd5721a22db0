package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/zpkg/registry/catalog"
	dcontext "github.com/zpkg/registry/context"
	"github.com/zpkg/registry/registry/api/errcode"
	v1 "github.com/zpkg/registry/registry/api/v1"
	"github.com/zpkg/registry/storage"
)

// publishFieldSlack is headroom for everything in a publish body other
// than the archive: every scalar part the form reader accepts at its
// maxFormValue clip, plus part headers and boundaries. An exactly
// max-size archive with full release notes must still fit.
const publishFieldSlack = 12*maxFormValue + 64<<10

// releasesDispatcher constructs the handler for the release collection:
// listing and publishing.
func releasesDispatcher(ctx *Context, r *http.Request) http.Handler {
	releaseHandler := &releaseHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet:  http.HandlerFunc(releaseHandler.ListReleases),
		http.MethodPost: http.HandlerFunc(releaseHandler.PublishRelease),
	}
}

// releaseDispatcher constructs the handler for one release: fetch and
// delete.
func releaseDispatcher(ctx *Context, r *http.Request) http.Handler {
	releaseHandler := &releaseHandler{Context: ctx, Tag: getTag(ctx)}

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(releaseHandler.GetRelease),
		http.MethodDelete: http.HandlerFunc(releaseHandler.DeleteRelease),
	}
}

// tagsDispatcher constructs the tag listing handler.
func tagsDispatcher(ctx *Context, r *http.Request) http.Handler {
	releaseHandler := &releaseHandler{Context: ctx}

	return handlers.MethodHandler{
		http.MethodGet: http.HandlerFunc(releaseHandler.ListTags),
	}
}

type releaseHandler struct {
	*Context

	Tag string
}

// ListReleases serves all releases of a package, newest version first.
func (rh *releaseHandler) ListReleases(w http.ResponseWriter, r *http.Request) {
	if !rh.validateNameVars() {
		return
	}

	releases, err := rh.listExisting(getOwner(rh), getRepo(rh))
	if err != nil {
		return
	}

	out := make([]v1.Release, 0, len(releases))
	for _, rel := range releases {
		out = append(out, releaseAPI(rh.Context, rel))
	}

	serveJSON(w, http.StatusOK, out)
}

// ListTags serves the forge-shaped tag listing, a projection of the
// release list.
func (rh *releaseHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	if !rh.validateNameVars() {
		return
	}

	releases, err := rh.listExisting(getOwner(rh), getRepo(rh))
	if err != nil {
		return
	}

	out := make([]v1.Tag, 0, len(releases))
	for _, rel := range releases {
		out = append(out, tagAPI(rh.Context, rel))
	}

	serveJSON(w, http.StatusOK, out)
}

// listExisting lists releases, pushing PackageUnknown when the package has
// never been published.
func (rh *releaseHandler) listExisting(owner, repo string) ([]*catalog.Release, error) {
	if _, err := rh.catalog.GetPackage(rh, owner, repo); err != nil {
		if err == catalog.ErrNotFound {
			rh.Errors = append(rh.Errors, v1.ErrorCodePackageUnknown)
		} else {
			dcontext.GetLogger(rh).Errorf("error fetching package: %v", err)
			rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		}
		return nil, err
	}

	releases, err := rh.catalog.ListReleases(rh, owner, repo)
	if err != nil {
		dcontext.GetLogger(rh).Errorf("error listing releases: %v", err)
		rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return nil, err
	}

	return releases, nil
}

// GetRelease serves one release document. Drafts are visible here; only
// download hides them.
func (rh *releaseHandler) GetRelease(w http.ResponseWriter, r *http.Request) {
	if !rh.validateNameVars() {
		return
	}

	rel, err := rh.catalog.GetRelease(rh, getOwner(rh), getRepo(rh), rh.Tag)
	if err != nil {
		if err == catalog.ErrNotFound {
			rh.Errors = append(rh.Errors, v1.ErrorCodeReleaseUnknown)
			return
		}
		dcontext.GetLogger(rh).Errorf("error fetching release: %v", err)
		rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	serveJSON(w, http.StatusOK, releaseAPI(rh.Context, rel))
}

// PublishRelease ingests a multipart publish: the archive part streams into
// the blob store while being fingerprinted, then the release row is created
// in one catalog transaction. On any failure after ingest of a brand-new
// blob, the blob is unlinked so no partial publish is observable.
func (rh *releaseHandler) PublishRelease(w http.ResponseWriter, r *http.Request) {
	if !rh.validateNameVars() {
		return
	}
	if !rh.requireUser() {
		return
	}

	owner, repo := getOwner(rh), getRepo(rh)
	if !rh.authorizedForOwner(owner) {
		rh.Errors = append(rh.Errors, errcode.ErrorCodeDenied)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		rh.Errors = append(rh.Errors, v1.ErrorCodeMediaTypeInvalid)
		return
	}

	// Bound the whole request a little above the archive cap so that a
	// too-large archive surfaces as 413 from the blob store rather than as
	// a broken multipart read.
	r.Body = http.MaxBytesReader(w, r.Body, rh.Config.MaxPackageSize()+publishFieldSlack)

	reader, err := r.MultipartReader()
	if err != nil {
		rh.Errors = append(rh.Errors, v1.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}

	var (
		tag   string
		attrs catalog.ReleaseAttrs
		hints catalog.PackageHints
		desc  storage.Descriptor
		saved bool
	)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			rh.Errors = append(rh.Errors, v1.ErrorCodeBodyInvalid.WithDetail(err.Error()))
			return
		}

		switch part.FormName() {
		case "tag_name":
			tag = formValue(part)
		case "name":
			attrs.Name = formValue(part)
		case "body":
			attrs.Body = formValue(part)
		case "draft":
			attrs.Draft = formBool(part)
		case "prerelease":
			attrs.Prerelease = formBool(part)
		case "description":
			hints.Description = formValue(part)
		case "topics":
			hints.Topics = splitTopics(formValue(part))
		case "license":
			hints.License = formValue(part)
		case "homepage":
			hints.Homepage = formValue(part)
		case "github_url", "source_url":
			hints.SourceURL = formValue(part)
		case "file":
			if tag == "" {
				// The archive must follow its tag so ingest can stream
				// straight to the destination path.
				rh.Errors = append(rh.Errors,
					v1.ErrorCodeBodyInvalid.WithDetail("tag_name must precede file"))
				part.Close()
				return
			}
			if _, err := v1.ParseTag(tag); err != nil {
				rh.Errors = append(rh.Errors, v1.ErrorCodeTagInvalid.WithDetail(err.Error()))
				part.Close()
				return
			}

			desc, err = rh.blobs.Store(rh, owner, repo, tag, part)
			if err != nil {
				part.Close()
				rh.publishIngestError(err)
				return
			}
			saved = true
		}
		part.Close()
	}

	if tag == "" {
		rh.Errors = append(rh.Errors, v1.ErrorCodeBodyInvalid.WithDetail("tag_name is required"))
		return
	}
	if _, err := v1.ParseTag(tag); err != nil {
		rh.Errors = append(rh.Errors, v1.ErrorCodeTagInvalid.WithDetail(err.Error()))
		return
	}
	if !saved {
		rh.Errors = append(rh.Errors, v1.ErrorCodeBodyInvalid.WithDetail("file part is required"))
		return
	}

	rel, err := rh.catalog.CreateRelease(rh, owner, repo, tag, attrs,
		catalog.BlobRef{Size: desc.Size, SHA256: desc.SHA256}, hints)
	if err != nil {
		// The blob is already durable; a failed row insert must not leave
		// it behind unless an earlier publish owns it.
		if err == catalog.ErrVersionExists {
			publishesTotal.WithLabelValues("conflict").Inc()
			rh.Errors = append(rh.Errors, v1.ErrorCodeReleaseExists)
			return
		}
		if desc.Created {
			// Unlink only a blob this request wrote. An idempotent ingest
			// over an existing release's archive is not ours to remove.
			rh.blobs.Delete(owner, repo, tag)
		}
		dcontext.GetLogger(rh).Errorf("error creating release: %v", err)
		publishesTotal.WithLabelValues("error").Inc()
		rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	publishesTotal.WithLabelValues("ok").Inc()
	dcontext.GetLogger(rh).Infof("published %s/%s@%s (%d bytes)", owner, repo, tag, desc.Size)
	serveJSON(w, http.StatusCreated, releaseAPI(rh.Context, rel))
}

// publishIngestError maps blob-store ingest failures onto the API error
// taxonomy.
func (rh *releaseHandler) publishIngestError(err error) {
	switch err {
	case storage.ErrBlobTooLarge:
		publishesTotal.WithLabelValues("too_large").Inc()
		rh.Errors = append(rh.Errors, v1.ErrorCodePayloadTooLarge)
	case storage.ErrBlobExists:
		// Different bytes already live at the destination; the earlier
		// publish wins.
		publishesTotal.WithLabelValues("conflict").Inc()
		rh.Errors = append(rh.Errors, v1.ErrorCodeReleaseExists)
	default:
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			publishesTotal.WithLabelValues("too_large").Inc()
			rh.Errors = append(rh.Errors, v1.ErrorCodePayloadTooLarge)
			return
		}
		dcontext.GetLogger(rh).Errorf("error ingesting archive: %v", err)
		publishesTotal.WithLabelValues("error").Inc()
		rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
	}
}

// DeleteRelease removes the release row and best-effort unlinks its blob.
func (rh *releaseHandler) DeleteRelease(w http.ResponseWriter, r *http.Request) {
	if !rh.validateNameVars() {
		return
	}
	if !rh.requireUser() {
		return
	}

	owner, repo := getOwner(rh), getRepo(rh)
	if !rh.authorizedForOwner(owner) {
		rh.Errors = append(rh.Errors, errcode.ErrorCodeDenied)
		return
	}

	if err := rh.catalog.DeleteRelease(rh, owner, repo, rh.Tag); err != nil {
		if err == catalog.ErrNotFound {
			rh.Errors = append(rh.Errors, v1.ErrorCodeReleaseUnknown)
			return
		}
		dcontext.GetLogger(rh).Errorf("error deleting release: %v", err)
		rh.Errors = append(rh.Errors, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	// Blob removal is best-effort; a leftover blob is collected by the
	// admin GC pass.
	if err := rh.blobs.Delete(owner, repo, rh.Tag); err != nil && err != storage.ErrBlobUnknown {
		dcontext.GetLogger(rh).Warnf("error unlinking blob for %s/%s@%s: %v", owner, repo, rh.Tag, err)
	}

	w.WriteHeader(http.StatusNoContent)
}
