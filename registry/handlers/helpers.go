package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/zpkg/registry/catalog"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// maxJSONBody bounds non-upload request bodies.
const maxJSONBody = 8 << 10

// serveJSON marshals v and sets the content-type header to
// 'application/json'. If a different status code is required, pass it as
// status; zero means 200.
func serveJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status > 0 {
		w.WriteHeader(status)
	}

	return json.NewEncoder(w).Encode(v)
}

// readJSONBody decodes a bounded JSON request body into v. Unknown fields
// are tolerated; forge clients send more than the registry reads.
func readJSONBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// closeResources closes all the provided resources after running the target
// handler.
func closeResources(handler http.Handler, closers ...io.Closer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, closer := range closers {
			defer closer.Close()
		}
		handler.ServeHTTP(w, r)
	})
}

// packageAPI shapes a catalog row for the wire.
func packageAPI(p *catalog.Package) v1.Package {
	return v1.Package{
		Owner:           p.Owner,
		Repo:            p.Repo,
		FullName:        p.FullName(),
		Description:     p.Description,
		Topics:          p.Topics,
		License:         p.License,
		Homepage:        p.Homepage,
		GithubURL:       p.SourceURL,
		StargazersCount: p.Stars,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		Private:         p.Private,
	}
}

// releaseAPI shapes a release row for the wire. The archive URLs are built
// relative to the current request; the registry serves one archive format,
// so the tarball and zipball URLs both point at the download endpoint.
func releaseAPI(ctx *Context, rel *catalog.Release) v1.Release {
	downloadURL, err := ctx.URLBuilder.BuildDownloadURL(rel.Owner, rel.Repo, rel.Tag)
	if err != nil {
		downloadURL = ""
	}

	return v1.Release{
		ID:          rel.ID,
		TagName:     rel.Tag,
		Name:        rel.Name,
		Body:        rel.Body,
		Draft:       rel.Draft,
		Prerelease:  rel.Prerelease,
		CreatedAt:   rel.CreatedAt,
		PublishedAt: rel.PublishedAt,
		TarballURL:  downloadURL,
		ZipballURL:  downloadURL,
		DownloadURL: downloadURL,
		FileSize:    rel.FileSize,
		SHA256:      rel.SHA256,
	}
}

func tagAPI(ctx *Context, rel *catalog.Release) v1.Tag {
	downloadURL, err := ctx.URLBuilder.BuildDownloadURL(rel.Owner, rel.Repo, rel.Tag)
	if err != nil {
		downloadURL = ""
	}

	return v1.Tag{
		Name:       rel.Tag,
		TarballURL: downloadURL,
		ZipballURL: downloadURL,
	}
}
