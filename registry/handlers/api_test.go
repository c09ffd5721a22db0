package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zpkg/registry/configuration"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

type testEnv struct {
	t      *testing.T
	app    *App
	server *httptest.Server
}

type configMutator func(*configuration.Configuration)

// newTestEnv boots a complete app on an in-memory catalog and a throwaway
// blob root, served over a real listener.
func newTestEnv(t *testing.T, mutators ...configMutator) *testEnv {
	t.Helper()

	config := configuration.Default()
	config.HTTP.Secret = "0123456789abcdef0123456789abcdef"
	config.Catalog.Path = ":memory:"
	config.Storage.Root = t.TempDir()
	config.Registry.Name = "test registry"
	config.Registry.Domain = "registry.test"

	// Rate limiting is exercised by its own test.
	config.RateLimit.Anonymous = 0
	config.RateLimit.Authenticated = 0

	for _, mutate := range mutators {
		mutate(config)
	}

	app, err := NewApp(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error creating app: %v", err)
	}

	server := httptest.NewServer(app)
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})

	return &testEnv{t: t, app: app, server: server}
}

func (env *testEnv) url(path string) string {
	return env.server.URL + path
}

// doJSON performs a JSON request and decodes the response body into out
// when out is non-nil.
func (env *testEnv) doJSON(method, path, token string, body, out interface{}) *http.Response {
	env.t.Helper()

	var rd io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			env.t.Fatal(err)
		}
		rd = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, env.url(path), rd)
	if err != nil {
		env.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("error performing %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			env.t.Fatalf("error decoding %s %s response: %v", method, path, err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return resp
}

// register creates an account and returns its session.
func (env *testEnv) register(username string) v1.AuthSession {
	env.t.Helper()

	var session v1.AuthSession
	resp := env.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse",
	}, &session)
	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("registering %q: unexpected status %d", username, resp.StatusCode)
	}
	if session.Token == "" {
		env.t.Fatalf("registering %q: no token issued", username)
	}
	return session
}

// publish performs a multipart publish. fields are written before the
// archive part so tag_name precedes file.
func (env *testEnv) publish(token, owner, repo string, fields map[string]string, archive []byte) *http.Response {
	env.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			env.t.Fatal(err)
		}
	}
	if archive != nil {
		fw, err := mw.CreateFormFile("file", repo+".zpkg")
		if err != nil {
			env.t.Fatal(err)
		}
		fw.Write(archive)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost,
		env.url("/api/v1/packages/"+owner+"/"+repo+"/releases"), &buf)
	if err != nil {
		env.t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatal(err)
	}
	return resp
}

// apiError decodes the single-error envelope from resp.
func apiError(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()

	var envelope struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("error decoding error envelope: %v", err)
	}
	resp.Body.Close()
	return envelope.Code, envelope.Message
}

func TestAPIBase(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.url("/api/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "{}" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	session := env.register("alice")
	if session.Username != "alice" {
		t.Errorf("unexpected username %q", session.Username)
	}

	// The fresh token identifies the caller.
	var identity v1.Identity
	resp := env.doJSON(http.MethodGet, "/api/v1/auth/me", session.Token, nil, &identity)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: unexpected status %d", resp.StatusCode)
	}
	if !identity.Authenticated || identity.Username != "alice" || identity.Admin {
		t.Errorf("unexpected identity %+v", identity)
	}

	// Duplicate registration conflicts.
	resp = env.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "correct horse",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: unexpected status %d", resp.StatusCode)
	}

	// Login with the right and wrong password.
	var login v1.AuthSession
	resp = env.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "correct horse",
	}, &login)
	if resp.StatusCode != http.StatusOK || login.Token == "" {
		t.Fatalf("login: unexpected status %d", resp.StatusCode)
	}

	resp = env.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong horse",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: unexpected status %d", resp.StatusCode)
	}

	// Unknown users produce the same response as wrong passwords.
	resp = env.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "nobody", "password": "correct horse",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown user login: unexpected status %d", resp.StatusCode)
	}

	// Logout revokes the token even though its signature stays valid.
	resp = env.doJSON(http.MethodPost, "/api/v1/auth/logout", session.Token, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: unexpected status %d", resp.StatusCode)
	}
	resp = env.doJSON(http.MethodGet, "/api/v1/auth/me", session.Token, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me after logout: unexpected status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.Contains(got, "Bearer") {
		t.Errorf("missing WWW-Authenticate challenge, got %q", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		body   map[string]string
		status int
	}{
		{map[string]string{"username": "bad name", "email": "a@x.io", "password": "longenough"}, http.StatusBadRequest},
		{map[string]string{"username": "ok", "email": "not-an-email", "password": "longenough"}, http.StatusBadRequest},
		{map[string]string{"username": "ok", "email": "a@x.io", "password": "short"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := env.doJSON(http.MethodPost, "/api/v1/auth/register", "", tc.body, nil)
		if resp.StatusCode != tc.status {
			t.Errorf("register %v: status %d, expected %d", tc.body, resp.StatusCode, tc.status)
		}
	}
}

func TestPublishAndDownload(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	archive := []byte("the archive payload")
	digest := sha256.Sum256(archive)

	resp := env.publish(alice.Token, "alice", "widget", map[string]string{
		"tag_name":    "1.0.0",
		"name":        "first release",
		"body":        "release notes",
		"description": "a widget library",
		"topics":      "widgets, gadgets",
		"license":     "MIT",
	}, archive)
	if resp.StatusCode != http.StatusCreated {
		code, msg := apiError(t, resp)
		t.Fatalf("publish: unexpected status %d (%s: %s)", resp.StatusCode, code, msg)
	}

	var release v1.Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if release.TagName != "1.0.0" || release.Name != "first release" {
		t.Errorf("unexpected release %+v", release)
	}
	if release.FileSize != int64(len(archive)) {
		t.Errorf("unexpected file size %d", release.FileSize)
	}
	if release.SHA256 != hex.EncodeToString(digest[:]) {
		t.Errorf("unexpected fingerprint %s", release.SHA256)
	}
	if release.PublishedAt == nil {
		t.Errorf("non-draft release missing published_at")
	}
	if !strings.Contains(release.DownloadURL, "/api/v1/packages/alice/widget/download/1.0.0") {
		t.Errorf("unexpected download url %q", release.DownloadURL)
	}

	// The package row was created from the publish hints.
	var pkg v1.Package
	resp = env.doJSON(http.MethodGet, "/api/v1/packages/alice/widget", "", nil, &pkg)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get package: unexpected status %d", resp.StatusCode)
	}
	if pkg.FullName != "alice/widget" || pkg.Description != "a widget library" {
		t.Errorf("unexpected package %+v", pkg)
	}
	if len(pkg.Topics) != 2 || pkg.Topics[0] != "widgets" {
		t.Errorf("unexpected topics %v", pkg.Topics)
	}

	// Download the archive and check the integrity metadata.
	dresp, err := http.Get(env.url("/api/v1/packages/alice/widget/download/1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	defer dresp.Body.Close()

	if dresp.StatusCode != http.StatusOK {
		t.Fatalf("download: unexpected status %d", dresp.StatusCode)
	}
	if got := dresp.Header.Get("Content-Length"); got != fmt.Sprint(len(archive)) {
		t.Errorf("content-length = %q", got)
	}
	if got := dresp.Header.Get("X-Content-SHA256"); got != hex.EncodeToString(digest[:]) {
		t.Errorf("x-content-sha256 = %q", got)
	}
	if got := dresp.Header.Get("Content-Disposition"); !strings.Contains(got, "widget-1.0.0.zpkg") {
		t.Errorf("content-disposition = %q", got)
	}
	body, err := io.ReadAll(dresp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, archive) {
		t.Errorf("downloaded bytes differ")
	}

	// The completed download shows up in the stats.
	var stats v1.Stats
	resp = env.doJSON(http.MethodGet, "/api/v1/stats", "", nil, &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: unexpected status %d", resp.StatusCode)
	}
	if stats.TotalPackages != 1 || stats.TotalDownloads != 1 || stats.DownloadsToday != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPublishDuplicate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	fields := map[string]string{"tag_name": "1.0.0"}
	resp := env.publish(alice.Token, "alice", "widget", fields, []byte("original"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first publish: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.publish(alice.Token, "alice", "widget", fields, []byte("replacement"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate publish: unexpected status %d", resp.StatusCode)
	}
	code, message := apiError(t, resp)
	if code != "RELEASE_EXISTS" {
		t.Errorf("unexpected code %q", code)
	}
	if message != "Release already exists" {
		t.Errorf("unexpected message %q", message)
	}

	// The original archive survives the rejected publish.
	dresp, err := http.Get(env.url("/api/v1/packages/alice/widget/download/1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	defer dresp.Body.Close()
	body, _ := io.ReadAll(dresp.Body)
	if string(body) != "original" {
		t.Errorf("original archive was replaced: %q", body)
	}
}

func TestPublishAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.register("alice")
	bob := env.register("bob")

	// Anonymous publish is a 401.
	resp := env.publish("", "alice", "widget", map[string]string{"tag_name": "1.0.0"}, []byte("x"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous publish: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Publishing under someone else's namespace is a 403.
	resp = env.publish(bob.Token, "alice", "widget", map[string]string{"tag_name": "1.0.0"}, []byte("x"))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-owner publish: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublishValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	// Publish must be multipart.
	req, _ := http.NewRequest(http.MethodPost,
		env.url("/api/v1/packages/alice/widget/releases"), strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("json publish: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Tags must be semantic versions.
	resp = env.publish(alice.Token, "alice", "widget", map[string]string{"tag_name": "latest"}, []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad tag: unexpected status %d", resp.StatusCode)
	}
	if code, _ := apiError(t, resp); code != "TAG_INVALID" {
		t.Errorf("bad tag: unexpected code %q", code)
	}

	// The archive part is mandatory.
	resp = env.publish(alice.Token, "alice", "widget", map[string]string{"tag_name": "1.0.0"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// So is the tag.
	resp = env.publish(alice.Token, "alice", "widget", nil, []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing tag: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublishTooLarge(t *testing.T) {
	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.Storage.MaxPackageSize = 16
	})
	alice := env.register("alice")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0"}, bytes.Repeat([]byte("x"), 64))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized publish: unexpected status %d", resp.StatusCode)
	}
	if code, _ := apiError(t, resp); code != "PAYLOAD_TOO_LARGE" {
		t.Errorf("unexpected code %q", code)
	}
}

func TestPublishMaxSizeWithLongMetadata(t *testing.T) {
	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.Storage.MaxPackageSize = 16
	})
	alice := env.register("alice")

	// An exactly max-size archive plus long scalar fields must fit under
	// the request body cap; only the archive counts against the size
	// limit.
	long := strings.Repeat("n", 60<<10)
	resp := env.publish(alice.Token, "alice", "widget", map[string]string{
		"tag_name":    "1.0.0",
		"name":        long,
		"body":        long,
		"description": long,
		"license":     long,
		"homepage":    long,
	}, bytes.Repeat([]byte("x"), 16))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish with long metadata: unexpected status %d", resp.StatusCode)
	}

	var rel v1.Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if rel.TagName != "1.0.0" || rel.FileSize != 16 {
		t.Errorf("unexpected release %+v", rel)
	}
}

func TestDraftHiddenFromDownload(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0", "draft": "true"}, []byte("x"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("draft publish: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The release document is visible, with a null published_at.
	var release v1.Release
	r := env.doJSON(http.MethodGet, "/api/v1/packages/alice/widget/releases/1.0.0", "", nil, &release)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("get draft: unexpected status %d", r.StatusCode)
	}
	if !release.Draft || release.PublishedAt != nil {
		t.Errorf("unexpected draft document %+v", release)
	}

	// Download reports the same 404 as a missing release.
	dresp, err := http.Get(env.url("/api/v1/packages/alice/widget/download/1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	defer dresp.Body.Close()
	if dresp.StatusCode != http.StatusNotFound {
		t.Errorf("draft download: unexpected status %d", dresp.StatusCode)
	}
}

func TestHeadDownloadDoesNotCount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0"}, []byte("payload"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatal("publish failed")
	}
	resp.Body.Close()

	hresp, err := http.Head(env.url("/api/v1/packages/alice/widget/download/1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	hresp.Body.Close()
	if hresp.StatusCode != http.StatusOK {
		t.Fatalf("head: unexpected status %d", hresp.StatusCode)
	}
	if got := hresp.Header.Get("Content-Length"); got != "7" {
		t.Errorf("head content-length = %q", got)
	}

	var stats v1.Stats
	env.doJSON(http.MethodGet, "/api/v1/stats", "", nil, &stats)
	if stats.TotalDownloads != 0 {
		t.Errorf("HEAD counted as a download: %+v", stats)
	}
}

func TestListReleasesAndTags(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")

	for _, tag := range []string{"1.2.3", "2.0.0", "1.10.0"} {
		resp := env.publish(alice.Token, "alice", "widget",
			map[string]string{"tag_name": tag}, []byte("archive-"+tag))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("publish %s: unexpected status %d", tag, resp.StatusCode)
		}
		resp.Body.Close()
	}

	var releases []v1.Release
	resp := env.doJSON(http.MethodGet, "/api/v1/packages/alice/widget/releases", "", nil, &releases)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list releases: unexpected status %d", resp.StatusCode)
	}
	var got []string
	for _, rel := range releases {
		got = append(got, rel.TagName)
	}
	want := []string{"2.0.0", "1.10.0", "1.2.3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("release ordering %v, expected %v", got, want)
	}

	var tags []v1.Tag
	resp = env.doJSON(http.MethodGet, "/api/v1/packages/alice/widget/tags", "", nil, &tags)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list tags: unexpected status %d", resp.StatusCode)
	}
	if len(tags) != 3 || tags[0].Name != "2.0.0" {
		t.Errorf("unexpected tags %+v", tags)
	}

	// Listing an unknown package is a 404, not an empty list.
	resp = env.doJSON(http.MethodGet, "/api/v1/packages/alice/unknown/releases", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown package listing: unexpected status %d", resp.StatusCode)
	}
}

func TestDeleteRelease(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")
	bob := env.register("bob")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0"}, []byte("x"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatal("publish failed")
	}
	resp.Body.Close()

	// Only the owner (or an admin) may delete.
	resp = env.doJSON(http.MethodDelete, "/api/v1/packages/alice/widget/releases/1.0.0", bob.Token, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-owner delete: unexpected status %d", resp.StatusCode)
	}

	resp = env.doJSON(http.MethodDelete, "/api/v1/packages/alice/widget/releases/1.0.0", alice.Token, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: unexpected status %d", resp.StatusCode)
	}

	resp = env.doJSON(http.MethodGet, "/api/v1/packages/alice/widget/releases/1.0.0", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: unexpected status %d", resp.StatusCode)
	}

	dresp, err := http.Get(env.url("/api/v1/packages/alice/widget/download/1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNotFound {
		t.Errorf("download after delete: unexpected status %d", dresp.StatusCode)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")
	bob := env.register("bob")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0", "description": "a widget library"}, []byte("a"))
	resp.Body.Close()
	resp = env.publish(bob.Token, "bob", "gadget",
		map[string]string{"tag_name": "1.0.0", "description": "a widget framework"}, []byte("b"))
	resp.Body.Close()

	var results v1.SearchResults
	r := env.doJSON(http.MethodGet, "/api/v1/search?q=widget", "", nil, &results)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("search: unexpected status %d", r.StatusCode)
	}
	if results.TotalCount != 2 || len(results.Items) != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	// A repo-name match outranks a description-only match.
	if results.Items[0].FullName != "alice/widget" {
		t.Errorf("expected alice/widget first, got %q", results.Items[0].FullName)
	}

	// An explicit limit=0 is honored as an empty page, still a 200.
	r = env.doJSON(http.MethodGet, "/api/v1/search?q=widget&limit=0", "", nil, &results)
	if r.StatusCode != http.StatusOK || len(results.Items) != 0 {
		t.Errorf("limit=0: status %d, items %d", r.StatusCode, len(results.Items))
	}

	// An empty query is an empty result, not an error.
	r = env.doJSON(http.MethodGet, "/api/v1/search", "", nil, &results)
	if r.StatusCode != http.StatusOK || len(results.Items) != 0 {
		t.Errorf("empty query: status %d, items %d", r.StatusCode, len(results.Items))
	}
}

func TestAliases(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("alice")
	bob := env.register("bob")

	resp := env.publish(alice.Token, "alice", "widget",
		map[string]string{"tag_name": "1.0.0"}, []byte("x"))
	resp.Body.Close()

	// The owner claims a short name for their package.
	var alias v1.Alias
	resp = env.doJSON(http.MethodPut, "/api/v1/aliases/widget", alice.Token,
		map[string]string{"owner": "alice", "repo": "widget"}, &alias)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put alias: unexpected status %d", resp.StatusCode)
	}
	if alias.FullName != "alice/widget" || alias.CreatedBy != "alice" {
		t.Errorf("unexpected alias %+v", alias)
	}

	// Anyone can resolve it.
	resp = env.doJSON(http.MethodGet, "/api/v1/resolve/widget", "", nil, &alias)
	if resp.StatusCode != http.StatusOK || alias.Owner != "alice" {
		t.Errorf("resolve: status %d, alias %+v", resp.StatusCode, alias)
	}

	// Claiming a short name for someone else's package is denied.
	resp = env.doJSON(http.MethodPut, "/api/v1/aliases/stolen", bob.Token,
		map[string]string{"owner": "alice", "repo": "widget"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-owner alias: unexpected status %d", resp.StatusCode)
	}

	// Alias deletion is admin-only.
	resp = env.doJSON(http.MethodDelete, "/api/v1/aliases/widget", alice.Token, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin alias delete: unexpected status %d", resp.StatusCode)
	}

	// Unknown short names are 404s.
	resp = env.doJSON(http.MethodGet, "/api/v1/resolve/nothing", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown alias: unexpected status %d", resp.StatusCode)
	}
}

func TestBadIdentifiersAre400(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/api/v1/packages/bad..name/widget",
		"/api/v1/packages/alice/with%20space",
		"/api/v1/packages/" + strings.Repeat("x", 65) + "/widget",
		"/api/v1/resolve/dot.ted",
	}
	for _, path := range paths {
		resp, err := http.Get(env.url(path))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
		if code, _ := apiError(t, resp); code != "NAME_INVALID" {
			t.Errorf("%s: unexpected code %q", path, code)
		}
	}
}

func TestUnknownPackage404(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(http.MethodGet, "/api/v1/packages/alice/missing", "", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestHealthAndRegistryConfig(t *testing.T) {
	env := newTestEnv(t)

	var health v1.Health
	resp := env.doJSON(http.MethodGet, "/api/v1/health", "", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: unexpected status %d", resp.StatusCode)
	}
	if health.Status != "ok" {
		t.Errorf("unexpected status %q", health.Status)
	}
	if !health.Features["publish"] || health.Features["discovery"] {
		t.Errorf("unexpected features %v", health.Features)
	}

	// The bare /health alias serves the same document.
	resp = env.doJSON(http.MethodGet, "/health", "", nil, &health)
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Errorf("/health alias: status %d, %q", resp.StatusCode, health.Status)
	}

	var config v1.RegistryConfig
	resp = env.doJSON(http.MethodGet, "/api/v1/registry/config", "", nil, &config)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("registry config: unexpected status %d", resp.StatusCode)
	}
	if config.Name != "test registry" || config.Domain != "registry.test" {
		t.Errorf("unexpected config %+v", config)
	}
	if config.MaxPackageSize <= 0 {
		t.Errorf("missing max package size")
	}
	if len(config.AuthProviders) != 0 {
		t.Errorf("unexpected providers %v", config.AuthProviders)
	}
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.RateLimit.Anonymous = 2
	})

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(env.url("/api/v1/"))
		if err != nil {
			t.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request: expected 429, got %d", last)
	}
}

func TestRateLimitForgedTokensShareIPBucket(t *testing.T) {
	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.RateLimit.Anonymous = 2
	})

	// Rotating bogus bearer tokens must not mint a fresh budget per
	// header; the requests all draw from the caller's IP bucket.
	var last int
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, env.url("/api/v1/"), nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", fmt.Sprintf("Bearer bogus-%d", i))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third forged-token request: expected 429, got %d", last)
	}
}

func TestRateLimitVerifiedTokenGetsOwnBudget(t *testing.T) {
	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.RateLimit.Anonymous = 2
		config.RateLimit.Authenticated = 100
	})

	// Registration spends the first anonymous slot.
	alice := env.register("alice")

	// The verified token has its own budget beyond the anonymous cap.
	for i := 0; i < 5; i++ {
		resp := env.doJSON(http.MethodGet, "/api/v1/auth/me", alice.Token, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("authenticated request %d: unexpected status %d", i, resp.StatusCode)
		}
	}

	// The IP's anonymous budget drains independently of the token's.
	var last int
	for i := 0; i < 2; i++ {
		resp, err := http.Get(env.url("/api/v1/"))
		if err != nil {
			t.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("anonymous overflow: expected 429, got %d", last)
	}
}

func TestInvalidTokenRejectedEverywhere(t *testing.T) {
	env := newTestEnv(t)

	// A bogus token fails even on endpoints that allow anonymous access.
	resp := env.doJSON(http.MethodGet, "/api/v1/stats", "garbage-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bogus token: unexpected status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.url("/api/v1/stats"), nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusUnauthorized {
		t.Errorf("basic auth: unexpected status %d", r.StatusCode)
	}
}

func TestDiscoveryProxyWithoutUpstream(t *testing.T) {
	env := newTestEnv(t)

	// With no provider configured the proxy serves empty pages, never
	// errors.
	var out struct {
		Items      []v1.DiscoveredPackage `json:"items"`
		TotalCount int                    `json:"total_count"`
	}
	resp := env.doJSON(http.MethodGet, "/api/discover?q=widgets", "", nil, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover: unexpected status %d", resp.StatusCode)
	}
	if out.Items == nil || len(out.Items) != 0 {
		t.Errorf("unexpected items %+v", out.Items)
	}

	resp = env.doJSON(http.MethodGet, "/api/trending", "", nil, &out)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("trending: unexpected status %d", resp.StatusCode)
	}
}

func TestDiscoveryProxyWithUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "widgets" {
			t.Errorf("unexpected upstream query %q", got)
		}
		w.Write([]byte(`[{"name":"widget","stars":42}]`))
	}))
	defer upstream.Close()

	env := newTestEnv(t, func(config *configuration.Configuration) {
		config.Discovery.URL = upstream.URL
	})

	var out struct {
		Items []v1.DiscoveredPackage `json:"items"`
	}
	resp := env.doJSON(http.MethodGet, "/api/discover?q=widgets", "", nil, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover: unexpected status %d", resp.StatusCode)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "widget" {
		t.Errorf("unexpected items %+v", out.Items)
	}
}
