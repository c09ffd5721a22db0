package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/zpkg/registry/configuration"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// fakeProvider is a stub OAuth2 provider: a token endpoint that accepts
// any code except "bad-code" and a user-info endpoint serving a fixed
// identity.
type fakeProvider struct {
	server *httptest.Server

	login string
	email string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{login: "octocat", email: "octocat@example.com"}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") == "bad-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-access-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.Contains(got, "test-access-token") {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    12345,
			"login": p.login,
			"email": p.email,
		})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

func (p *fakeProvider) mutator() configMutator {
	return func(config *configuration.Configuration) {
		config.OAuth = map[string]configuration.OAuthProvider{
			"testprov": {
				AuthURL:      p.server.URL + "/authorize",
				TokenURL:     p.server.URL + "/token",
				UserInfoURL:  p.server.URL + "/userinfo",
				ClientID:     "client-id",
				ClientSecret: "client-secret",
			},
		}
	}
}

// noRedirect returns responses as-is instead of following 302s.
var noRedirect = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// startFlow hits the login endpoint and returns the provider state nonce
// plus the sealed flow cookies.
func startFlow(t *testing.T, env *testEnv, provider string) (state string, cookies []*http.Cookie) {
	t.Helper()

	resp, err := noRedirect.Get(env.url("/api/v1/auth/oauth/" + provider + "/login"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login: unexpected status %d", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state = location.Query().Get("state")
	if state == "" {
		t.Fatal("login redirect carries no state")
	}

	return state, resp.Cookies()
}

// finishFlow hits the callback with the given code and state.
func finishFlow(t *testing.T, env *testEnv, provider, code, state string, cookies []*http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet,
		env.url("/api/v1/auth/oauth/"+provider+"/callback?code="+url.QueryEscape(code)+
			"&state="+url.QueryEscape(state)), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestOAuthSignInCreatesUser(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	state, cookies := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "good-code", state, cookies)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: unexpected status %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/auth/callback#token=") {
		t.Fatalf("unexpected redirect %q", location)
	}
	token := strings.TrimPrefix(location, "/auth/callback#token=")
	token, _ = url.QueryUnescape(token)

	// The minted token is a working session for the new account.
	var identity v1.Identity
	r := env.doJSON(http.MethodGet, "/api/v1/auth/me", token, nil, &identity)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("me: unexpected status %d", r.StatusCode)
	}
	if identity.Username != "octocat" || !identity.Authenticated {
		t.Errorf("unexpected identity %+v", identity)
	}

	// A second round trip signs into the same account instead of creating
	// another one.
	state, cookies = startFlow(t, env, "testprov")
	resp2 := finishFlow(t, env, "testprov", "good-code", state, cookies)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusFound {
		t.Fatalf("second callback: unexpected status %d", resp2.StatusCode)
	}
	location = resp2.Header.Get("Location")
	token = strings.TrimPrefix(location, "/auth/callback#token=")
	token, _ = url.QueryUnescape(token)

	r = env.doJSON(http.MethodGet, "/api/v1/auth/me", token, nil, &identity)
	if r.StatusCode != http.StatusOK || identity.Username != "octocat" {
		t.Errorf("second sign-in resolved to %+v", identity)
	}
}

func TestOAuthUsernameCollision(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	// A local account already holds the provider's preferred username. The
	// remote email differs, so only the name collides.
	provider.email = "octocat@remote.example.com"
	env.register("octocat")

	state, cookies := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "good-code", state, cookies)
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	token := strings.TrimPrefix(location, "/auth/callback#token=")
	token, _ = url.QueryUnescape(token)

	var identity v1.Identity
	r := env.doJSON(http.MethodGet, "/api/v1/auth/me", token, nil, &identity)
	if r.StatusCode != http.StatusOK {
		t.Fatalf("me: unexpected status %d", r.StatusCode)
	}
	if identity.Username != "octocat2" {
		t.Errorf("expected octocat2, got %q", identity.Username)
	}
}

func TestOAuthEmailConflictRedirects(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	// The provider email already belongs to a local account under a
	// different name, so automatic linking must not happen.
	env.doJSON(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "incumbent",
		"email":    provider.email,
		"password": "correct horse",
	}, nil)

	state, cookies := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "good-code", state, cookies)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback: unexpected status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/auth/callback?error=EMAIL_IN_USE" {
		t.Errorf("unexpected redirect %q", got)
	}
}

func TestOAuthStateMismatch(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	_, cookies := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "good-code", "forged-state", cookies)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("forged state: unexpected status %d", resp.StatusCode)
	}
	if code, _ := apiError(t, resp); code != "STATE_INVALID" {
		t.Errorf("unexpected code %q", code)
	}
}

func TestOAuthMissingFlowCookie(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	state, _ := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "good-code", state, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing cookie: unexpected status %d", resp.StatusCode)
	}
}

func TestOAuthRejectedCode(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	state, cookies := startFlow(t, env, "testprov")
	resp := finishFlow(t, env, "testprov", "bad-code", state, cookies)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("rejected code: unexpected status %d", resp.StatusCode)
	}
	if code, _ := apiError(t, resp); code != "AUTH_CODE_EXPIRED" {
		t.Errorf("unexpected code %q", code)
	}
}

func TestOAuthUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	resp, err := noRedirect.Get(env.url("/api/v1/auth/oauth/nothere/login"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown provider: unexpected status %d", resp.StatusCode)
	}
}

func TestProvidersListedInRegistryConfig(t *testing.T) {
	provider := newFakeProvider(t)
	env := newTestEnv(t, provider.mutator())

	var config v1.RegistryConfig
	resp := env.doJSON(http.MethodGet, "/api/v1/registry/config", "", nil, &config)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(config.AuthProviders) != 1 || config.AuthProviders[0] != "testprov" {
		t.Errorf("unexpected providers %v", config.AuthProviders)
	}
	if !config.Features["oauth"] || config.Features["oidc"] {
		t.Errorf("unexpected features %v", config.Features)
	}
}
