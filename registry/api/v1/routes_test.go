package v1

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gorilla/mux"
)

type routeTestCase struct {
	RequestURI string
	Vars       map[string]string
	RouteName  string
	StatusCode int
}

func TestRouter(t *testing.T) {
	testCases := []routeTestCase{
		{
			RouteName:  RouteNameBase,
			RequestURI: "/api/v1/",
			Vars:       map[string]string{},
		},
		{
			RouteName:  RouteNamePackage,
			RequestURI: "/api/v1/packages/alice/widget",
			Vars: map[string]string{
				"owner": "alice",
				"repo":  "widget",
			},
		},
		{
			RouteName:  RouteNameReleases,
			RequestURI: "/api/v1/packages/alice/widget/releases",
			Vars: map[string]string{
				"owner": "alice",
				"repo":  "widget",
			},
		},
		{
			RouteName:  RouteNameRelease,
			RequestURI: "/api/v1/packages/alice/widget/releases/1.0.0",
			Vars: map[string]string{
				"owner": "alice",
				"repo":  "widget",
				"tag":   "1.0.0",
			},
		},
		{
			RouteName:  RouteNameDownload,
			RequestURI: "/api/v1/packages/alice/widget/download/v2.0.0-rc.1",
			Vars: map[string]string{
				"owner": "alice",
				"repo":  "widget",
				"tag":   "v2.0.0-rc.1",
			},
		},
		{
			RouteName:  RouteNameTags,
			RequestURI: "/api/v1/packages/alice/widget/tags",
			Vars: map[string]string{
				"owner": "alice",
				"repo":  "widget",
			},
		},
		{
			RouteName:  RouteNameSearch,
			RequestURI: "/api/v1/search",
			Vars:       map[string]string{},
		},
		{
			RouteName:  RouteNameResolve,
			RequestURI: "/api/v1/resolve/widget",
			Vars: map[string]string{
				"short_name": "widget",
			},
		},
		{
			RouteName:  RouteNameOIDCCallback,
			RequestURI: "/api/v1/auth/oidc/github/callback",
			Vars: map[string]string{
				"provider": "github",
			},
		},
		{
			RouteName:  RouteNameDiscover,
			RequestURI: "/api/discover",
			Vars:       map[string]string{},
		},
		{
			// Unmatched paths fall through to the application's static
			// handler, never to a named API route.
			RequestURI: "/api/v1/nope",
			StatusCode: http.StatusNotFound,
		},
	}

	router := Router()
	recorded := struct {
		routeName string
		vars      map[string]string
	}{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded.routeName = mux.CurrentRoute(r).GetName()
		recorded.vars = mux.Vars(r)
	})
	for _, name := range allRoutes {
		router.GetRoute(name).Handler(handler)
	}

	for _, testcase := range testCases {
		recorded.routeName = ""
		recorded.vars = nil

		r := httptest.NewRequest(http.MethodGet, testcase.RequestURI, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		if testcase.StatusCode != 0 {
			if w.Code != testcase.StatusCode {
				t.Errorf("%s: expected status %d, got %d",
					testcase.RequestURI, testcase.StatusCode, w.Code)
			}
			continue
		}

		if recorded.routeName != testcase.RouteName {
			t.Errorf("%s: matched route %q, expected %q",
				testcase.RequestURI, recorded.routeName, testcase.RouteName)
			continue
		}
		if !reflect.DeepEqual(recorded.vars, testcase.Vars) {
			t.Errorf("%s: vars %v, expected %v",
				testcase.RequestURI, recorded.vars, testcase.Vars)
		}
	}
}

func TestRouterWithPrefix(t *testing.T) {
	router := RouterWithPrefix("/registry")

	var matched string
	router.GetRoute(RouteNamePackage).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matched = mux.CurrentRoute(r).GetName()
	}))

	r := httptest.NewRequest(http.MethodGet, "/registry/api/v1/packages/alice/widget", nil)
	router.ServeHTTP(httptest.NewRecorder(), r)

	if matched != RouteNamePackage {
		t.Errorf("prefixed route did not match, got %q", matched)
	}
}
