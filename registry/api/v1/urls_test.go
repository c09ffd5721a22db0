package v1

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type urlBuilderTestCase struct {
	description  string
	expectedPath string
	build        func(*URLBuilder) (string, error)
}

func makeURLBuilderTestCases() []urlBuilderTestCase {
	return []urlBuilderTestCase{
		{
			description:  "test base url",
			expectedPath: "/api/v1/",
			build: func(ub *URLBuilder) (string, error) {
				return ub.BuildBaseURL()
			},
		},
		{
			description:  "test package url",
			expectedPath: "/api/v1/packages/alice/widget",
			build: func(ub *URLBuilder) (string, error) {
				return ub.BuildPackageURL("alice", "widget")
			},
		},
		{
			description:  "test release url",
			expectedPath: "/api/v1/packages/alice/widget/releases/1.0.0",
			build: func(ub *URLBuilder) (string, error) {
				return ub.BuildReleaseURL("alice", "widget", "1.0.0")
			},
		},
		{
			description:  "test download url",
			expectedPath: "/api/v1/packages/alice/widget/download/1.0.0",
			build: func(ub *URLBuilder) (string, error) {
				return ub.BuildDownloadURL("alice", "widget", "1.0.0")
			},
		},
	}
}

func TestURLBuilder(t *testing.T) {
	roots := []string{
		"http://example.com",
		"https://example.com",
		"http://localhost:5000",
		"https://localhost:5443",
	}

	doTest := func(relative bool) {
		for _, root := range roots {
			builder, err := NewURLBuilderFromString(root, relative)
			if err != nil {
				t.Fatalf("unexpected error creating builder: %v", err)
			}

			for _, tc := range makeURLBuilderTestCases() {
				url, err := tc.build(builder)
				if err != nil {
					t.Fatalf("%s: error building url: %v", tc.description, err)
				}
				expected := tc.expectedPath
				if !relative {
					expected = root + expected
				}
				if url != expected {
					t.Fatalf("%s: %q != %q", tc.description, url, expected)
				}
			}
		}
	}
	doTest(true)
	doTest(false)
}

func TestBuilderFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/packages/alice/widget", nil)
	r.Host = "registry.example.com"

	builder := NewURLBuilderFromRequest(r, false)
	url, err := builder.BuildDownloadURL("alice", "widget", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	expected := "http://registry.example.com/api/v1/packages/alice/widget/download/1.0.0"
	if url != expected {
		t.Errorf("%q != %q", url, expected)
	}
}

func TestBuilderFromRequestForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/", nil)
	r.Host = "registry.example.com"
	r.Header.Set("X-Forwarded-Proto", "https")

	builder := NewURLBuilderFromRequest(r, false)
	url, err := builder.BuildBaseURL()
	if err != nil {
		t.Fatal(err)
	}
	expected := "https://registry.example.com/api/v1/"
	if url != expected {
		t.Errorf("%q != %q", url, expected)
	}
}

func TestBuilderFromRequestWithPrefix(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/registry/api/v1/packages/alice/widget", nil)
	r.Host = "example.com"

	builder := NewURLBuilderFromRequest(r, false)
	url, err := builder.BuildBaseURL()
	if err != nil {
		t.Fatal(err)
	}
	expected := "http://example.com/registry/api/v1/"
	if url != expected {
		t.Errorf("%q != %q", url, expected)
	}
}
