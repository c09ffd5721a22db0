package v1

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// URLBuilder creates registry API urls from a single base endpoint. It can
// be used to create urls for use in a registry client or server.
type URLBuilder struct {
	root     *url.URL // url root (ie http://localhost/)
	router   *mux.Router
	relative bool
}

// NewURLBuilder creates a URLBuilder with provided root url object.
func NewURLBuilder(root *url.URL, relative bool) *URLBuilder {
	return &URLBuilder{
		root:     root,
		router:   Router(),
		relative: relative,
	}
}

// NewURLBuilderFromString workes like NewURLBuilder but takes a string
// argument for the root url.
func NewURLBuilderFromString(root string, relative bool) (*URLBuilder, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, err
	}

	return NewURLBuilder(u, relative), nil
}

// NewURLBuilderFromRequest uses information from an *http.Request to
// construct the root url.
func NewURLBuilderFromRequest(r *http.Request, relative bool) *URLBuilder {
	var (
		scheme = "http"
		host   = r.Host
	)

	if r.TLS != nil {
		scheme = "https"
	} else if len(r.URL.Scheme) > 0 {
		scheme = r.URL.Scheme
	}

	// Handle fronting proxies that terminate TLS.
	if forwardedProto := r.Header.Get("X-Forwarded-Proto"); forwardedProto != "" {
		scheme = forwardedProto
	}
	if forwardedHost := r.Header.Get("X-Forwarded-Host"); forwardedHost != "" {
		// According to the Apache mod_proxy docs, X-Forwarded-Host can be a
		// comma-separated list of hosts, to which each proxy appends the
		// requested host.
		hosts := strings.SplitN(forwardedHost, ",", 2)
		host = strings.TrimSpace(hosts[0])
	}

	basePath := routeDescriptorsMap[RouteNameBase]

	requestPath := r.URL.Path
	index := strings.Index(requestPath, basePath)

	u := &url.URL{
		Scheme: scheme,
		Host:   host,
	}

	if index > 0 {
		// The index should be the prefix the registry is mounted under.
		u.Path = requestPath[0:index] + "/"
	}

	return NewURLBuilder(u, relative)
}

// routeDescriptorsMap pins the static path of routes the builder needs to
// recognize when extracting a mount prefix from a request path.
var routeDescriptorsMap = map[string]string{
	RouteNameBase: "/api/v1/",
}

// BuildBaseURL constructs a base url for the API, typically just "/api/v1/".
func (ub *URLBuilder) BuildBaseURL() (string, error) {
	route := ub.cloneRoute(RouteNameBase)

	baseURL, err := route.URL()
	if err != nil {
		return "", err
	}

	return baseURL.String(), nil
}

// BuildPackageURL constructs a url to the package metadata endpoint.
func (ub *URLBuilder) BuildPackageURL(owner, repo string) (string, error) {
	route := ub.cloneRoute(RouteNamePackage)

	u, err := route.URL("owner", owner, "repo", repo)
	if err != nil {
		return "", err
	}

	return u.String(), nil
}

// BuildReleaseURL constructs a url to the single-release endpoint.
func (ub *URLBuilder) BuildReleaseURL(owner, repo, tag string) (string, error) {
	route := ub.cloneRoute(RouteNameRelease)

	u, err := route.URL("owner", owner, "repo", repo, "tag", tag)
	if err != nil {
		return "", err
	}

	return u.String(), nil
}

// BuildDownloadURL constructs a url to stream the release archive.
func (ub *URLBuilder) BuildDownloadURL(owner, repo, tag string) (string, error) {
	route := ub.cloneRoute(RouteNameDownload)

	u, err := route.URL("owner", owner, "repo", repo, "tag", tag)
	if err != nil {
		return "", err
	}

	return u.String(), nil
}

// clondedRoute returns a clone of the named route from the router. Routes
// must be cloned to avoid modifying them during url generation.
func (ub *URLBuilder) cloneRoute(name string) clonedRoute {
	route := new(mux.Route)
	root := new(url.URL)

	*route = *ub.router.GetRoute(name) // clone the route
	*root = *ub.root

	return clonedRoute{Route: route, root: root, relative: ub.relative}
}

type clonedRoute struct {
	*mux.Route
	root     *url.URL
	relative bool
}

func (cr clonedRoute) URL(pairs ...string) (*url.URL, error) {
	routeURL, err := cr.Route.URL(pairs...)
	if err != nil {
		return nil, err
	}

	if cr.relative {
		return routeURL, nil
	}

	if routeURL.Scheme == "" && routeURL.User == nil && routeURL.Host == "" {
		routeURL.Path = routeURL.Path[1:]
	}

	url := cr.root.ResolveReference(routeURL)
	url.Scheme = cr.root.Scheme
	return url, nil
}
