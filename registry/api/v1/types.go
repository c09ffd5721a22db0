package v1

// Wire types for the forge-compatible v1 surface. Timestamps are unix
// seconds rendered as JSON integers.

// Package is the response body of the package metadata endpoint and the
// element type of search results.
type Package struct {
	Owner           string   `json:"owner"`
	Repo            string   `json:"repo"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	Topics          []string `json:"topics"`
	License         string   `json:"license"`
	Homepage        string   `json:"homepage"`
	GithubURL       string   `json:"github_url"`
	StargazersCount int      `json:"stargazers_count"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
	Private         bool     `json:"private"`
}

// Release is the response body for single releases and the element type of
// release listings. PublishedAt is null while the release is a draft.
type Release struct {
	ID          int64  `json:"id"`
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	Draft       bool   `json:"draft"`
	Prerelease  bool   `json:"prerelease"`
	CreatedAt   int64  `json:"created_at"`
	PublishedAt *int64 `json:"published_at"`
	TarballURL  string `json:"tarball_url"`
	ZipballURL  string `json:"zipball_url"`
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`
	SHA256      string `json:"sha256"`
}

// Tag is the element type of the tags listing, a subset of the release
// fields shaped like the forge's tag objects.
type Tag struct {
	Name       string `json:"name"`
	TarballURL string `json:"tarball_url"`
	ZipballURL string `json:"zipball_url"`
}

// SearchResults wraps ranked package summaries.
type SearchResults struct {
	Items      []Package `json:"items"`
	TotalCount int       `json:"total_count"`
}

// Alias is the response body of alias resolution.
type Alias struct {
	ShortName string `json:"short_name"`
	FullName  string `json:"full_name"`
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	CreatedAt int64  `json:"created_at"`
	CreatedBy string `json:"created_by"`
}

// Health is the liveness document.
type Health struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Version   string          `json:"version"`
	Features  map[string]bool `json:"features"`
}

// Stats carries aggregate registry counts.
type Stats struct {
	TotalPackages  int64 `json:"total_packages"`
	TotalDownloads int64 `json:"total_downloads"`
	DownloadsToday int64 `json:"downloads_today"`
}

// RegistryConfig is the capability document served at
// /api/v1/registry/config.
type RegistryConfig struct {
	Name           string          `json:"name"`
	Domain         string          `json:"domain"`
	MaxPackageSize int64           `json:"max_package_size"`
	Features       map[string]bool `json:"features"`
	AuthProviders  []string        `json:"auth_providers"`
}

// AuthSession is returned by register, login and delegated-identity
// callbacks.
type AuthSession struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// Identity is the response body of the auth/me endpoint.
type Identity struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	Authenticated bool   `json:"authenticated"`
	Admin         bool   `json:"admin,omitempty"`
}

// DiscoveredPackage is the element type of the discovery proxy surface.
type DiscoveredPackage struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Stars       int      `json:"stars"`
	Score       float64  `json:"score"`
	Topics      []string `json:"topics"`
}
