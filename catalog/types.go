package catalog

// Package is a row of the packages table.
type Package struct {
	ID          int64
	Owner       string
	Repo        string
	Description string
	Topics      []string
	License     string
	Homepage    string
	SourceURL   string
	Stars       int
	Private     bool
	CreatedAt   int64
	UpdatedAt   int64
}

// FullName returns the unique owner/repo form.
func (p Package) FullName() string {
	return p.Owner + "/" + p.Repo
}

// PackageHints carries the optional metadata a publish may attach to the
// package it creates or refreshes.
type PackageHints struct {
	Description string
	Topics      []string
	License     string
	Homepage    string
	SourceURL   string
}

// Release is a row of the releases table. PublishedAt is nil while the
// release is a draft; a non-draft release always references a stored blob
// through FileSize and SHA256.
type Release struct {
	ID          int64
	PackageID   int64
	Owner       string
	Repo        string
	Tag         string
	Name        string
	Body        string
	Draft       bool
	Prerelease  bool
	CreatedAt   int64
	PublishedAt *int64
	FileSize    int64
	SHA256      string
	Downloads   int64
}

// ReleaseAttrs are the caller-supplied fields of a publish.
type ReleaseAttrs struct {
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
}

// BlobRef ties a release row to the stored archive it describes.
type BlobRef struct {
	Size   int64
	SHA256 string
}

// Alias is a row of the aliases table.
type Alias struct {
	ShortName string
	Owner     string
	Repo      string
	CreatedBy string
	CreatedAt int64
}

// User is a row of the users table. PasswordHash is nil for federated-only
// accounts.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash *string
	Active       bool
	Admin        bool
	CreatedAt    int64
}

// Identity is a linked federated identity.
type Identity struct {
	ID             int64
	UserID         int64
	Provider       string
	ProviderUserID string
	Display        string
	CreatedAt      int64
}

// Token is a row of the tokens table; rows exist so that logout can revoke
// otherwise stateless signed tokens.
type Token struct {
	Token     string
	UserID    int64
	IssuedAt  int64
	ExpiresAt *int64
	Scopes    string
}

// Stats carries the aggregate counters behind the stats endpoint.
type Stats struct {
	TotalPackages  int64
	TotalDownloads int64
	DownloadsToday int64
}
