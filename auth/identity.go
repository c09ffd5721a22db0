package auth

import (
	"strings"
)

// RemoteIdentity is what a delegated-identity provider vouches for after a
// successful callback, normalized across OIDC and plain OAuth.
type RemoteIdentity struct {
	Provider          string
	Subject           string
	Email             string
	EmailVerified     bool
	PreferredUsername string
}

// UsernameBase derives the base username for a first federated sign-in:
// the provider's preferred username if present, otherwise the local part of
// the email. Characters outside the identifier charset are dropped. The
// caller de-duplicates with a numeric suffix.
func (ri RemoteIdentity) UsernameBase() string {
	base := ri.PreferredUsername
	if base == "" {
		base, _, _ = strings.Cut(ri.Email, "@")
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	if cleaned == "" {
		cleaned = "user"
	}

	return cleaned
}
