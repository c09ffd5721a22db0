package v1

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// MaxIdentifierLength is the longest accepted owner, repository or alias
// short name.
const MaxIdentifierLength = 64

// IdentifierRegexp matches the charset allowed for owners, repositories and
// alias short names. Length is checked separately so that oversized names
// report a distinct error.
var IdentifierRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrIdentifierInvalid is returned by ValidateIdentifier for names outside
// the allowed charset or length.
type ErrIdentifierInvalid struct {
	Name string
}

func (e ErrIdentifierInvalid) Error() string {
	return fmt.Sprintf("invalid identifier %q", e.Name)
}

// ValidateIdentifier checks that name is usable as an owner, repository or
// alias short name.
func ValidateIdentifier(name string) error {
	if name == "" || len(name) > MaxIdentifierLength || !IdentifierRegexp.MatchString(name) {
		return ErrIdentifierInvalid{Name: name}
	}
	return nil
}

// ParseTag parses tag as a semantic version, accepting an optional leading
// "v". Publish requires semver form; other operations only need the tag to
// round-trip as an opaque string.
func ParseTag(tag string) (*semver.Version, error) {
	return semver.StrictNewVersion(trimTagPrefix(tag))
}

func trimTagPrefix(tag string) string {
	if len(tag) > 1 && tag[0] == 'v' {
		return tag[1:]
	}
	return tag
}
