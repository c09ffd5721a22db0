package catalog

import (
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrVersionExists is returned by CreateRelease when the
	// (owner, repo, tag) triple is already taken.
	ErrVersionExists = errors.New("catalog: release already exists")

	// ErrUsernameTaken is returned by CreateUser when the username is in
	// use.
	ErrUsernameTaken = errors.New("catalog: username taken")

	// ErrEmailTaken is returned by CreateUser when the email is in use.
	ErrEmailTaken = errors.New("catalog: email taken")

	// ErrAlreadyLinked is returned by LinkIdentity when the
	// (provider, provider_user_id) pair is linked to some user.
	ErrAlreadyLinked = errors.New("catalog: identity already linked")

	// ErrTokenExpired is returned by GetUserByToken for tokens past their
	// expiry.
	ErrTokenExpired = errors.New("catalog: token expired")

	// ErrUserInactive is returned when the row exists but the account has
	// been deactivated.
	ErrUserInactive = errors.New("catalog: user inactive")
)

// mapUniqueError translates a sqlite unique-constraint violation into the
// matching sentinel, using the index hints in the driver error text. Any
// other error is returned unchanged.
func mapUniqueError(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.Code != sqlite3.ErrConstraint {
		return err
	}

	msg := serr.Error()
	switch {
	case strings.Contains(msg, "releases.owner"):
		return ErrVersionExists
	case strings.Contains(msg, "users.username"):
		return ErrUsernameTaken
	case strings.Contains(msg, "users.email"):
		return ErrEmailTaken
	case strings.Contains(msg, "identities.provider"):
		return ErrAlreadyLinked
	}

	return fmt.Errorf("catalog: constraint violation: %w", err)
}
