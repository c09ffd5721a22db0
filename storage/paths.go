package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Blob layout on disk:
//
//	<root>/packages/<owner>/<repo>/<tag>.zpkg
//
// The tag keeps its dots; owner, repo and tag are validated against path
// separators and parent references before any path is derived.

// ArchiveExtension is the on-disk suffix for stored archives.
const ArchiveExtension = ".zpkg"

// ErrPathInvalid is returned for path components that could escape the
// blob root.
type ErrPathInvalid struct {
	Component string
}

func (e ErrPathInvalid) Error() string {
	return fmt.Sprintf("invalid path component %q", e.Component)
}

// blobPath derives the archive path for a release, refusing components that
// contain separators or parent references.
func (bs *BlobStore) blobPath(owner, repo, tag string) (string, error) {
	for _, component := range []string{owner, repo, tag} {
		if err := checkPathComponent(component); err != nil {
			return "", err
		}
	}

	return filepath.Join(bs.root, "packages", owner, repo, tag+ArchiveExtension), nil
}

func checkPathComponent(component string) error {
	if component == "" ||
		component == "." || component == ".." ||
		strings.ContainsAny(component, `/\`) {
		return ErrPathInvalid{Component: component}
	}
	return nil
}
