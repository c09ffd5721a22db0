// Package storage implements the registry's content-addressed blob store: a
// filesystem layout of release archives, fingerprinted with SHA-256 on
// ingest and streamed back with integrity metadata on retrieval.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/zpkg/registry/metrics"
)

var (
	// ErrBlobExists is returned by Store when the destination exists with a
	// different fingerprint. Storing identical bytes twice succeeds
	// idempotently.
	ErrBlobExists = errors.New("storage: blob already exists")

	// ErrBlobUnknown is returned when no archive is stored for the release.
	ErrBlobUnknown = errors.New("storage: blob unknown")

	// ErrBlobTooLarge is returned by Store when the payload exceeds the
	// configured maximum size.
	ErrBlobTooLarge = errors.New("storage: blob exceeds maximum size")
)

// Descriptor describes a stored archive. Created reports whether the
// Store call that returned it wrote the file, as opposed to succeeding
// idempotently over bytes an earlier publish committed; only blobs this
// call created are the caller's to clean up.
type Descriptor struct {
	Path    string
	Size    int64
	SHA256  string
	Created bool
}

// BlobStore keeps release archives on the local filesystem. Writes are
// atomic (spool to a temp file, then rename) and ingest of one
// (owner, repo, tag) is serialized by a per-path mutex, so two concurrent
// publishes cannot race to the same destination.
type BlobStore struct {
	root    string
	maxSize int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBlobStore returns a store rooted at root. maxSize caps Store payloads
// in bytes; zero means no cap.
func NewBlobStore(root string, maxSize int64) *BlobStore {
	return &BlobStore{
		root:    root,
		maxSize: maxSize,
		locks:   map[string]*sync.Mutex{},
	}
}

// Store ingests the archive for a release from rd, fingerprinting it while
// spooling to a temp file next to the destination, then renames it into
// place. If the destination already holds bytes with the same fingerprint
// the call succeeds without rewriting; a different fingerprint returns
// ErrBlobExists. The temp file never becomes visible: it is renamed on
// success and unlinked on any failure, including context cancellation.
func (bs *BlobStore) Store(ctx context.Context, owner, repo, tag string, rd io.Reader) (desc Descriptor, err error) {
	defer func() {
		metrics.BlobIngests.WithLabelValues(metrics.IngestOutcome(err)).Inc()
	}()

	dest, err := bs.blobPath(owner, repo, tag)
	if err != nil {
		return Descriptor{}, err
	}

	lock := bs.pathLock(dest)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Descriptor{}, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "ingest-*.tmp")
	if err != nil {
		return Descriptor{}, fmt.Errorf("creating temp blob: %w", err)
	}

	// Unlink the temp file on every non-success path.
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	digester := sha256.New()
	limit := bs.maxSize

	var written int64
	buf := make([]byte, 32<<10)
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return Descriptor{}, err
		}

		n, rerr := rd.Read(buf)
		if n > 0 {
			written += int64(n)
			if limit > 0 && written > limit {
				cleanup()
				return Descriptor{}, ErrBlobTooLarge
			}
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				cleanup()
				return Descriptor{}, fmt.Errorf("writing blob: %w", werr)
			}
			digester.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			cleanup()
			return Descriptor{}, fmt.Errorf("reading upload: %w", rerr)
		}
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return Descriptor{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Descriptor{}, err
	}

	fingerprint := hex.EncodeToString(digester.Sum(nil))

	if existing, err := fingerprintFile(dest); err == nil {
		os.Remove(tmp.Name())
		if existing == fingerprint {
			// Identical content is already durable; idempotent success.
			return Descriptor{Path: dest, Size: written, SHA256: fingerprint}, nil
		}
		return Descriptor{}, ErrBlobExists
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return Descriptor{}, fmt.Errorf("committing blob: %w", err)
	}

	metrics.BlobIngestBytes.Add(float64(written))
	return Descriptor{Path: dest, Size: written, SHA256: fingerprint, Created: true}, nil
}

// Open returns a reader over the stored archive along with its descriptor.
// The caller owns the returned ReadCloser.
func (bs *BlobStore) Open(ctx context.Context, owner, repo, tag string) (io.ReadCloser, Descriptor, error) {
	path, err := bs.blobPath(owner, repo, tag)
	if err != nil {
		return nil, Descriptor{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Descriptor{}, ErrBlobUnknown
		}
		return nil, Descriptor{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Descriptor{}, err
	}

	return f, Descriptor{Path: path, Size: fi.Size()}, nil
}

// Retrieve reads the whole archive into memory. Prefer Open for streaming;
// this exists for callers that need the bytes, such as integrity audits.
func (bs *BlobStore) Retrieve(ctx context.Context, owner, repo, tag string) ([]byte, error) {
	rc, _, err := bs.Open(ctx, owner, repo, tag)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Exists reports whether an archive is stored for the release.
func (bs *BlobStore) Exists(owner, repo, tag string) bool {
	path, err := bs.blobPath(owner, repo, tag)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the stored archive. Used by release deletion, best-effort.
func (bs *BlobStore) Delete(owner, repo, tag string) error {
	path, err := bs.blobPath(owner, repo, tag)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobUnknown
		}
		return err
	}

	metrics.BlobDeletes.Inc()
	return nil
}

// Fingerprint recomputes the SHA-256 of the stored archive. Used by
// integrity audits; retrieval trusts the catalog's recorded fingerprint.
func (bs *BlobStore) Fingerprint(owner, repo, tag string) (string, error) {
	path, err := bs.blobPath(owner, repo, tag)
	if err != nil {
		return "", err
	}

	fp, err := fingerprintFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobUnknown
		}
		return "", err
	}

	return fp, nil
}

// pathLock returns the mutex guarding one destination path.
func (bs *BlobStore) pathLock(path string) *sync.Mutex {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	lock, ok := bs.locks[path]
	if !ok {
		lock = new(sync.Mutex)
		bs.locks[path] = lock
	}
	return lock
}

func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	digester := sha256.New()
	if _, err := io.Copy(digester, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(digester.Sum(nil)), nil
}
