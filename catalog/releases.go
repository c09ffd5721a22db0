package catalog

import (
	"context"
	"database/sql"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// CreateRelease records a new release inside one transaction, creating or
// refreshing the owning package row. The blob must already be durable; the
// row stores its size and fingerprint. Returns ErrVersionExists when the
// (owner, repo, tag) triple is taken.
func (c *Catalog) CreateRelease(ctx context.Context, owner, repo, tag string, attrs ReleaseAttrs, blob BlobRef, hints PackageHints) (*Release, error) {
	var rel *Release

	err := c.inTx(ctx, func(tx *sql.Tx) error {
		pkgID, err := upsertPackageFromRelease(tx, owner, repo, hints)
		if err != nil {
			return err
		}

		ts := now()
		var publishedAt *int64
		if !attrs.Draft {
			publishedAt = &ts
		}

		res, err := tx.Exec(`
			INSERT INTO releases (package_id, owner, repo, tag, name, body,
			                      draft, prerelease, created_at, published_at,
			                      file_size, sha256)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pkgID, owner, repo, tag, attrs.Name, attrs.Body,
			attrs.Draft, attrs.Prerelease, ts, publishedAt,
			blob.Size, blob.SHA256)
		if err != nil {
			return mapUniqueError(err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		rel = &Release{
			ID:          id,
			PackageID:   pkgID,
			Owner:       owner,
			Repo:        repo,
			Tag:         tag,
			Name:        attrs.Name,
			Body:        attrs.Body,
			Draft:       attrs.Draft,
			Prerelease:  attrs.Prerelease,
			CreatedAt:   ts,
			PublishedAt: publishedAt,
			FileSize:    blob.Size,
			SHA256:      blob.SHA256,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rel, nil
}

// GetRelease fetches one release by owner, repo and tag.
func (c *Catalog) GetRelease(ctx context.Context, owner, repo, tag string) (*Release, error) {
	row := c.db.QueryRowContext(ctx, releaseColumns+`
		WHERE owner = ? AND repo = ? AND tag = ?`, owner, repo, tag)
	return scanRelease(row)
}

// ListReleases returns all releases of a package ordered by semantic
// version, newest first. Tags that fail semver parsing sort last, by tag
// string descending, so that legacy rows stay visible.
func (c *Catalog) ListReleases(ctx context.Context, owner, repo string) ([]*Release, error) {
	rows, err := c.db.QueryContext(ctx, releaseColumns+`
		WHERE owner = ? AND repo = ?`, owner, repo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []*Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortReleases(releases)
	return releases, nil
}

// DeleteRelease removes one release row. The blob is not touched here;
// blob garbage collection is an admin operation.
func (c *Catalog) DeleteRelease(ctx context.Context, owner, repo, tag string) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM releases WHERE owner = ? AND repo = ? AND tag = ?`,
		owner, repo, tag)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// SortReleases orders releases by semver descending; pre-releases of a
// version sort below that version per semver 2.0.0. Unparseable tags go
// last.
func SortReleases(releases []*Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		vi, erri := parseTagVersion(releases[i].Tag)
		vj, errj := parseTagVersion(releases[j].Tag)

		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return releases[i].Tag > releases[j].Tag
		}
	})
}

func parseTagVersion(tag string) (*semver.Version, error) {
	if len(tag) > 1 && tag[0] == 'v' {
		tag = tag[1:]
	}
	return semver.NewVersion(tag)
}

const releaseColumns = `
	SELECT id, package_id, owner, repo, tag, name, body, draft, prerelease,
	       created_at, published_at, file_size, sha256, downloads
	FROM releases`

func scanRelease(row rowScanner) (*Release, error) {
	var (
		rel         Release
		publishedAt sql.NullInt64
	)

	err := row.Scan(&rel.ID, &rel.PackageID, &rel.Owner, &rel.Repo, &rel.Tag,
		&rel.Name, &rel.Body, &rel.Draft, &rel.Prerelease, &rel.CreatedAt,
		&publishedAt, &rel.FileSize, &rel.SHA256, &rel.Downloads)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if publishedAt.Valid {
		rel.PublishedAt = &publishedAt.Int64
	}

	return &rel, nil
}
