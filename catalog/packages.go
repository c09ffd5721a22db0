package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
)

// GetPackage fetches one package by owner and repo.
func (c *Catalog) GetPackage(ctx context.Context, owner, repo string) (*Package, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, owner, repo, description, topics, license, homepage,
		       source_url, stars, private, created_at, updated_at
		FROM packages WHERE owner = ? AND repo = ?`, owner, repo)
	return scanPackage(row)
}

// UpsertPackageFromRelease creates the package row on first publish, or
// refreshes its metadata and updated timestamp on subsequent publishes. It
// returns the package id. Runs on the provided transaction so that publish
// stays atomic.
func upsertPackageFromRelease(tx *sql.Tx, owner, repo string, hints PackageHints) (int64, error) {
	ts := now()
	topics, err := json.Marshal(append([]string{}, hints.Topics...))
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		INSERT INTO packages (owner, repo, description, topics, license,
		                      homepage, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, repo) DO UPDATE SET
			description = CASE WHEN excluded.description != '' THEN excluded.description ELSE description END,
			topics      = CASE WHEN excluded.topics != '[]' THEN excluded.topics ELSE topics END,
			license     = CASE WHEN excluded.license != '' THEN excluded.license ELSE license END,
			homepage    = CASE WHEN excluded.homepage != '' THEN excluded.homepage ELSE homepage END,
			source_url  = CASE WHEN excluded.source_url != '' THEN excluded.source_url ELSE source_url END,
			updated_at  = excluded.updated_at`,
		owner, repo, hints.Description, string(topics), hints.License,
		hints.Homepage, hints.SourceURL, ts, ts)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRow(`SELECT id FROM packages WHERE owner = ? AND repo = ?`,
		owner, repo).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// SearchPackages ranks packages against q: an owner match weighs 3, a repo
// match 2 and a description match 1. Ties break by star count, then by
// update time. The query is LIKE-escaped; limit is clamped by the caller.
func (c *Catalog) SearchPackages(ctx context.Context, q string, limit int) ([]*Package, error) {
	if limit <= 0 {
		return []*Package{}, nil
	}

	pattern := "%" + escapeLike(q) + "%"

	// The rank alias cannot be referenced from WHERE in sqlite, hence the
	// subquery.
	rows, err := c.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT id, owner, repo, description, topics, license, homepage,
			       source_url, stars, private, created_at, updated_at,
			       (CASE WHEN owner LIKE ?1 ESCAPE '\' THEN 3 ELSE 0 END +
			        CASE WHEN repo LIKE ?1 ESCAPE '\' THEN 2 ELSE 0 END +
			        CASE WHEN description LIKE ?1 ESCAPE '\' THEN 1 ELSE 0 END) AS rank
			FROM packages
			WHERE private = 0
		)
		WHERE rank > 0
		ORDER BY rank DESC, stars DESC, updated_at DESC
		LIMIT ?2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Package
	for rows.Next() {
		var rank int
		p, err := scanPackageColumns(rows, &rank)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}

	return results, rows.Err()
}

// escapeLike escapes the LIKE metacharacters in q with backslash.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPackage(row rowScanner) (*Package, error) {
	return scanPackageColumns(row)
}

func scanPackageColumns(row rowScanner, extra ...interface{}) (*Package, error) {
	var (
		p      Package
		topics string
	)

	dest := []interface{}{
		&p.ID, &p.Owner, &p.Repo, &p.Description, &topics, &p.License,
		&p.Homepage, &p.SourceURL, &p.Stars, &p.Private, &p.CreatedAt,
		&p.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(topics), &p.Topics); err != nil {
		p.Topics = nil
	}
	if p.Topics == nil {
		p.Topics = []string{}
	}

	return &p, nil
}
