package catalog

import (
	"context"
	"database/sql"
)

// ResolveAlias fetches an alias by short name. Dangling aliases (target
// package gone) still resolve here; the router decides what a dangling
// alias means for the client.
func (c *Catalog) ResolveAlias(ctx context.Context, shortName string) (*Alias, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT short_name, owner, repo, created_by, created_at
		FROM aliases WHERE short_name = ?`, shortName)

	var a Alias
	err := row.Scan(&a.ShortName, &a.Owner, &a.Repo, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

// UpsertAlias creates the alias or repoints it at a new target. Idempotent
// for identical targets.
func (c *Catalog) UpsertAlias(ctx context.Context, shortName, owner, repo, creator string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO aliases (short_name, owner, repo, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (short_name) DO UPDATE SET
			owner = excluded.owner,
			repo = excluded.repo,
			created_by = excluded.created_by`,
		shortName, owner, repo, creator, now())
	return err
}

// DeleteAlias removes an alias.
func (c *Catalog) DeleteAlias(ctx context.Context, shortName string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM aliases WHERE short_name = ?`, shortName)
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
