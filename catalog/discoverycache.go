package catalog

import (
	"context"
	"database/sql"
)

// GetDiscoveryCache returns the cached payload for key and its age in
// seconds. ErrNotFound means a cold miss; TTL policy belongs to the
// discovery client, which may choose to serve stale entries when the
// upstream is down.
func (c *Catalog) GetDiscoveryCache(ctx context.Context, key string) (payload string, age int64, err error) {
	var fetchedAt int64
	err = c.db.QueryRowContext(ctx, `
		SELECT payload, fetched_at FROM discovery_cache WHERE cache_key = ?`,
		key).Scan(&payload, &fetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", 0, ErrNotFound
		}
		return "", 0, err
	}

	return payload, now() - fetchedAt, nil
}

// PutDiscoveryCache stores a fresh payload for key.
func (c *Catalog) PutDiscoveryCache(ctx context.Context, key, payload string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO discovery_cache (cache_key, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		key, payload, now())
	return err
}
