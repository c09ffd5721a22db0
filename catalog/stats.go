package catalog

import (
	"context"
	"database/sql"
	"time"
)

// GetStats returns the aggregate counters: package total, all-time download
// total and downloads recorded today (UTC). Pending coalesced increments
// are flushed first so the numbers reflect completed downloads.
func (c *Catalog) GetStats(ctx context.Context) (*Stats, error) {
	if err := c.counters.flush(ctx); err != nil {
		return nil, err
	}

	var s Stats
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM packages`).Scan(&s.TotalPackages); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(downloads), 0) FROM releases`).Scan(&s.TotalDownloads); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM download_counts WHERE day = ?`,
		utcDay()).Scan(&s.DownloadsToday); err != nil {
		return nil, err
	}

	return &s, nil
}

// IncrementDownloadCount records one completed download. Increments are
// coalesced in memory and written through in batches; the per-release
// counter is monotonic.
func (c *Catalog) IncrementDownloadCount(ctx context.Context, owner, repo, tag string) {
	c.counters.add(owner, repo, tag)
}

// GetRegistryConfig reads one key from the registry_config table.
func (c *Catalog) GetRegistryConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM registry_config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// SetRegistryConfig writes one key into the registry_config table.
func (c *Catalog) SetRegistryConfig(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO registry_config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func utcDay() string {
	return time.Unix(now(), 0).UTC().Format("2006-01-02")
}
