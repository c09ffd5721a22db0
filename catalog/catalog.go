// Package catalog implements the registry's relational state: packages,
// releases, aliases, users, tokens and aggregate statistics, over SQLite.
// All multi-row writes happen inside transactions; unique indexes enforce
// the identity invariants and surface as typed sentinel errors.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Catalog is a handle to the registry's relational store. It is safe for
// concurrent use; the underlying sql.DB pools connections.
type Catalog struct {
	db       *sql.DB
	counters *downloadCounter
}

// Options tune a Catalog at open.
type Options struct {
	// MaxOpenConns bounds the connection pool. Zero keeps the driver
	// default.
	MaxOpenConns int

	// FlushInterval overrides how often coalesced download counters are
	// written through. Zero means the 5 s default.
	FlushInterval time.Duration

	// FlushThreshold overrides how many pending increments force an early
	// write-through. Zero means the default of 64.
	FlushThreshold int
}

// Open opens (and if necessary creates) the catalog at path and migrates it
// to the current schema. Use ":memory:" for throwaway stores in tests.
func Open(ctx context.Context, path string, opts Options) (*Catalog, error) {
	// _busy_timeout avoids spurious SQLITE_BUSY under concurrent writers;
	// foreign keys are off by default in sqlite.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog %s: %w", path, err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Catalog{db: db}
	c.counters = newDownloadCounter(c, opts.FlushInterval, opts.FlushThreshold)

	return c, nil
}

// Ping verifies the store is reachable. Wired into the health registry.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close flushes pending download counters and closes the store.
func (c *Catalog) Close() error {
	c.counters.stop()
	return c.db.Close()
}

// now is stubbed in tests.
var now = func() int64 { return time.Now().Unix() }

// inTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
