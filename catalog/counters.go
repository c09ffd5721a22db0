package catalog

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dcontext "github.com/zpkg/registry/context"
)

const (
	defaultFlushInterval  = 5 * time.Second
	defaultFlushThreshold = 64
)

type releaseKey struct {
	owner, repo, tag string
}

// downloadCounter coalesces download-count increments in memory and writes
// them through in batches, so a hot release does not serialize every
// download on a row update. Increments are never dropped: stop() performs a
// final flush.
type downloadCounter struct {
	catalog   *Catalog
	interval  time.Duration
	threshold int

	mu      sync.Mutex
	pending map[releaseKey]int64
	total   int64

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

func newDownloadCounter(c *Catalog, interval time.Duration, threshold int) *downloadCounter {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	if threshold <= 0 {
		threshold = defaultFlushThreshold
	}

	dc := &downloadCounter{
		catalog:   c,
		interval:  interval,
		threshold: threshold,
		pending:   make(map[releaseKey]int64),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	go dc.run()

	return dc
}

func (dc *downloadCounter) add(owner, repo, tag string) {
	dc.mu.Lock()
	dc.pending[releaseKey{owner, repo, tag}]++
	dc.total++
	kick := dc.total >= int64(dc.threshold)
	dc.mu.Unlock()

	if kick {
		select {
		case dc.kick <- struct{}{}:
		default:
		}
	}
}

func (dc *downloadCounter) run() {
	ticker := time.NewTicker(dc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-dc.kick:
		case <-dc.done:
			return
		}

		if err := dc.flush(context.Background()); err != nil {
			dcontext.GetLogger(context.Background()).Errorf("flushing download counters: %v", err)
		}
	}
}

// flush writes all pending increments in one transaction. On failure the
// increments are restored so no download is lost.
func (dc *downloadCounter) flush(ctx context.Context) error {
	dc.mu.Lock()
	if len(dc.pending) == 0 {
		dc.mu.Unlock()
		return nil
	}
	batch := dc.pending
	dc.pending = make(map[releaseKey]int64)
	dc.total = 0
	dc.mu.Unlock()

	err := dc.catalog.inTx(ctx, func(tx *sql.Tx) error {
		day := utcDay()
		for key, n := range batch {
			if _, err := tx.Exec(`
				UPDATE releases SET downloads = downloads + ?
				WHERE owner = ? AND repo = ? AND tag = ?`,
				n, key.owner, key.repo, key.tag); err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO download_counts (owner, repo, tag, day, count)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (owner, repo, tag, day) DO UPDATE SET
					count = count + excluded.count`,
				key.owner, key.repo, key.tag, day, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		dc.mu.Lock()
		for key, n := range batch {
			dc.pending[key] += n
			dc.total += n
		}
		dc.mu.Unlock()
		return err
	}

	return nil
}

// stop flushes remaining increments and ends the background writer.
func (dc *downloadCounter) stop() {
	dc.once.Do(func() { close(dc.done) })
	if err := dc.flush(context.Background()); err != nil {
		dcontext.GetLogger(context.Background()).Errorf("final download counter flush: %v", err)
	}
}
