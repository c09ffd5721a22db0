// Package metrics holds the registry's process-wide Prometheus
// collectors for the blob store. HTTP-level metrics live with the
// dispatcher that records them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlobIngestBytes counts the bytes durably committed to the blob
	// store. Rejected or aborted uploads are not counted.
	BlobIngestBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "storage",
		Name:      "ingest_bytes_total",
		Help:      "Bytes durably committed to the blob store.",
	})

	// BlobIngests counts blob store ingests by outcome.
	BlobIngests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "storage",
		Name:      "ingests_total",
		Help:      "Blob ingests, by outcome.",
	}, []string{"outcome"})

	// BlobDeletes counts archives removed from the blob store.
	BlobDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "storage",
		Name:      "deletes_total",
		Help:      "Archives removed from the blob store.",
	})
)

// IngestOutcome buckets a Store result for the ingest counter.
func IngestOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
