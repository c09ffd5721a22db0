package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "registry",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled, by route and status code.",
	}, []string{"route", "method", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zpkg",
		Subsystem: "registry",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	downloadsServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "registry",
		Name:      "downloads_served_total",
		Help:      "Release archives fully streamed to clients.",
	})

	publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zpkg",
		Subsystem: "registry",
		Name:      "publishes_total",
		Help:      "Publish attempts, by outcome.",
	}, []string{"outcome"})
)

// instrumentResponse records one completed dispatch. Route names come from
// the routing table, so cardinality stays bounded regardless of request
// paths.
func instrumentResponse(route *mux.Route, r *http.Request, status int, seconds float64) {
	name := "unknown"
	if route != nil && route.GetName() != "" {
		name = route.GetName()
	}
	if status == 0 {
		status = http.StatusOK
	}

	requestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(status)).Inc()
	if seconds > 0 {
		requestDuration.WithLabelValues(name).Observe(seconds)
	}
}
