// Package metrics exposes Prometheus counters and histograms for the
// HTTP surface and the auction engine's core operations, grounded on
// the pack's promauto usage (spec.md §4.9 ambient observability).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auctionhouse",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests by method, route and status.",
}, []string{"method", "route", "status"})

var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "auctionhouse",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

var BidsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auctionhouse",
	Subsystem: "bids",
	Name:      "placed_total",
	Help:      "Total bids admitted, by outcome.",
}, []string{"outcome"})

var AntiSnipeTriggers = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "auctionhouse",
	Subsystem: "bids",
	Name:      "anti_snipe_triggers_total",
	Help:      "Total anti-snipe round extensions triggered.",
})

var RoundsSettled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "auctionhouse",
	Subsystem: "rounds",
	Name:      "settled_total",
	Help:      "Total rounds that completed settlement.",
})

var SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "auctionhouse",
	Subsystem: "rounds",
	Name:      "settlement_duration_seconds",
	Help:      "Time spent inside ProcessRound's critical section.",
	Buckets:   prometheus.DefBuckets,
})

var JobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "auctionhouse",
	Subsystem: "queue",
	Name:      "job_retries_total",
	Help:      "Total job handler retries, by job kind.",
}, []string{"kind"})

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, latency time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}
