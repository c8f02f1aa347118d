// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "divvy"

var (
	// CacheLookups counts bill reads by result: hit, miss or bypass.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Bill reads served from the in-process cache, by result.",
	}, []string{"result"})

	// Mutations counts engine operations by outcome (ok or the error kind).
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bill_mutations_total",
		Help:      "Bill mutation operations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	StorageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_retries_total",
		Help:      "Storage operations retried after a transient failure.",
	}, []string{"operation"})

	StorageFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_fallbacks_total",
		Help:      "Reads served by the local file after the primary store failed.",
	}, []string{"operation"})

	OCRDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ocr_extraction_seconds",
		Help:      "Receipt extraction latency, by engine and outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	}, []string{"engine", "outcome"})

	CachedBills = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_bills",
		Help:      "Number of bills held in the in-process cache.",
	})
)
