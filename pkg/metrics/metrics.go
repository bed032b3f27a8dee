package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpenHandles tracks live handles by kind (database, snapshot, cursor, ...).
	OpenHandles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvlayer_open_handles",
			Help: "Number of handles currently open",
		},
		[]string{"kind"},
	)

	// ForcedCloses counts children closed by the cascade of a closing parent.
	ForcedCloses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvlayer_forced_closes_total",
			Help: "Handles closed because their parent was closed first",
		},
		[]string{"kind"},
	)

	// ArrayEntries counts entries returned by batched fetches.
	ArrayEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvlayer_array_entries_total",
			Help: "Entries returned by batched array fetches",
		},
		[]string{"variant"},
	)

	// ArrayFetchSize observes how full each batched fetch came back.
	ArrayFetchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvlayer_array_fetch_size",
			Help:    "Number of entries per batched array fetch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"variant"},
	)
)
