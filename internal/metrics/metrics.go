// Package metrics exposes Prometheus collectors for the alarm resolution
// pipeline. Registered on the default registry; cmd/server mounts
// promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FileQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camalarm_file_queries_total",
		Help: "OPFileQuery calls by kind and outcome.",
	}, []string{"kind", "status"})

	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camalarm_downloads_total",
		Help: "Payload downloads by outcome.",
	}, []string{"status"})

	DownloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camalarm_download_bytes",
		Help:    "Downloaded payload sizes.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 10),
	})

	PayloadClassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camalarm_payload_class_total",
		Help: "Downloaded payload classifications.",
	}, []string{"class"})

	ExtractionScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camalarm_extraction_score",
		Help:    "Quality score of the chosen frame.",
		Buckets: prometheus.LinearBuckets(0, 250, 12),
	})

	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camalarm_resolutions_total",
		Help: "Alarm events by final resolution strategy.",
	}, []string{"strategy"})

	ResolutionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camalarm_resolution_seconds",
		Help:    "Wall time to resolve one alarm event.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	RealtimeAlarmsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camalarm_realtime_alarms_total",
		Help: "Alarm notifications received on the push channel.",
	})

	ListenerResubscribesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camalarm_listener_resubscribes_total",
		Help: "Times the realtime channel was torn down and rebuilt.",
	})
)
