package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipperstats_events_processed_total",
		Help: "Events fully applied to the aggregate store, by kind.",
	}, []string{"kind"})

	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipperstats_events_duplicate_total",
		Help: "Events dropped by the deduper.",
	})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipperstats_events_failed_total",
		Help: "Events that aborted before flush, by kind.",
	}, []string{"kind"})

	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clipperstats_event_process_seconds",
		Help:    "Wall time of one event: handlers plus flush.",
		Buckets: prometheus.DefBuckets,
	})
)

func Handler() http.Handler {
	h := promhttp.Handler()
	return h
}
