// Package telemetry exposes the process metrics on /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts routed events by branch.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "igvault_events_total",
		Help: "Inbound events by routing branch.",
	}, []string{"branch"})

	// EventErrors counts events whose routing surfaced an error.
	EventErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "igvault_event_errors_total",
		Help: "Events that failed with a surfaced error.",
	})

	// RecordsMerged counts records applied to the merge store by container.
	RecordsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "igvault_records_merged_total",
		Help: "Records merged into the store by container.",
	}, []string{"container"})

	// ArchivesAssembled counts completed archive assemblies.
	ArchivesAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "igvault_archives_assembled_total",
		Help: "Completed archive assemblies.",
	})

	// ArchiveEntries counts members written into archives.
	ArchiveEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "igvault_archive_entries_total",
		Help: "Members written into assembled archives.",
	})

	// ArchiveFailures counts aborted archive assemblies.
	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "igvault_archive_failures_total",
		Help: "Archive assemblies aborted by an entry failure.",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "igvault_http_request_duration_seconds",
		Help:    "HTTP request latency by path and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "status"})
)

// Middleware records request durations into the latency histogram.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		requestDuration.
			WithLabelValues(r.URL.Path, strconv.Itoa(srw.status)).
			Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
