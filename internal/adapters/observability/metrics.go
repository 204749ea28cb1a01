package observability

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"barefoot_sync/internal/domain"
)

const namespace = "barefoot"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound SOAP calls."},
		[]string{"service", "operation", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound SOAP call duration seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "operation"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sync_runs_total", Help: "Sync runs by terminal state."},
		[]string{"state"},
	)
	SyncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "sync_records_total", Help: "Reconciled records by outcome."},
		[]string{"outcome"}, // created|updated|unchanged|failed
	)
	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_run_duration_seconds",
			Help:    "Wall time of a sync run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

// Serve exposes the default registry on addr. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		SyncRuns, SyncRecords, SyncDuration)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveExternal records one outbound call. status is the HTTP status, or
// 0 when no response arrived.
func ObserveExternal(service, operation string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, operation, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, operation).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveSyncRun(r domain.SyncResult) {
	SyncRuns.WithLabelValues(string(r.State)).Inc()
	SyncRecords.WithLabelValues("created").Add(float64(r.Created))
	SyncRecords.WithLabelValues("updated").Add(float64(r.Updated))
	SyncRecords.WithLabelValues("unchanged").Add(float64(r.Unchanged))
	SyncRecords.WithLabelValues("failed").Add(float64(len(r.Errors)))
	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		SyncDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
}

// LabelErr maps an error to a low-cardinality label.
func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	if k := domain.KindOf(err); k != domain.KindUnknown {
		return string(k)
	}
	return fmt.Sprintf("%T", err)
}
