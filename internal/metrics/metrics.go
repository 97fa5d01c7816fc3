// Package metrics provides Prometheus metrics for the panel and the script host.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bridge metrics
	bridgeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_bridge_calls_total",
			Help: "Total bridge evaluations issued by the panel",
		},
		[]string{"function", "status"},
	)

	bridgeCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiokit_bridge_call_duration_seconds",
			Help:    "Bridge evaluation round-trip time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	bridgeRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiokit_bridge_retries_total",
			Help: "Evaluate requests retried after a transient failure",
		},
	)

	staleRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_stale_replies_total",
			Help: "Replies dropped because their rebuild or tab no longer exists",
		},
		[]string{"reason"},
	)

	malformedRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_malformed_replies_total",
			Help: "Replies that decoded to the empty value of their shape",
		},
		[]string{"shape"},
	)

	// Tree metrics
	rebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiokit_rebuilds_total",
			Help: "Total tab tree rebuilds started",
		},
	)

	rebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studiokit_rebuild_duration_seconds",
			Help:    "Time from rebuild start until every tab has settled",
			Buckets: prometheus.DefBuckets,
		},
	)

	tabsRendered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiokit_tabs_rendered",
			Help: "Number of tabs in the current tree",
		},
	)

	favouritesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiokit_favourites",
			Help: "Number of favourited scripts",
		},
	)

	// Settings metrics
	settingsOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiokit_settings_operation_duration_seconds",
			Help:    "Settings store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	settingsOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_settings_operations_total",
			Help: "Total settings store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Script host metrics
	scriptLaunchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_script_launches_total",
			Help: "Total scripts executed by the host",
		},
		[]string{"status"},
	)

	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_host_evaluations_total",
			Help: "Total expressions evaluated by the host",
		},
		[]string{"status"},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studiokit_host_evaluation_duration_seconds",
			Help:    "Host expression evaluation time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studiokit_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiokit_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiokit_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordBridgeCall records one bridge evaluation.
func RecordBridgeCall(function string, duration time.Duration, success bool) {
	bridgeCallsTotal.WithLabelValues(function, status(success)).Inc()
	bridgeCallDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordStaleReply records a reply dropped before touching the tree.
// reason is "generation" or "missing_tab".
func RecordBridgeRetry() {
	bridgeRetriesTotal.Inc()
}

func RecordStaleReply(reason string) {
	staleRepliesTotal.WithLabelValues(reason).Inc()
}

// RecordMalformedReply records a reply that decoded to its empty value.
func RecordMalformedReply(shape string) {
	malformedRepliesTotal.WithLabelValues(shape).Inc()
}

// RecordRebuildStart counts a rebuild.
func RecordRebuildStart() {
	rebuildsTotal.Inc()
}

// RecordRebuildSettled records how long a rebuild took to settle.
func RecordRebuildSettled(duration time.Duration) {
	rebuildDuration.Observe(duration.Seconds())
}

// SetTabsRendered sets the number of tabs in the current tree.
func SetTabsRendered(n int) {
	tabsRendered.Set(float64(n))
}

// SetFavourites sets the favourites gauge.
func SetFavourites(n int) {
	favouritesCount.Set(float64(n))
}

// RecordSettingsOp records a settings store operation.
func RecordSettingsOp(backend, operation string, duration time.Duration, success bool) {
	settingsOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	settingsOpsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordScriptLaunch records a script execution on the host.
func RecordScriptLaunch(success bool) {
	scriptLaunchesTotal.WithLabelValues(status(success)).Inc()
}

// RecordEvaluation records a host-side evaluation.
func RecordEvaluation(duration time.Duration, success bool) {
	evaluationsTotal.WithLabelValues(status(success)).Inc()
	evaluationDuration.Observe(duration.Seconds())
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
	})
}
