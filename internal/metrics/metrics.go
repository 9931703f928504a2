// Package metrics provides Prometheus metrics for the request packager.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqpackager_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqpackager_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Browse metrics
	browseSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqpackager_browse_sessions_active",
			Help: "Number of running browse sessions",
		},
	)

	browseSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqpackager_browse_sessions_total",
			Help: "Finished browse sessions by outcome",
		},
		[]string{"outcome"},
	)

	browseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqpackager_browse_events_total",
			Help: "Browse events delivered by kind",
		},
		[]string{"kind"},
	)

	browseFilesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqpackager_browse_files_delivered_total",
			Help: "File entries delivered to browse consumers",
		},
	)

	browseBytesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqpackager_browse_bytes_delivered_total",
			Help: "Sum of sizes of delivered file entries",
		},
	)

	browseDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reqpackager_browse_delivery_failures_total",
			Help: "File entries that could not be delivered",
		},
	)

	// Assembly metrics
	assembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqpackager_assemblies_total",
			Help: "Package assemblies by tool variant and outcome",
		},
		[]string{"variant", "outcome"},
	)

	launchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reqpackager_dispatcher_launch_duration_seconds",
			Help:    "Time spent waiting for the dispatcher to launch an environment",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// Provider metrics
	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqpackager_provider_call_duration_seconds",
			Help:    "External provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation", "status"},
	)

	// Catalog metrics
	catalogReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqpackager_catalog_reloads_total",
			Help: "Catalog snapshot reloads by result",
		},
		[]string{"result"},
	)

	catalogTools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqpackager_catalog_tools",
			Help: "Number of tools in the active catalog snapshot",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// BrowseSessionStarted marks a session as running.
func BrowseSessionStarted() {
	browseSessionsActive.Inc()
}

// BrowseSessionFinished records how a session ended
// ("completed", "aborted" or "disconnected").
func BrowseSessionFinished(outcome string) {
	browseSessionsActive.Dec()
	browseSessionsTotal.WithLabelValues(outcome).Inc()
}

// RecordBrowseEvent records one delivered event.
func RecordBrowseEvent(kind string) {
	browseEventsTotal.WithLabelValues(kind).Inc()
}

// RecordFileDelivered records a delivered file entry of the given size.
func RecordFileDelivered(size int64) {
	browseFilesDelivered.Inc()
	browseBytesDelivered.Add(float64(size))
}

// RecordDeliveryFailure records an undeliverable file entry.
func RecordDeliveryFailure() {
	browseDeliveryFailures.Inc()
}

// RecordAssembly records an assembly outcome ("ok" or an error code).
func RecordAssembly(variant, outcome string) {
	assembliesTotal.WithLabelValues(variant, outcome).Inc()
}

// RecordLaunch records a dispatcher launch duration.
func RecordLaunch(duration time.Duration) {
	launchDuration.Observe(duration.Seconds())
}

// RecordProviderCall records one external provider call.
func RecordProviderCall(provider, operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	providerCallDuration.WithLabelValues(provider, operation, status).Observe(duration.Seconds())
}

// RecordCatalogReload records a catalog reload attempt.
func RecordCatalogReload(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	catalogReloadsTotal.WithLabelValues(result).Inc()
}

// SetCatalogTools sets the tool count of the active snapshot.
func SetCatalogTools(n int) {
	catalogTools.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code.
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
// The route pattern is used as the path label to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
