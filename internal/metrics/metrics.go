// Package metrics exposes Prometheus gauges/counters for the coordination
// engine, using the standard promauto/promhttp registration shape, covering
// messages, reservations, build slots, and tool-call outcomes.
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
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmail_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentmail_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmail_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	ProjectsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentmail_projects_total",
			Help: "Total number of projects",
		},
	)

	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmail_messages_sent_total",
			Help: "Total number of messages sent",
		},
		[]string{"project"},
	)

	ReservationConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmail_reservation_conflicts_total",
			Help: "Total number of file reservation conflicts rejected",
		},
		[]string{"project"},
	)

	ActiveReservations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentmail_active_reservations",
			Help: "Number of live file reservations",
		},
		[]string{"project"},
	)

	ActiveBuildSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentmail_active_build_slots",
			Help: "Number of live build slots",
		},
		[]string{"project"},
	)

	SearchFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmail_search_like_fallback_total",
			Help: "Total number of search_messages calls that used the LIKE fallback instead of FTS5",
		},
	)

	WriteMutexWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentmail_write_mutex_wait_seconds",
			Help:    "Time spent waiting to acquire the store's single write mutex",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmail_sweep_runs_total",
			Help: "Total number of janitor sweep passes, by outcome",
		},
		[]string{"outcome"},
	)
)

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

// Middleware records request count and latency for every HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordToolCall records an MCP tool invocation outcome.
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// SetProjectsTotal sets the total project count.
func SetProjectsTotal(count float64) {
	ProjectsTotal.Set(count)
}

// RecordMessageSent increments the per-project message counter.
func RecordMessageSent(projectSlug string) {
	MessagesSentTotal.WithLabelValues(projectSlug).Inc()
}

// RecordReservationConflict increments the per-project conflict counter.
func RecordReservationConflict(projectSlug string) {
	ReservationConflictsTotal.WithLabelValues(projectSlug).Inc()
}

// SetActiveReservations sets the live-reservation gauge for a project.
func SetActiveReservations(projectSlug string, count float64) {
	ActiveReservations.WithLabelValues(projectSlug).Set(count)
}

// SetActiveBuildSlots sets the live-build-slot gauge for a project.
func SetActiveBuildSlots(projectSlug string, count float64) {
	ActiveBuildSlots.WithLabelValues(projectSlug).Set(count)
}

// RecordSearchFallback counts a search_messages call that fell back to LIKE.
func RecordSearchFallback() {
	SearchFallbackTotal.Inc()
}

// RecordWriteMutexWait observes how long a writer waited on the store's
// single write mutex before proceeding.
func RecordWriteMutexWait(d time.Duration) {
	WriteMutexWaitSeconds.Observe(d.Seconds())
}

// RecordSweepRun records the outcome of one janitor sweep pass.
func RecordSweepRun(outcome string) {
	SweepRunsTotal.WithLabelValues(outcome).Inc()
}
