package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraudflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudflow_tool_calls_total",
			Help: "Total number of tool invocations by the agent loop",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fraudflow_tool_call_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	agentIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fraudflow_agent_iterations",
			Help:    "Model round trips taken per agent turn",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudflow_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"kind"},
	)

	routeSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudflow_route_selections_total",
			Help: "Conditional route selections per chat turn",
		},
		[]string{"route"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fraudflow_active_sessions",
			Help: "Sessions currently held in the store",
		},
	)

	streamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudflow_stream_chunks_total",
			Help: "Streaming chunks delivered to clients",
		},
	)

	sessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fraudflow_sessions_evicted_total",
			Help: "Sessions removed by TTL expiry",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the service collectors. Safe to call more than
// once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			toolCallsTotal,
			toolCallDuration,
			agentIterations,
			tokensTotal,
			routeSelections,
			activeSessions,
			streamChunksTotal,
			sessionsEvicted,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordToolCall records one tool invocation.
func RecordToolCall(tool, status string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordAgentIterations records the round trips one agent turn took.
func RecordAgentIterations(n int) {
	agentIterations.Observe(float64(n))
}

// RecordTokens accumulates token usage. kind is "prompt" or
// "completion".
func RecordTokens(kind string, n int) {
	tokensTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordRouteSelection counts a conditional route match.
func RecordRouteSelection(route string) {
	routeSelections.WithLabelValues(route).Inc()
}

// SetActiveSessions sets the live session gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordStreamChunk counts one chunk sent to a client.
func RecordStreamChunk() {
	streamChunksTotal.Inc()
}

// RecordSessionsEvicted counts sessions dropped by a TTL sweep.
func RecordSessionsEvicted(n int) {
	if n > 0 {
		sessionsEvicted.Add(float64(n))
	}
}
