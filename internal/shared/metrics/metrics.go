package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cutstudio"

// Metrics holds all Prometheus metrics. The API records HTTP, job creation and
// websocket metrics; the worker records job runs and stages.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Job metrics
	JobsTotal   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	ActiveJobs  prometheus.Gauge

	// Stage metrics
	StageExecutionsTotal *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	CleanupWarnings      prometheus.Counter

	// WebSocket metrics
	WebSocketConnections   prometheus.Gauge
	WebSocketMessagesTotal *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),

		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of jobs by kind and outcome",
			},
			[]string{"status", "kind"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Job processing duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"kind", "status"},
		),
		ActiveJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_jobs",
				Help:      "Number of jobs this worker is running",
			},
		),

		StageExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_executions_total",
				Help:      "Total number of pipeline stages executed",
			},
			[]string{"kind", "status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"kind"},
		),
		CleanupWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_cleanup_warnings_total",
				Help:      "Intermediate artifacts that could not be removed",
			},
		),

		WebSocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WebSocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int64) {
	status := statusCodeToString(statusCode)

	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	if responseSize > 0 {
		m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
	}
}

// RecordJobCreated records job creation
func (m *Metrics) RecordJobCreated(kind string) {
	m.JobsTotal.WithLabelValues("created", kind).Inc()
}

// RecordJobStarted records a worker picking up a job
func (m *Metrics) RecordJobStarted() {
	m.ActiveJobs.Inc()
}

// RecordJobFinished records the terminal phase of a job
func (m *Metrics) RecordJobFinished(kind, status string, duration time.Duration) {
	m.ActiveJobs.Dec()
	m.JobDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
	m.JobsTotal.WithLabelValues(status, kind).Inc()
}

// RecordStage records one executed pipeline stage
func (m *Metrics) RecordStage(kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.StageExecutionsTotal.WithLabelValues(kind, status).Inc()
	m.StageDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCleanupWarnings counts warnings left by intermediate cleanup
func (m *Metrics) RecordCleanupWarnings(n int) {
	m.CleanupWarnings.Add(float64(n))
}

// RecordWebSocketConnection records WebSocket connection change
func (m *Metrics) RecordWebSocketConnection(connected bool) {
	if connected {
		m.WebSocketConnections.Inc()
	} else {
		m.WebSocketConnections.Dec()
	}
}

// RecordWebSocketMessage records WebSocket message
func (m *Metrics) RecordWebSocketMessage(messageType string) {
	m.WebSocketMessagesTotal.WithLabelValues(messageType).Inc()
}

// statusCodeToString converts HTTP status code to category string
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
