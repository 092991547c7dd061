// Package metrics provides Prometheus metrics for the rally match tracker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Dispatch
	dispatchOutcomes *prometheus.CounterVec
	dispatchLatency  prometheus.Histogram
	idCollisions     prometheus.Counter

	// Analytics client
	analyticsReady  prometheus.Gauge
	trackResponses  *prometheus.CounterVec
	snippetBuffered prometheus.Gauge
	snippetReplayed prometheus.Counter

	// Delivery queue and worker
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	workerProcessed    prometheus.Counter
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	liveClients         prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rally",
		subsystem:        "tracker",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.dispatchOutcomes = m.counterVec("dispatch_outcomes_total",
		"Match Completed dispatches by terminal status (delivered, skipped, failed)", "status")
	m.dispatchLatency = m.histogram("dispatch_latency_milliseconds",
		"Time spent in the analytics track call", m.histogramBuckets)
	m.idCollisions = m.counter("game_id_collisions_total",
		"Game ids redrawn because they were issued recently")

	m.analyticsReady = m.gauge("analytics_ready",
		"1 once the analytics client has signalled readiness")
	m.trackResponses = m.counterVec("track_responses_total",
		"Responses from the event collection API by HTTP status code", "status_code")
	m.snippetBuffered = m.gauge("snippet_buffered_calls",
		"Calls buffered by the snippet stub before the library loaded")
	m.snippetReplayed = m.counter("snippet_replayed_calls_total",
		"Buffered snippet calls replayed after load")

	m.queueSize = m.gauge("queue_size", "Current number of pending deliveries")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of pending deliveries")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total deliveries enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total deliveries dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total",
		"Deliveries refused by the queue by reason", "reason")
	m.workerProcessed = m.counter("worker_processed_total", "Deliveries handled by the worker")
	m.workerErrors = m.counter("worker_errors_total", "Deliveries whose handler reported an error")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.liveClients = m.gauge("live_clients", "Connected live feed websocket clients")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordDispatchOutcome counts one terminal dispatch outcome.
func RecordDispatchOutcome(status string) {
	globalManager.dispatchOutcomes.WithLabelValues(status).Inc()
}

// RecordDispatchLatency records the track call latency in milliseconds.
func RecordDispatchLatency(latencyMs float64) {
	globalManager.dispatchLatency.Observe(latencyMs)
}

// RecordIDCollision counts a redrawn game id.
func RecordIDCollision() {
	globalManager.idCollisions.Inc()
}

// SetAnalyticsReady flips the readiness gauge.
func SetAnalyticsReady(ready bool) {
	if ready {
		globalManager.analyticsReady.Set(1)
		return
	}
	globalManager.analyticsReady.Set(0)
}

// RecordTrackResponse counts a collection API response.
func RecordTrackResponse(statusCode string) {
	globalManager.trackResponses.WithLabelValues(statusCode).Inc()
}

// UpdateSnippetBuffered sets the number of calls waiting for the library.
func UpdateSnippetBuffered(n int) {
	globalManager.snippetBuffered.Set(float64(n))
}

// RecordSnippetReplay counts one replayed call.
func RecordSnippetReplay() {
	globalManager.snippetReplayed.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordWorkerProcessed counts one handled delivery.
func RecordWorkerProcessed() {
	globalManager.workerProcessed.Inc()
}

// RecordWorkerError counts one handler error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateLiveClients sets the number of connected live feed clients.
func UpdateLiveClients(n int) {
	globalManager.liveClients.Set(float64(n))
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
