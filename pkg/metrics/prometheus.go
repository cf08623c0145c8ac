// Package metrics provides Prometheus metrics for the aqsync services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the sync services.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Leecher
	eventsReceived  *prometheus.CounterVec
	eventsFiltered  *prometheus.CounterVec
	eventsForwarded prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsDropped   prometheus.Counter
	sourceConnected prometheus.Gauge

	// Processor
	jobsEnrolled   *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobsFailed     *prometheus.CounterVec
	jobsIgnored    prometheus.Counter
	jobLatency     *prometheus.HistogramVec
	jobsRestarted  prometheus.Counter
	jobsRecovered  prometheus.Counter
	jobsByStatus   *prometheus.GaugeVec
	syncTriggers   *prometheus.CounterVec
	projectSyncDur prometheus.Histogram

	// Reconciler
	entities *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "aqsync",
		subsystem:        "sync",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Recorders keep working against a registry nobody gathers.
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

// Init replaces the package manager with one built from opts on a fresh
// registry that GetRegistry then returns. Call it at startup, before any
// handler captures the registry.
func Init(opts ...Option) *Manager {
	registry := prometheus.NewRegistry()
	m := NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	customRegistry = registry
	globalManager = m
	return m
}

// RefreshInterval returns the gauge refresh interval of the package manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// RefreshInterval returns how often gauges should be refreshed by callers.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every series
	m.eventsReceived = m.counterVec("events_received_total", "Aquarium events received by the leecher", "topic")
	m.eventsFiltered = m.counterVec("events_filtered_total", "Aquarium events discarded by the topic filter", "reason")
	m.eventsForwarded = m.counter("events_forwarded_total", "Events forwarded as durable jobs")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Events already forwarded (same source key)")
	m.eventsDropped = m.counter("events_dropped_total", "Events dropped after a forwarding failure")
	m.sourceConnected = m.gauge("source_connected", "1 when the Aquarium live stream is connected")

	m.jobsEnrolled = m.counterVec("jobs_enrolled_total", "Jobs enrolled by the processor", "source_topic")
	m.jobsFinished = m.counterVec("jobs_finished_total", "Jobs processed to completion", "source_topic")
	m.jobsFailed = m.counterVec("jobs_failed_total", "Jobs left in progress after a handler error", "source_topic")
	m.jobsIgnored = m.counter("jobs_ignored_total", "Leech jobs whose Aquarium topic has no route")
	m.jobLatency = m.histogramVec("job_latency_milliseconds", "Job handling latency in milliseconds", m.histogramBuckets, "source_topic")
	m.jobsRestarted = m.counter("jobs_restarted_total", "Sync triggers that restarted an existing event")
	m.jobsRecovered = m.counter("jobs_recovered_total", "Stuck jobs moved back to restarted by an operator")
	m.jobsByStatus = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "jobs_by_status",
		Help: "Processing jobs by status", ConstLabels: m.customLabels,
	}, []string{"status"})
	m.syncTriggers = m.counterVec("sync_triggers_total", "Full project sync triggers", "outcome")
	m.projectSyncDur = m.histogram("project_sync_duration_milliseconds", "Full project reconciliation duration", m.histogramBuckets)

	m.entities = m.counterVec("entities_total", "Reconciled entities by kind and outcome", "kind", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", m.histogramBuckets, "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEventReceived counts a live event by Aquarium topic.
func RecordEventReceived(topic string) {
	globalManager.eventsReceived.WithLabelValues(topic).Inc()
}

// RecordEventFiltered counts a discarded event; reason is "ignored" or "not_allowed".
func RecordEventFiltered(reason string) {
	globalManager.eventsFiltered.WithLabelValues(reason).Inc()
}

// RecordEventForwarded increments the forwarded events counter.
func RecordEventForwarded() {
	globalManager.eventsForwarded.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordEventDropped increments the dropped events counter.
func RecordEventDropped() {
	globalManager.eventsDropped.Inc()
}

// UpdateSourceConnected flips the connection gauge.
func UpdateSourceConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	globalManager.sourceConnected.Set(v)
}

// RecordJobEnrolled counts an enrolled job.
func RecordJobEnrolled(sourceTopic string) {
	globalManager.jobsEnrolled.WithLabelValues(sourceTopic).Inc()
}

// RecordJobFinished counts a finished job and its latency.
func RecordJobFinished(sourceTopic string, latencyMs float64) {
	globalManager.jobsFinished.WithLabelValues(sourceTopic).Inc()
	globalManager.jobLatency.WithLabelValues(sourceTopic).Observe(latencyMs)
}

// RecordJobFailed counts a job left in progress.
func RecordJobFailed(sourceTopic string) {
	globalManager.jobsFailed.WithLabelValues(sourceTopic).Inc()
}

// RecordJobIgnored counts a leech job without a route.
func RecordJobIgnored() {
	globalManager.jobsIgnored.Inc()
}

// RecordJobRestarted counts a restart issued by the sync trigger.
func RecordJobRestarted() {
	globalManager.jobsRestarted.Inc()
}

// RecordJobsRecovered counts jobs recovered by an operator.
func RecordJobsRecovered(n int) {
	globalManager.jobsRecovered.Add(float64(n))
}

// UpdateJobsByStatus sets the processing jobs gauge for one status.
func UpdateJobsByStatus(status string, count int) {
	globalManager.jobsByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordSyncTrigger counts a trigger; outcome is "dispatched" or "restarted".
func RecordSyncTrigger(outcome string) {
	globalManager.syncTriggers.WithLabelValues(outcome).Inc()
}

// RecordProjectSyncDuration observes a full project reconciliation.
func RecordProjectSyncDuration(latencyMs float64) {
	globalManager.projectSyncDur.Observe(latencyMs)
}

// RecordEntity counts a reconciled entity. kind is folder or task; outcome is
// created, updated, unchanged or failed.
func RecordEntity(kind, outcome string) {
	globalManager.entities.WithLabelValues(kind, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
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
