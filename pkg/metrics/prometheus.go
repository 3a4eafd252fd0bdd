// Package metrics provides Prometheus metrics for the star challenge service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring
	scoreRecomputations prometheus.Counter
	scoreLatency        prometheus.Histogram
	scoreErrors         prometheus.Counter
	missingCriteria     prometheus.Counter

	// Ranking
	leaderboardComputations prometheus.Counter
	leaderboardLatency      prometheus.Histogram
	winnersSelected         prometheus.Counter

	// Rewards
	starsGranted    prometheus.Counter
	rewardsUnlocked prometheus.Counter

	// Live updates
	livePublishes         *prometheus.CounterVec
	liveDeliveries        *prometheus.CounterVec
	liveDeliveryFailures  *prometheus.CounterVec
	liveConnections       prometheus.Gauge
	liveSubscriptions     prometheus.Gauge
	coordinatorMutations  *prometheus.CounterVec
	coordinatorLatency    prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	jobsDuplicate           prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

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

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "starchallenge",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
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

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
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

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.scoreRecomputations = m.counter("score_recomputations_total", "Participant total score recomputations")
	m.scoreLatency = m.histogram("score_latency_milliseconds", "Latency of a participant score recomputation", m.histogramBuckets)
	m.scoreErrors = m.counter("score_errors_total", "Failed participant score recomputations")
	m.missingCriteria = m.counter("missing_criteria_total", "Performances skipped because their criterion could not be resolved")

	m.leaderboardComputations = m.counter("leaderboard_computations_total", "Leaderboard computations")
	m.leaderboardLatency = m.histogram("leaderboard_latency_milliseconds", "Latency of a leaderboard computation", m.histogramBuckets)
	m.winnersSelected = m.counter("winners_selected_total", "Winner records created")

	m.starsGranted = m.counter("stars_granted_total", "Stars appended to the ledger")
	m.rewardsUnlocked = m.counter("rewards_unlocked_total", "Tier rewards created")

	m.livePublishes = m.counterVec("live_publishes_total", "Broker publish cycles by message type", "type")
	m.liveDeliveries = m.counterVec("live_deliveries_total", "Messages handed to subscriber connections", "type")
	m.liveDeliveryFailures = m.counterVec("live_delivery_failures_total", "Messages dropped for a subscriber", "type", "reason")
	m.liveConnections = m.gauge("live_connections", "Currently connected live clients")
	m.liveSubscriptions = m.gauge("live_subscriptions", "Current (connection, challenge) subscriptions")
	m.coordinatorMutations = m.counterVec("coordinator_mutations_total", "Performance mutations handled by the coordinator", "kind", "outcome")
	m.coordinatorLatency = m.histogram("coordinator_latency_milliseconds", "Latency of recompute-then-notify cycles", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Current size of the reward job queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the reward job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Reward job queue utilization (0-1)")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Reward workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Reward job processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Reward jobs that failed")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Reward jobs skipped as duplicates")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Scoring.

func RecordScoreRecomputation(latencyMs float64) {
	globalManager.scoreRecomputations.Inc()
	globalManager.scoreLatency.Observe(latencyMs)
}

func RecordScoreError() { globalManager.scoreErrors.Inc() }

// RecordMissingCriteria counts performances skipped for an unresolved criterion.
func RecordMissingCriteria(n int) { globalManager.missingCriteria.Add(float64(n)) }

// Ranking.

func RecordLeaderboardComputation(latencyMs float64) {
	globalManager.leaderboardComputations.Inc()
	globalManager.leaderboardLatency.Observe(latencyMs)
}

func RecordWinnersSelected(n int) { globalManager.winnersSelected.Add(float64(n)) }

// Rewards.

func RecordStarsGranted(n int) { globalManager.starsGranted.Add(float64(n)) }

func RecordRewardsUnlocked(n int) { globalManager.rewardsUnlocked.Add(float64(n)) }

// Live updates.

// RecordLivePublish counts one publish cycle of a message type.
func RecordLivePublish(msgType string) { globalManager.livePublishes.WithLabelValues(msgType).Inc() }

// RecordLiveDelivery counts one message handed to a connection.
func RecordLiveDelivery(msgType string) { globalManager.liveDeliveries.WithLabelValues(msgType).Inc() }

// RecordLiveDeliveryFailure counts one message dropped for a connection.
func RecordLiveDeliveryFailure(msgType, reason string) {
	globalManager.liveDeliveryFailures.WithLabelValues(msgType, reason).Inc()
}

func UpdateLiveConnections(n int) { globalManager.liveConnections.Set(float64(n)) }

func UpdateLiveSubscriptions(n int) { globalManager.liveSubscriptions.Set(float64(n)) }

// RecordCoordinatorMutation records a recompute-then-notify cycle.
func RecordCoordinatorMutation(kind, outcome string, latencyMs float64) {
	globalManager.coordinatorMutations.WithLabelValues(kind, outcome).Inc()
	globalManager.coordinatorLatency.Observe(latencyMs)
}

// Queue.

func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Worker.

func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

func RecordWorkerError() { globalManager.workerErrors.Inc() }

func RecordJobDuplicate() { globalManager.jobsDuplicate.Inc() }

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Gatherer returns the custom registry merged with the default one, which
// carries collectors registered by third-party plugins.
func Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{customRegistry, prometheus.DefaultGatherer}
}
