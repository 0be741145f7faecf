// Package metrics provides Prometheus metrics for the GridDuel match coordinator.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the GridDuel service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Matchmaking
	queueJoins         prometheus.Counter
	queueLeaves        prometheus.Counter
	matchmakingTries   *prometheus.CounterVec
	pairings           *prometheus.CounterVec
	pairingConflicts   prometheus.Counter
	orphanedMatches    prometheus.Counter
	orphansSwept       prometheus.Counter
	puzzleFallbacks    prometheus.Counter
	queueSearching     prometheus.Gauge
	pairingTxnDuration prometheus.Histogram

	// Match lifecycle
	matchesCreated  *prometheus.CounterVec
	matchesStarted  prometheus.Counter
	matchesEnded    *prometheus.CounterVec
	activeMatches   prometheus.Gauge
	activeSessions  prometheus.Gauge
	finalScores     *prometheus.HistogramVec
	matchDurationMs prometheus.Histogram

	// Moves and presence
	movesSubmitted    *prometheus.CounterVec
	movesDuplicate    prometheus.Counter
	movesRejected     *prometheus.CounterVec
	presenceOffline   prometheus.Counter
	heartbeatFailures prometheus.Counter

	// Outbox
	outboxEnqueued prometheus.Counter
	outboxDropped  prometheus.Counter
	outboxFailures *prometheus.CounterVec
	outboxLatency  prometheus.Histogram
	outboxDepth    prometheus.Gauge

	// Shared store
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	storeWatchers  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsConnections       prometheus.Gauge

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gridduel",
		subsystem:        "pvp",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	scoreBuckets := prometheus.ExponentialBuckets(1000, 2, 10)

	m.queueJoins = m.counter("matchmaking_joins_total", "Total number of matchmaking queue joins")
	m.queueLeaves = m.counter("matchmaking_leaves_total", "Total number of matchmaking queue leaves")
	m.matchmakingTries = m.counterVec("matchmaking_attempts_total", "Matchmaking attempts by outcome", "outcome")
	m.pairings = m.counterVec("pairings_total", "Successful pairings by mode", "mode")
	m.pairingConflicts = m.counter("pairing_conflicts_total", "Pairing transactions aborted because a request was no longer searching")
	m.orphanedMatches = m.counter("orphaned_matches_total", "WAITING matches left behind by an aborted pairing transaction")
	m.orphansSwept = m.counter("orphans_swept_total", "Orphaned WAITING matches removed by the sweeper")
	m.puzzleFallbacks = m.counter("puzzle_fallbacks_total", "Times the bundled puzzle replaced a missing or invalid source puzzle")
	m.queueSearching = m.gauge("matchmaking_searching", "Requests currently in searching state")
	m.pairingTxnDuration = m.histogram("pairing_transaction_milliseconds", "Pairing transaction latency in milliseconds", m.histogramBuckets)

	m.matchesCreated = m.counterVec("matches_created_total", "Matches created by mode", "mode")
	m.matchesStarted = m.counter("matches_started_total", "Matches moved to IN_PROGRESS")
	m.matchesEnded = m.counterVec("matches_ended_total", "Matches reaching a terminal state", "status", "reason")
	m.activeMatches = m.gauge("matches_active", "Matches currently in progress")
	m.activeSessions = m.gauge("sessions_active", "Session controllers currently running in this process")
	m.finalScores = m.histogramVec("final_score", "Distribution of final scores", scoreBuckets, "mode")
	m.matchDurationMs = m.histogram("match_duration_milliseconds", "Wall-clock duration of finished matches", prometheus.ExponentialBuckets(10_000, 2, 8))

	m.movesSubmitted = m.counterVec("moves_submitted_total", "Moves written to the move log", "correct")
	m.movesDuplicate = m.counter("moves_duplicate_total", "Duplicate move deliveries dropped")
	m.movesRejected = m.counterVec("moves_rejected_total", "Moves rejected locally before any write", "reason")
	m.presenceOffline = m.counter("presence_offline_total", "Opponent offline transitions observed during an active match")
	m.heartbeatFailures = m.counter("heartbeat_failures_total", "Heartbeat writes that failed")

	m.outboxEnqueued = m.counter("outbox_enqueued_total", "Operations queued on the outbox")
	m.outboxDropped = m.counter("outbox_dropped_total", "Operations dropped because the outbox was full or closed")
	m.outboxFailures = m.counterVec("outbox_failures_total", "Outbox operations that failed", "op")
	m.outboxLatency = m.histogram("outbox_latency_milliseconds", "Outbox operation latency in milliseconds", m.histogramBuckets)
	m.outboxDepth = m.gauge("outbox_depth", "Operations waiting on the outbox")

	m.storeOpLatency = m.histogramVec("store_operation_milliseconds", "Shared store operation latency", m.histogramBuckets, "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Shared store errors", "backend", "op")
	m.storeWatchers = m.gauge("store_watchers", "Open change subscriptions")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")
	m.wsConnections = m.gauge("websocket_connections", "Open websocket streams")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", prometheus.DefBuckets)
}

// Enabled reports whether the global manager records anything. Every
// Record and Update helper is a no-op while it is false.
func Enabled() bool { return globalManager.Enabled() }

// RefreshInterval is how often sampled gauges such as the system metrics
// should be refreshed.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// Enabled reports whether m records samples.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval returns m's gauge refresh period.
func (m *Manager) RefreshInterval() time.Duration { return time.Duration(m.refreshInterval.Load()) }

// Matchmaking Metrics Functions.

// RecordQueueJoin increments the queue join counter.
func RecordQueueJoin() {
	if !Enabled() {
		return
	}
	globalManager.queueJoins.Inc()
}

// RecordQueueLeave increments the queue leave counter.
func RecordQueueLeave() {
	if !Enabled() {
		return
	}
	globalManager.queueLeaves.Inc()
}

// RecordMatchmakingAttempt records a tryMatchmaking outcome (matched, no_candidate, claimed, conflict, error).
func RecordMatchmakingAttempt(outcome string) {
	if !Enabled() {
		return
	}
	globalManager.matchmakingTries.WithLabelValues(outcome).Inc()
}

// RecordPairing records a committed pairing transaction.
func RecordPairing(mode string) {
	if !Enabled() {
		return
	}
	globalManager.pairings.WithLabelValues(mode).Inc()
}

// RecordPairingConflict records an aborted pairing transaction.
func RecordPairingConflict() {
	if !Enabled() {
		return
	}
	globalManager.pairingConflicts.Inc()
}

// RecordOrphanedMatch records a speculative match left without players.
func RecordOrphanedMatch() {
	if !Enabled() {
		return
	}
	globalManager.orphanedMatches.Inc()
}

// RecordOrphansSwept adds n swept orphan matches.
func RecordOrphansSwept(n int) {
	if !Enabled() {
		return
	}
	globalManager.orphansSwept.Add(float64(n))
}

// RecordPuzzleFallback records use of the bundled puzzle.
func RecordPuzzleFallback() {
	if !Enabled() {
		return
	}
	globalManager.puzzleFallbacks.Inc()
}

// UpdateSearchingCount sets the number of searching requests.
func UpdateSearchingCount(n int) {
	if !Enabled() {
		return
	}
	globalManager.queueSearching.Set(float64(n))
}

// RecordPairingLatency observes a pairing transaction duration.
func RecordPairingLatency(latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.pairingTxnDuration.Observe(latencyMs)
}

// Match Metrics Functions.

// RecordMatchCreated records a created match.
func RecordMatchCreated(mode string) {
	if !Enabled() {
		return
	}
	globalManager.matchesCreated.WithLabelValues(mode).Inc()
}

// RecordMatchStarted records a WAITING -> IN_PROGRESS transition.
func RecordMatchStarted() {
	if !Enabled() {
		return
	}
	globalManager.matchesStarted.Inc()
	globalManager.activeMatches.Inc()
}

// RecordMatchEnded records a terminal transition.
func RecordMatchEnded(status, reason string, wasActive bool) {
	if !Enabled() {
		return
	}
	globalManager.matchesEnded.WithLabelValues(status, reason).Inc()
	if wasActive {
		globalManager.activeMatches.Dec()
	}
}

// UpdateActiveSessions adjusts the running session gauge.
func UpdateActiveSessions(delta int) {
	if !Enabled() {
		return
	}
	globalManager.activeSessions.Add(float64(delta))
}

// RecordFinalScore observes a final score.
func RecordFinalScore(mode string, score int) {
	if !Enabled() {
		return
	}
	globalManager.finalScores.WithLabelValues(mode).Observe(float64(score))
}

// RecordMatchDuration observes a finished match duration.
func RecordMatchDuration(d time.Duration) {
	if !Enabled() {
		return
	}
	globalManager.matchDurationMs.Observe(float64(d.Milliseconds()))
}

// Move and Presence Metrics Functions.

// RecordMoveSubmitted records a move written to the log.
func RecordMoveSubmitted(correct bool) {
	if !Enabled() {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	globalManager.movesSubmitted.WithLabelValues(label).Inc()
}

// RecordMoveDuplicate records a dropped duplicate move.
func RecordMoveDuplicate() {
	if !Enabled() {
		return
	}
	globalManager.movesDuplicate.Inc()
}

// RecordMoveRejected records a locally rejected move.
func RecordMoveRejected(reason string) {
	if !Enabled() {
		return
	}
	globalManager.movesRejected.WithLabelValues(reason).Inc()
}

// RecordPresenceOffline records an observed opponent disconnect.
func RecordPresenceOffline() {
	if !Enabled() {
		return
	}
	globalManager.presenceOffline.Inc()
}

// RecordHeartbeatFailure records a failed heartbeat write.
func RecordHeartbeatFailure() {
	if !Enabled() {
		return
	}
	globalManager.heartbeatFailures.Inc()
}

// Outbox Metrics Functions.

// RecordOutboxEnqueue increments the outbox enqueue counter.
func RecordOutboxEnqueue() {
	if !Enabled() {
		return
	}
	globalManager.outboxEnqueued.Inc()
}

// RecordOutboxDrop increments the outbox drop counter.
func RecordOutboxDrop() {
	if !Enabled() {
		return
	}
	globalManager.outboxDropped.Inc()
}

// RecordOutboxFailure records a failed outbox op.
func RecordOutboxFailure(op string) {
	if !Enabled() {
		return
	}
	globalManager.outboxFailures.WithLabelValues(op).Inc()
}

// RecordOutboxLatency observes outbox op latency.
func RecordOutboxLatency(latencyMs float64) {
	if !Enabled() {
		return
	}
	globalManager.outboxLatency.Observe(latencyMs)
}

// UpdateOutboxDepth sets the number of queued outbox ops.
func UpdateOutboxDepth(n int) {
	if !Enabled() {
		return
	}
	globalManager.outboxDepth.Set(float64(n))
}

// Store Metrics Functions.

// RecordStoreOp observes a store operation latency and error.
func RecordStoreOp(backend, op string, start time.Time, err error) {
	if !Enabled() {
		return
	}
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// UpdateStoreWatchers adjusts the open subscription gauge.
func UpdateStoreWatchers(delta int) {
	if !Enabled() {
		return
	}
	globalManager.storeWatchers.Add(float64(delta))
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateWebsocketConnections adjusts the open websocket gauge.
func UpdateWebsocketConnections(delta int) {
	if !Enabled() {
		return
	}
	globalManager.wsConnections.Add(float64(delta))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
