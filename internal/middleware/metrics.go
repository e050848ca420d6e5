package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"chat_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	// Routing metrics
	routesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_routes_total",
		Help: "Routed messages by resolving stage and outcome",
	}, []string{"stage", "outcome"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	// Classifier metrics
	classifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lbot_classifier_request_duration_seconds",
		Help:    "Duration of intent classifier requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "status"})

	classifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_classifier_requests_total",
		Help: "Total number of intent classifier requests",
	}, []string{"backend", "status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lbot_phrase_cache_hits_total",
		Help: "Total number of phrase cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lbot_phrase_cache_misses_total",
		Help: "Total number of phrase cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lbot_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lbot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Store size gauges
	storedRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lbot_stored_rows",
		Help: "Number of stored rows per entity",
	}, []string{"entity"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordRoute records which stage of the fallback chain handled a message
func (m *Metrics) RecordRoute(stage, outcome string) {
	routesTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordClassifier records an intent classifier request
func (m *Metrics) RecordClassifier(backend, status string, duration time.Duration) {
	classifierDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
	classifierRequests.WithLabelValues(backend, status).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetStoredRows sets the row count gauge of an entity
func (m *Metrics) SetStoredRows(entity string, count int64) {
	storedRows.WithLabelValues(entity).Set(float64(count))
}

// NewMetricsRouter returns the metrics and health check routes
func NewMetricsRouter(path string) *mux.Router {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return router
}

// StartMetricsServer serves metrics until ctx is cancelled
func StartMetricsServer(ctx context.Context, port int, path string, logger *logrus.Logger) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMetricsRouter(path),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}()

	logger.WithField("port", port).Info("Metrics server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
