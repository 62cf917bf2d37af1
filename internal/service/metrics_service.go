package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the bot.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	updatesTotal   *prometheus.CounterVec
	updateDuration prometheus.Histogram

	ledgerOpsTotal      *prometheus.CounterVec
	broadcastDeliveries *prometheus.CounterVec
}

// NewMetricsService registers the bot's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	updatesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Inbound updates processed, by kind and result",
	}, []string{"kind", "result"})

	updateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bot_update_duration_seconds",
		Help:    "Time spent handling one inbound update",
		Buckets: prometheus.DefBuckets,
	})

	ledgerOpsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger mutations and reads, by operation and result",
	}, []string{"op", "result"})

	broadcastDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_deliveries_total",
		Help: "Per-recipient report delivery attempts, by result",
	}, []string{"result"})

	registry.MustRegister(requestDuration, requestTotal, updatesTotal, updateDuration, ledgerOpsTotal, broadcastDeliveries)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		updatesTotal:        updatesTotal,
		updateDuration:      updateDuration,
		ledgerOpsTotal:      ledgerOpsTotal,
		broadcastDeliveries: broadcastDeliveries,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one gateway request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := http.StatusText(status)
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	s.requestTotal.WithLabelValues(method, path, statusLabel).Inc()
	s.requestDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// ObserveUpdate records one processed inbound update.
func (s *MetricsService) ObserveUpdate(kind, result string, duration time.Duration) {
	s.updatesTotal.WithLabelValues(kind, result).Inc()
	s.updateDuration.Observe(duration.Seconds())
}

// ObserveLedgerOp records one ledger operation outcome.
func (s *MetricsService) ObserveLedgerOp(op, result string) {
	s.ledgerOpsTotal.WithLabelValues(op, result).Inc()
}

// ObserveBroadcast records one per-recipient delivery outcome.
func (s *MetricsService) ObserveBroadcast(result string) {
	s.broadcastDeliveries.WithLabelValues(result).Inc()
}
