package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "like_notify_job"

// Metrics holds the Prometheus collectors for the control surface and sync runs.
// Every method is safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	runActive         prometheus.Gauge
	batchesTotal      *prometheus.CounterVec
	recordsProcessed  prometheus.Counter
	notificationsSent *prometheus.CounterVec
	notificationsFail *prometheus.CounterVec
	sendDuration      *prometheus.HistogramVec
	memoryPressure    prometheus.Counter
	triggersRejected  *prometheus.CounterVec
	breakerFailures   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Finished sync runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished sync runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		runActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_active",
			Help:      "1 while a sync run is executing.",
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Completed batches by result.",
		}, []string{"result"}),
		recordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_processed_total",
			Help:      "Relation records read by successful batches.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications accepted by the notify service.",
		}, []string{"relation_type"}),
		notificationsFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications that were declined or failed to send.",
		}, []string{"relation_type", "reason"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "notification_send_duration_seconds",
			Help:      "Notify service call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"relation_type"}),
		memoryPressure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "memory_pressure_total",
			Help:      "Memory guard samples above the high watermark.",
		}),
		triggersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triggers_rejected_total",
			Help:      "Rejected run triggers by reason.",
		}, []string{"reason"}),
		breakerFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_consecutive_failures",
			Help:      "Consecutive failed runs seen by the circuit breaker.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.runsTotal,
		m.runDuration,
		m.runActive,
		m.batchesTotal,
		m.recordsProcessed,
		m.notificationsSent,
		m.notificationsFail,
		m.sendDuration,
		m.memoryPressure,
		m.triggersRejected,
		m.breakerFailures,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) SetRunActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.runActive.Set(1)
		return
	}
	m.runActive.Set(0)
}

func (m *Metrics) ObserveRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.runDuration.Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncBatch(result string, records int) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(normalizeLabel(result)).Inc()
	if records > 0 {
		m.recordsProcessed.Add(float64(records))
	}
}

func (m *Metrics) IncNotificationSent(relationType string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(normalizeLabel(relationType)).Inc()
}

func (m *Metrics) IncNotificationFailed(relationType string, reason string) {
	if m == nil {
		return
	}
	m.notificationsFail.WithLabelValues(normalizeLabel(relationType), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveNotificationSendDuration(relationType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(normalizeLabel(relationType)).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncMemoryPressure() {
	if m == nil {
		return
	}
	m.memoryPressure.Inc()
}

func (m *Metrics) IncTriggerRejected(reason string) {
	if m == nil {
		return
	}
	m.triggersRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) SetBreakerFailures(n int) {
	if m == nil {
		return
	}
	m.breakerFailures.Set(float64(n))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}
	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}
	if c == nil {
		return fiber.StatusOK
	}
	if status := c.Response().StatusCode(); status != 0 {
		return status
	}
	return fiber.StatusOK
}

func normalizeLabel(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
