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

// Metrics stores Prometheus collectors used by the API and scheduled jobs.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	alertsCreatedTotal      *prometheus.CounterVec
	alertsSkippedTotal      *prometheus.CounterVec
	alertErrorsTotal        *prometheus.CounterVec
	jobRunsTotal            *prometheus.CounterVec
	jobDuration             *prometheus.HistogramVec
	jobRunning              *prometheus.GaugeVec
	notificationsSweptTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "risk_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		alertsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "alerts_created_total",
				Help:      "Total number of automated alert notifications written, by rule.",
			},
			[]string{"rule"},
		),
		alertsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "alerts_skipped_total",
				Help:      "Total number of alerts suppressed because an unread duplicate exists.",
			},
			[]string{"rule"},
		),
		alertErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "alert_errors_total",
				Help:      "Total number of alerts that could not be checked or written.",
			},
			[]string{"rule"},
		),
		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "job_runs_total",
				Help:      "Total number of scheduled job executions by job and outcome.",
			},
			[]string{"job", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "risk_engine",
				Name:      "job_duration_seconds",
				Help:      "Scheduled job execution time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"job"},
		),
		jobRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "risk_engine",
				Name:      "job_running",
				Help:      "Whether a job is currently executing (1) or idle (0).",
			},
			[]string{"job"},
		),
		notificationsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "risk_engine",
				Name:      "notifications_swept_total",
				Help:      "Total number of read notifications removed by retention cleanup.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.alertsCreatedTotal,
		m.alertsSkippedTotal,
		m.alertErrorsTotal,
		m.jobRunsTotal,
		m.jobDuration,
		m.jobRunning,
		m.notificationsSweptTotal,
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
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncAlertCreated(rule string) {
	if m == nil {
		return
	}
	m.alertsCreatedTotal.WithLabelValues(normalizeLabel(rule)).Inc()
}

func (m *Metrics) IncAlertSkipped(rule string) {
	if m == nil {
		return
	}
	m.alertsSkippedTotal.WithLabelValues(normalizeLabel(rule)).Inc()
}

func (m *Metrics) IncAlertError(rule string) {
	if m == nil {
		return
	}
	m.alertErrorsTotal.WithLabelValues(normalizeLabel(rule)).Inc()
}

// ObserveJobRun records one finished execution. outcome is one of
// "ok", "failed" or "busy".
func (m *Metrics) ObserveJobRun(job string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	jobLabel := normalizeLabel(job)
	m.jobRunsTotal.WithLabelValues(jobLabel, normalizeLabel(outcome)).Inc()
	if outcome == "busy" {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.jobDuration.WithLabelValues(jobLabel).Observe(seconds)
}

func (m *Metrics) SetJobRunning(job string, running bool) {
	if m == nil {
		return
	}
	value := 0.0
	if running {
		value = 1
	}
	m.jobRunning.WithLabelValues(normalizeLabel(job)).Set(value)
}

func (m *Metrics) AddNotificationsSwept(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.notificationsSweptTotal.Add(float64(count))
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

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
