package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	installRunsTotal      *prometheus.CounterVec
	installStageDuration  *prometheus.HistogramVec
	installStageFailures  *prometheus.CounterVec
	installInstalled      prometheus.Gauge
	installProgressPct    prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDurationMs *prometheus.HistogramVec
	progressConnections   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.installRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "install_runs_total",
		Help: "Total number of provisioning runs by result.",
	}, []string{"result"})
	m.installStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "install_stage_duration_ms",
		Help:    "Provisioning stage duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	}, []string{"stage", "status"})
	m.installStageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "install_stage_failures_total",
		Help: "Total number of provisioning stage failures.",
	}, []string{"stage", "cause"})
	m.installInstalled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "install_installed",
		Help: "1 when the completion marker is present.",
	})
	m.installProgressPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "install_progress_percent",
		Help: "Progress of the current provisioning run.",
	})

	m.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})
	m.httpRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"method", "route"})

	m.progressConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "install_progress_connections",
		Help: "Number of active progress websocket connections.",
	})

	reg.MustRegister(
		m.installRunsTotal,
		m.installStageDuration,
		m.installStageFailures,
		m.installInstalled,
		m.installProgressPct,
		m.httpRequestsTotal,
		m.httpRequestDurationMs,
		m.progressConnections,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncInstallRuns(result string) {
	if m == nil {
		return
	}
	m.installRunsTotal.WithLabelValues(labelOr(result, "unknown")).Inc()
}

func (m *Metrics) ObserveStage(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	ms := float64(duration.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	m.installStageDuration.WithLabelValues(labelOr(stage, "unknown"), labelOr(status, "unknown")).Observe(ms)
}

func (m *Metrics) IncStageFailures(stage, cause string) {
	if m == nil {
		return
	}
	m.installStageFailures.WithLabelValues(labelOr(stage, "unknown"), labelOr(cause, "unknown")).Inc()
}

func (m *Metrics) SetInstalled(installed bool) {
	if m == nil {
		return
	}
	if installed {
		m.installInstalled.Set(1)
		return
	}
	m.installInstalled.Set(0)
}

func (m *Metrics) SetProgress(percent int) {
	if m == nil {
		return
	}
	m.installProgressPct.Set(float64(percent))
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOr(route, "unknown")
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, route, statusLabel).Inc()
	ms := float64(duration.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	m.httpRequestDurationMs.WithLabelValues(method, route).Observe(ms)
}

func (m *Metrics) IncProgressConnections() {
	if m == nil {
		return
	}
	m.progressConnections.Inc()
}

func (m *Metrics) DecProgressConnections() {
	if m == nil {
		return
	}
	m.progressConnections.Dec()
}

func labelOr(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
