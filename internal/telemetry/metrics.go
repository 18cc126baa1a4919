package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики выполнения workflow.
//
// Все методы безопасны для nil-получателя: движок без метрик
// (CLI, тесты) просто ничего не записывает.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	activeRuns       prometheus.Gauge
	nodesTotal       *prometheus.CounterVec
	nodeDuration     *prometheus.HistogramVec
	nodeRetries      *prometheus.CounterVec
	webhookTotal     *prometheus.CounterVec
	httpRequestTotal *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg. nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_runs_total",
			Help: "Workflow runs by final status and mode.",
		}, []string{"status", "mode"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowline_run_duration_seconds",
			Help:    "Workflow run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"mode"}),

		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowline_active_runs",
			Help: "Workflow runs currently executing in this process.",
		}),

		nodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_node_executions_total",
			Help: "Node executions by type and final status.",
		}, []string{"type", "status"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowline_node_duration_seconds",
			Help:    "Node execution duration including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		nodeRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_node_retries_total",
			Help: "Node retry attempts by type.",
		}, []string{"type"}),

		webhookTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_error_webhook_deliveries_total",
			Help: "On-error webhook deliveries by result.",
		}, []string{"result"}),

		httpRequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_api_http_requests_total",
			Help: "HTTP requests handled by the API by route and status code.",
		}, []string{"route", "code"}),
	}
}

func mode(simulation bool) string {
	if simulation {
		return "simulation"
	}
	return "live"
}

// RunFinished записывает завершение run.
func (m *Metrics) RunFinished(status string, simulation bool, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status, mode(simulation)).Inc()
	m.runDuration.WithLabelValues(mode(simulation)).Observe(d.Seconds())
}

// SetActiveRuns записывает число run, выполняющихся сейчас.
func (m *Metrics) SetActiveRuns(n int) {
	if m == nil {
		return
	}
	m.activeRuns.Set(float64(n))
}

// NodeFinished записывает итог узла.
func (m *Metrics) NodeFinished(nodeType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodesTotal.WithLabelValues(nodeType, status).Inc()
	if d > 0 {
		m.nodeDuration.WithLabelValues(nodeType).Observe(d.Seconds())
	}
}

// NodeRetried записывает повторную попытку.
func (m *Metrics) NodeRetried(nodeType string) {
	if m == nil {
		return
	}
	m.nodeRetries.WithLabelValues(nodeType).Inc()
}

// WebhookDelivered записывает результат on-error webhook: sent, failed, simulated.
func (m *Metrics) WebhookDelivered(result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(result).Inc()
}

// HTTPRequest записывает обработанный API запрос.
func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequestTotal.WithLabelValues(route, statusClass(code)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
