package webapp

import (
	"net/http"
	"time"

	"incoming-inspector/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 是服务的 Prometheus 指标集合，同时实现 incoming.Observer。
type Metrics struct {
	reg *prometheus.Registry

	ActiveSessions        prometheus.Gauge
	ChecklistUpdatesTotal prometheus.Counter
	DecisionsTotal        *prometheus.CounterVec
	BackendRequestSeconds *prometheus.HistogramVec
	BackendErrorsTotal    *prometheus.CounterVec
	CatalogReloadsTotal   *prometheus.CounterVec
}

// NewMetrics 在独立 registry 上注册全部指标（附带 Go/进程指标）。
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inspector_sessions_active",
			Help: "Open incoming inspection sessions",
		}),
		ChecklistUpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "inspector_checklist_updates_total",
			Help: "Checklist item writes",
		}),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_decisions_total",
				Help: "Accept/quarantine submissions by outcome",
			},
			[]string{"decision", "status"},
		),
		BackendRequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspector_backend_request_seconds",
				Help:    "Latency of maintenance API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		BackendErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_backend_errors_total",
				Help: "Failed maintenance API calls",
			},
			[]string{"operation"},
		),
		CatalogReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspector_catalog_reloads_total",
				Help: "Checklist catalog reloads by result",
			},
			[]string{"result"},
		),
	}
}

// Handler 返回 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// --- incoming.Observer ---

func (m *Metrics) SessionsActive(n int) { m.ActiveSessions.Set(float64(n)) }

func (m *Metrics) ChecklistUpdated() { m.ChecklistUpdatesTotal.Inc() }

func (m *Metrics) DecisionSubmitted(decision model.Decision, status string) {
	m.DecisionsTotal.WithLabelValues(string(decision), status).Inc()
}

// ObserveBackend 实现 backend.RequestObserver。
func (m *Metrics) ObserveBackend(operation string, d time.Duration, err error) {
	m.BackendRequestSeconds.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.BackendErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// ObserveCatalogReload 实现 catalog.ReloadObserver。
func (m *Metrics) ObserveCatalogReload(result string) {
	m.CatalogReloadsTotal.WithLabelValues(result).Inc()
}
