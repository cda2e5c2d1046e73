// Package metrics expone las métricas del motor del flujo de compras en formato Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/application/purchaseflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Nombres de métricas.
const (
	MetricActionsTotal             = "purchase_flow_actions_total"
	MetricActionDurationSeconds    = "purchase_flow_action_duration_seconds"
	MetricEventRecordFailuresTotal = "purchase_flow_event_record_failures_total"
	MetricScanItemsTotal           = "purchase_flow_scan_items_total"
)

var _ purchaseflow.Observer = (*PrometheusObserver)(nil)

// PrometheusObserver implementa purchaseflow.Observer sobre un registry propio.
// Seguro para uso concurrente.
type PrometheusObserver struct {
	registry *prometheus.Registry

	actionsTotal        *prometheus.CounterVec
	actionDuration      *prometheus.HistogramVec
	eventRecordFailures *prometheus.CounterVec
	scanItemsTotal      *prometheus.CounterVec
}

// NewPrometheusObserver registra las métricas del motor y las del runtime de Go.
func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()
	o := &PrometheusObserver{
		registry: reg,
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricActionsTotal,
			Help: "Acciones del flujo de compras procesadas, por acción y resultado.",
		}, []string{"action", "outcome"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricActionDurationSeconds,
			Help:    "Duración del procesamiento de cada acción.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		eventRecordFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventRecordFailuresTotal,
			Help: "Eventos de auditoría descartados por error del store.",
		}, []string{"event_code"}),
		scanItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricScanItemsTotal,
			Help: "Ítems escaneados en conferencia, por resultado del movimiento de inventario.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		o.actionsTotal,
		o.actionDuration,
		o.eventRecordFailures,
		o.scanItemsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

func (o *PrometheusObserver) ObserveAction(action, outcome string, elapsed time.Duration) {
	o.actionsTotal.WithLabelValues(action, outcome).Inc()
	o.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (o *PrometheusObserver) EventRecordFailed(eventCode string) {
	o.eventRecordFailures.WithLabelValues(eventCode).Inc()
}

func (o *PrometheusObserver) ItemScanned(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	o.scanItemsTotal.WithLabelValues(result).Inc()
}

// Registry registry con las métricas del servicio.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler endpoint de scraping.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}
