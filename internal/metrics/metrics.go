package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "dod_"

// Metrics owns the collectors of one process. It implements the observer
// interfaces of the scheduler, pipeline, forecast and provider packages.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshLatency  *prometheus.HistogramVec
	dispatchTotal   *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec
	forecastTotal   *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	locationChanges prometheus.Counter
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_total",
				Help: "Selector refreshes by controller and outcome",
			},
			[]string{"controller", "selector", "outcome"},
		),
		refreshLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "refresh_latency_seconds",
				Help:    "Selector refresh latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"controller"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_dispatch_total",
				Help: "Refreshes dispatched by the scheduler by trigger",
			},
			[]string{"subscriber", "trigger"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_skipped_total",
				Help: "Timed refreshes skipped because the previous one was still running",
			},
			[]string{"subscriber"},
		),
		forecastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "forecast_total",
				Help: "Forecast requests by result",
			},
			[]string{"selector", "result"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "provider_requests_total",
				Help: "Upstream requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "provider_request_latency_seconds",
				Help:    "Upstream request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		locationChanges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "location_changes_total",
				Help: "Accepted location changes",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshTotal,
		m.refreshLatency,
		m.dispatchTotal,
		m.skippedTotal,
		m.forecastTotal,
		m.requestTotal,
		m.requestLatency,
		m.locationChanges,
	)
	return m
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one selector refresh.
func (m *Metrics) ObserveRefresh(controller, selector, outcome string, d time.Duration) {
	m.refreshTotal.WithLabelValues(controller, selector, outcome).Inc()
	m.refreshLatency.WithLabelValues(controller).Observe(d.Seconds())
}

// RefreshDispatched records a refresh started by the scheduler.
func (m *Metrics) RefreshDispatched(name, trigger string) {
	m.dispatchTotal.WithLabelValues(name, trigger).Inc()
}

// RefreshSkipped records a timed refresh dropped due to overlap.
func (m *Metrics) RefreshSkipped(name string) {
	m.skippedTotal.WithLabelValues(name).Inc()
}

// ObserveForecast records the outcome of a forecast.
func (m *Metrics) ObserveForecast(selector string, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.forecastTotal.WithLabelValues(selector, result).Inc()
}

// ObserveRequest records one upstream request.
func (m *Metrics) ObserveRequest(provider, outcome string, d time.Duration) {
	m.requestTotal.WithLabelValues(provider, outcome).Inc()
	m.requestLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// LocationChanged records an accepted location change.
func (m *Metrics) LocationChanged() {
	m.locationChanges.Inc()
}
