package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promMetricPrefix = "battery_chart_"

// Metrics holds the server's collectors on a private registry, so several
// servers (tests) can live in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	renders         *prometheus.CounterVec
	renderErrors    *prometheus.CounterVec
	ingested        prometheus.Counter
	lastLevel       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promMetricPrefix + "http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promMetricPrefix + "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promMetricPrefix + "renders_total",
			Help: "Rendered charts by kind (page, fragment, png)",
		}, []string{"kind"}),
		renderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: promMetricPrefix + "render_errors_total",
			Help: "Failed chart renders by kind",
		}, []string{"kind"}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: promMetricPrefix + "readings_ingested_total",
			Help: "Readings accepted on POST /readings",
		}),
		lastLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: promMetricPrefix + "last_battery_level",
			Help: "Most recently ingested battery level per device",
		}, []string{"device_id"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.renders,
		m.renderErrors,
		m.ingested,
		m.lastLevel,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(route, method string, status int, d time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observeRender(kind string, err error) {
	if err != nil {
		m.renderErrors.WithLabelValues(kind).Inc()
		return
	}
	m.renders.WithLabelValues(kind).Inc()
}
