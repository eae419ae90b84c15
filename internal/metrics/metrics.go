package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/dcr-tools/dcr/internal/body"
)

// Metrics owns a private registry so several servers can coexist in one
// process, e.g. in tests.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	toggles    prometheus.Counter
	ingested   prometheus.Counter
	bodyErrors *prometheus.CounterVec
}

func New(healthy func() bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcr_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		toggles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcr_health_toggles_total",
			Help: "Total count of health flag toggles.",
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dcr_logger_ingested_bytes_total",
			Help: "Total bytes written to the log by the logger endpoint.",
		}),
		bodyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcr_body_errors_total",
			Help: "Total count of request bodies rejected by kind.",
		}, []string{"kind"}),
	}
	healthGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dcr_healthy",
		Help: "Current health flag (1 healthy, 0 unhealthy).",
	}, func() float64 {
		if healthy() {
			return 1
		}
		return 0
	})
	m.registry.MustRegister(
		m.requests,
		m.toggles,
		m.ingested,
		m.bodyErrors,
		healthGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRequest(route string, status int) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveToggle() {
	m.toggles.Inc()
}

func (m *Metrics) ObserveIngest(n int) {
	m.ingested.Add(float64(n))
}

func (m *Metrics) ObserveBodyError(err error) {
	kind := "transport"
	if errors.Is(err, body.ErrPayloadTooLarge) {
		kind = "too_large"
	}
	m.bodyErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
