// Package metrics exposes Prometheus collectors for the GeoDNS server.
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geodns"

type Metrics struct {
	gatherer prometheus.Gatherer

	queries       *prometheus.CounterVec
	probes        *prometheus.CounterVec
	available     *prometheus.GaugeVec
	load          *prometheus.GaugeVec
	geolocations  *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
	handlerPanics prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "DNS queries answered, by outcome (edge or fallback).",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Edge server load probes, by result.",
		}, []string{"result"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edge_available",
			Help:      "1 if the edge server answered its last probe.",
		}, []string{"address"}),
		load: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edge_load",
			Help:      "Last reported load percentage of the edge server.",
		}, []string{"address"}),
		geolocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolocation_total",
			Help:      "Client geolocation attempts, by provider and result.",
		}, []string{"provider", "result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "distance_cache_entries",
			Help:      "Clients with a cached distance map.",
		}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Query handlers that panicked and were recovered.",
		}),
	}
	reg.MustRegister(
		m.queries, m.probes, m.available, m.load,
		m.geolocations, m.cacheEntries, m.handlerPanics,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Query(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Probe(address string, result string, available bool, load float64) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result).Inc()
	v := 0.0
	if available {
		v = 1
	}
	m.available.WithLabelValues(address).Set(v)
	m.load.WithLabelValues(address).Set(load)
}

func (m *Metrics) Geolocation(provider, result string) {
	if m == nil {
		return
	}
	m.geolocations.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) CacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *Metrics) HandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}
