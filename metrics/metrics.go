// Package metrics holds the Prometheus collectors shared by the app and the loader.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatanything"

// Outcomes recorded on the counters.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeGreeting    = "greeting"
	OutcomeNoResults   = "no_results"
	OutcomeErrorMarker = "error_marker"
)

type Metrics struct {
	registry     *prometheus.Registry
	IngestTotal  *prometheus.CounterVec
	ChatTotal    *prometheus.CounterVec
	ExternalCall *prometheus.HistogramVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Documents ingested by category and outcome.",
		}, []string{"category", "outcome"}),
		ChatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_total",
			Help:      "Chat questions answered by outcome.",
		}, []string{"outcome"}),
		ExternalCall: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_seconds",
			Help:      "Latency of calls to search, completion, speech and extraction services.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"service"}),
	}
	reg.MustRegister(
		m.IngestTotal,
		m.ChatTotal,
		m.ExternalCall,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Ingested(category, outcome string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) Chatted(outcome string) {
	if m == nil {
		return
	}
	m.ChatTotal.WithLabelValues(outcome).Inc()
}

// Observe times a call to an outside service: defer m.Observe("search")().
func (m *Metrics) Observe(service string) func() {
	start := time.Now()
	return func() {
		if m == nil {
			return
		}
		m.ExternalCall.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
