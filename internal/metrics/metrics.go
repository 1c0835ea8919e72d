// Package metrics exposes relay counters and step latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supportrelay"

// Flow labels.
const (
	FlowOutbound = "outbound"
	FlowInbound  = "inbound"
)

// Metrics methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	stepDuration    *prometheus.HistogramVec
	outbound        *prometheus.CounterVec
	inbound         *prometheus.CounterVec
	triggerRestarts prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual relay steps.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"flow", "step"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "User messages handled by the outbound relay, by outcome.",
		}, []string{"outcome"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Slack webhook requests handled by the inbound relay, by outcome.",
		}, []string{"outcome"}),
		triggerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_restarts_total",
			Help:      "Times the Firestore listener was restarted after an error.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stepDuration,
		m.outbound,
		m.inbound,
		m.triggerRestarts,
	)
	return m
}

// StepObserver returns a callback recording step durations for one flow.
func (m *Metrics) StepObserver(flow string) func(step string, d time.Duration) {
	if m == nil {
		return nil
	}
	return func(step string, d time.Duration) {
		m.stepDuration.WithLabelValues(flow, step).Observe(d.Seconds())
	}
}

func (m *Metrics) Outbound(outcome string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Inbound(outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TriggerRestarted() {
	if m == nil {
		return
	}
	m.triggerRestarts.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
