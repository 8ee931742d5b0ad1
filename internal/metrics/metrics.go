// Package metrics exposes Prometheus metrics for authentication flows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webauth/internal/authflow"
)

// Recorder records flow transitions. It implements authflow.Observer.
type Recorder struct {
	// Flows started by protocol
	FlowsStarted *prometheus.CounterVec

	// Terminal outcomes by protocol, state and error kind
	FlowOutcomes *prometheus.CounterVec

	// Time from start to terminal state
	FlowDuration *prometheus.HistogramVec

	// Flows waiting for an extracted payload
	AwaitingExtraction prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates a Recorder registered on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		FlowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webauth_flows_started_total",
			Help: "Total authentication flows started by protocol",
		}, []string{"protocol"}),

		FlowOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webauth_flow_outcomes_total",
			Help: "Total authentication flow outcomes by protocol, state and error kind",
		}, []string{"protocol", "state", "error_kind"}), // error_kind is empty unless state is failed

		FlowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webauth_flow_duration_seconds",
			Help:    "Duration of authentication flows from start to terminal state",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"protocol", "state"}),

		AwaitingExtraction: factory.NewGauge(prometheus.GaugeOpts{
			Name: "webauth_flows_awaiting_extraction",
			Help: "Authentication flows currently waiting for an extracted payload",
		}),

		gatherer: reg,
	}
}

// ObserveTransition implements authflow.Observer.
func (r *Recorder) ObserveTransition(t authflow.Transition) {
	if r == nil {
		return
	}
	protocol := string(t.Flow.Protocol)

	if t.From == authflow.StateIdle && t.To == authflow.StateLoading {
		r.FlowsStarted.WithLabelValues(protocol).Inc()
	}
	if t.To == authflow.StateAwaitingExtraction {
		r.AwaitingExtraction.Inc()
	}
	if t.From == authflow.StateAwaitingExtraction {
		r.AwaitingExtraction.Dec()
	}

	if !t.To.IsTerminal() {
		return
	}
	errorKind := ""
	if t.Err != nil {
		errorKind = t.Err.Kind.String()
	}
	r.FlowOutcomes.WithLabelValues(protocol, t.To.String(), errorKind).Inc()
	if !t.Flow.StartedAt.IsZero() {
		r.FlowDuration.WithLabelValues(protocol, t.To.String()).Observe(time.Since(t.Flow.StartedAt).Seconds())
	}
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
