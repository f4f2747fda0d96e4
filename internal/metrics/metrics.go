// Package metrics exposes simulation counters on a private Prometheus registry.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the simulation's Prometheus collectors.
type Recorder struct {
	registry  *prometheus.Registry
	ticks     prometheus.Counter
	exchanges *prometheus.CounterVec
	revisions prometheus.Counter
	agents    prometheus.Gauge
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cifsim_ticks_total",
			Help: "Simulation ticks completed.",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cifsim_exchanges_total",
			Help: "Social exchanges performed, by outcome.",
		}, []string{"outcome"}),
		revisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cifsim_belief_revisions_total",
			Help: "Beliefs written by observers after exchanges.",
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cifsim_agents",
			Help: "Agents in the roster.",
		}),
	}
	r.registry.MustRegister(r.ticks, r.exchanges, r.revisions, r.agents)
	return r
}

// Tick records one completed tick with its outcome counts and revisions.
func (r *Recorder) Tick(accepted, rejected, revisions int) {
	if r == nil {
		return
	}
	r.ticks.Inc()
	r.exchanges.WithLabelValues("accepted").Add(float64(accepted))
	r.exchanges.WithLabelValues("rejected").Add(float64(rejected))
	r.revisions.Add(float64(revisions))
}

// SetAgents sets the roster size gauge.
func (r *Recorder) SetAgents(n int) {
	if r == nil {
		return
	}
	r.agents.Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
