// Package metrics instruments agent runs for the performance suite and the
// unified runner. Latency lands in prometheus histograms so a long soak run
// can be scraped live via the runner's /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so parallel tests never trip duplicate
// registration panics.
type Recorder struct {
	registry *prometheus.Registry

	runDuration *prometheus.HistogramVec
	firstEvent  prometheus.Histogram
	eventsTotal *prometheus.CounterVec
	runsTotal   *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "e2e_agent_run_duration_seconds",
		Help:    "Wall time from request sent to agent_completed",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"agent"})
	r.firstEvent = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "e2e_first_event_latency_seconds",
		Help:    "Time from request sent to the first WebSocket event",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	})
	r.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "e2e_events_received_total",
		Help: "WebSocket events received, by type",
	}, []string{"type"})
	r.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "e2e_agent_runs_total",
		Help: "Agent runs executed, by outcome",
	}, []string{"outcome"})

	r.registry.MustRegister(r.runDuration, r.firstEvent, r.eventsTotal, r.runsTotal)
	return r
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(agent string, total, firstEvent time.Duration, passed bool) {
	r.runDuration.WithLabelValues(agent).Observe(total.Seconds())
	if firstEvent > 0 {
		r.firstEvent.Observe(firstEvent.Seconds())
	}
	outcome := "passed"
	if !passed {
		outcome = "failed"
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
}

// CountEvent records one received event.
func (r *Recorder) CountEvent(eventType string) {
	r.eventsTotal.WithLabelValues(eventType).Inc()
}

// Handler exposes the registry for the runner's /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RunCount returns the number of recorded runs with the given outcome
// ("passed" or "failed"). Used by suite assertions and runner summaries.
func (r *Recorder) RunCount(outcome string) int {
	families, err := r.registry.Gather()
	if err != nil {
		return 0
	}
	for _, fam := range families {
		if fam.GetName() != "e2e_agent_runs_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return int(m.GetCounter().GetValue())
				}
			}
		}
	}
	return 0
}
