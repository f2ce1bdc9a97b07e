// Package metrics exposes LAHC run instrumentation to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/lahc/internal/optimization"
)

const namespace = "lahc"

// Recorder owns the collectors shared by every run.
type Recorder struct {
	steps      *prometheus.CounterVec
	bestCost   *prometheus.GaugeVec
	runs       *prometheus.CounterVec
	activeRuns prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Completed LAHC steps by outcome.",
		}, []string{"outcome"}),
		bestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_cost",
			Help:      "Best cost found so far per run.",
		}, []string{"run"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently stepping.",
		}),
	}

	for _, c := range []prometheus.Collector{r.steps, r.bestCost, r.runs, r.activeRuns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Run returns the instrumentation for one run.
func (r *Recorder) Run(id string) *Run {
	return &Run{
		recorder: r,
		id:       id,
		accepted: r.steps.WithLabelValues("accepted"),
		rejected: r.steps.WithLabelValues("rejected"),
		best:     r.bestCost.WithLabelValues(id),
	}
}

// Run is the per-run view of a Recorder. It is both a StepObserver and a
// ProgressSink.
type Run struct {
	recorder *Recorder
	id       string
	accepted prometheus.Counter
	rejected prometheus.Counter
	best     prometheus.Gauge
}

var (
	_ optimization.StepObserver = (*Run)(nil)
	_ optimization.ProgressSink = (*Run)(nil)
)

// ObserveStep counts the step by outcome.
func (r *Run) ObserveStep(_ int, _ float64, accepted bool) {
	if accepted {
		r.accepted.Inc()
		return
	}
	r.rejected.Inc()
}

// ReportBest records the new best cost.
func (r *Run) ReportBest(bestCost float64, _ int) {
	r.best.Set(bestCost)
}

// Started marks the run as active and records its initial cost as the best
// so far.
func (r *Run) Started(initialCost float64) {
	r.best.Set(initialCost)
	r.recorder.activeRuns.Inc()
}

// Finished marks the run as no longer active and counts it under status.
func (r *Run) Finished(status string) {
	r.recorder.activeRuns.Dec()
	r.recorder.runs.WithLabelValues(status).Inc()
}

// Forget drops the per-run best cost series.
func (r *Run) Forget() {
	r.recorder.bestCost.DeleteLabelValues(r.id)
}
