package optimization

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ProgressSink receives a notification every time the best cost improves.
// percent is the share of the step limit consumed so far, 0-100.
type ProgressSink interface {
	ReportBest(bestCost float64, percent int)
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(bestCost float64, percent int)

// ReportBest calls f.
func (f ProgressFunc) ReportBest(bestCost float64, percent int) {
	f(bestCost, percent)
}

// DiscardProgress drops every notification.
var DiscardProgress ProgressSink = ProgressFunc(func(float64, int) {})

// WriterProgress writes one line per improvement to an io.Writer.
type WriterProgress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterProgress returns a sink writing to w.
func NewWriterProgress(w io.Writer) *WriterProgress {
	return &WriterProgress{w: w}
}

// StdoutProgress returns the default sink, writing to standard output.
func StdoutProgress() *WriterProgress {
	return NewWriterProgress(os.Stdout)
}

// ReportBest writes "Best Cost found: <cost>, Total progress: <percent>%".
func (p *WriterProgress) ReportBest(bestCost float64, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "Best Cost found: %.2f, Total progress: %d%%\n", bestCost, percent)
}

// MultiProgress fans a notification out to every non-nil sink.
func MultiProgress(sinks ...ProgressSink) ProgressSink {
	active := make([]ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return ProgressFunc(func(bestCost float64, percent int) {
		for _, s := range active {
			s.ReportBest(bestCost, percent)
		}
	})
}

// StepObserver is notified after every completed step.
type StepObserver interface {
	ObserveStep(step int, cost float64, accepted bool)
}

// StepObserverFunc adapts a function to a StepObserver.
type StepObserverFunc func(step int, cost float64, accepted bool)

// ObserveStep calls f.
func (f StepObserverFunc) ObserveStep(step int, cost float64, accepted bool) {
	f(step, cost, accepted)
}
