// Package lahc implements Late Acceptance Hill Climbing over a single
// trajectory.
//
// A candidate produced by perturbing the working solution is accepted when
// its cost is lower than the cost recorded in the history slot for the
// current step, or lower than the last accepted cost. Rejected candidates
// are undone by restoring the working solution from the last accepted
// snapshot. The history slot is then overwritten and the next step begins.
package lahc

import (
	"context"
	"math/rand"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/lahc/internal/optimization"
)

const component = "lahc"

// State is the lifecycle stage of an Engine.
type State int32

const (
	// Initializing covers construction up to the first call to Optimize.
	Initializing State = iota
	// Exploring is the step loop.
	Exploring
	// Terminated is final; the engine cannot be run again.
	Terminated
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Exploring:
		return "exploring"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config contains configuration for the engine
type Config[S optimization.Solution] struct {
	// Initial is the starting point of the trajectory. The engine works on
	// a clone and never mutates it.
	Initial S

	// HistoryLength is the number of slots in the history (L)
	HistoryLength int

	// StepLimit is the maximum number of steps
	StepLimit int

	// HistoryUpdate selects the cost written to the history on rejection
	HistoryUpdate optimization.HistoryUpdate

	// CloneStrategy selects how snapshots are taken. Ignored when Clone is set.
	CloneStrategy optimization.CloneStrategy

	// Clone, when set, is used for every snapshot.
	Clone func(S) S

	// RandomSeed seeds the generator handed to Perturb. Zero means time based.
	RandomSeed int64

	// Progress receives new-best notifications. Nil writes to stdout.
	Progress optimization.ProgressSink

	// Observer, when set, is notified after every step.
	Observer optimization.StepObserver

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Engine runs Late Acceptance Hill Climbing on one solution.
// Optimize must be called at most once; the Monitor methods may be called
// from any goroutine.
type Engine[S optimization.Solution] struct {
	cfg      Config[S]
	clone    func(S) S
	rng      *rand.Rand
	history  *History
	progress optimization.ProgressSink
	logger   *zap.Logger

	// Owned by the step loop.
	working      S
	lastAccepted S
	lastCost     float64
	step         int
	accepted     int
	rejected     int

	mu           sync.RWMutex
	best         S
	bestCost     float64
	improvements []optimization.Evaluation

	iterations atomic.Int64
	state      atomic.Int32
	stopped    atomic.Bool
}

var _ optimization.Monitor = (*Engine[optimization.Solution])(nil)

// NewEngine validates cfg, evaluates the initial solution and seeds the
// history and both snapshots with its cost.
func NewEngine[S optimization.Solution](cfg Config[S]) (*Engine[S], error) {
	if isNil(cfg.Initial) {
		return nil, optimization.ConfigErrorf("initial solution is required")
	}
	if cfg.HistoryLength < 1 {
		return nil, optimization.ConfigErrorf("history length must be at least 1, got %d", cfg.HistoryLength)
	}
	if cfg.StepLimit < 0 {
		return nil, optimization.ConfigErrorf("step limit must not be negative, got %d", cfg.StepLimit)
	}
	switch cfg.HistoryUpdate {
	case optimization.UseLastAcceptedCost, optimization.UseRejectedCost:
	default:
		return nil, optimization.ConfigErrorf("unknown history update mode %d", int(cfg.HistoryUpdate))
	}

	cloneFn := cfg.Clone
	if cloneFn == nil {
		var err error
		cloneFn, err = optimization.NewCloneFunc(cfg.CloneStrategy, cfg.Initial)
		if err != nil {
			return nil, err
		}
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	working := cloneFn(cfg.Initial)
	cost, err := working.Evaluate()
	if err != nil {
		return nil, optimization.WrapError(err, "evaluating initial solution").
			WithOperation("evaluate").
			WithComponent(component)
	}

	history, err := NewHistory(cfg.HistoryLength, cost)
	if err != nil {
		return nil, err
	}

	progress := cfg.Progress
	if progress == nil {
		progress = optimization.StdoutProgress()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine[S]{
		cfg:          cfg,
		clone:        cloneFn,
		rng:          rand.New(rand.NewSource(seed)),
		history:      history,
		progress:     progress,
		logger:       logger.With(zap.String("component", component)),
		working:      working,
		lastAccepted: cloneFn(working),
		lastCost:     cost,
		best:         cloneFn(working),
		bestCost:     cost,
	}
	e.state.Store(int32(Initializing))
	return e, nil
}

// Optimize runs the step loop until the step limit is reached, ctx is done
// or Stop is called, and returns the best solution found.
//
// Cancellation is checked between steps only and is not an error: the
// result then has Cancelled set. A failing Perturb or Evaluate aborts the
// run; the result holding the best solution found before the failure is
// returned together with the error.
func (e *Engine[S]) Optimize(ctx context.Context) (*optimization.Result[S], error) {
	if !e.state.CompareAndSwap(int32(Initializing), int32(Exploring)) {
		return nil, optimization.WrapError(optimization.ErrTerminated, "cannot start run").
			WithOperation("optimize").
			WithComponent(component)
	}
	defer e.state.Store(int32(Terminated))

	e.logger.Debug("run started",
		zap.Int("history_length", e.history.Len()),
		zap.Int("step_limit", e.cfg.StepLimit),
		zap.Stringer("history_update", e.cfg.HistoryUpdate),
		zap.Float64("initial_cost", e.lastCost),
	)

	var (
		cancelled bool
		runErr    error
	)
	for e.step < e.cfg.StepLimit {
		if e.stopped.Load() || ctx.Err() != nil {
			cancelled = true
			break
		}
		if runErr = e.advance(); runErr != nil {
			break
		}
	}

	result := e.result(cancelled)
	if runErr != nil {
		e.logger.Debug("run aborted", zap.Int("step", e.step), zap.Error(runErr))
		return result, runErr
	}
	e.logger.Debug("run finished",
		zap.Int("iterations", result.Iterations),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", result.Rejected),
		zap.Float64("best_cost", result.BestCost),
		zap.Bool("cancelled", cancelled),
	)
	return result, nil
}

// advance performs one step.
func (e *Engine[S]) advance() error {
	e.step++
	step := e.step

	if err := e.working.Perturb(e.rng); err != nil {
		return optimization.WrapError(err, "perturbing solution").
			WithOperation("perturb").
			WithComponent(component).
			WithStep(step)
	}
	cost, err := e.working.Evaluate()
	if err != nil {
		return optimization.WrapError(err, "evaluating candidate").
			WithOperation("evaluate").
			WithComponent(component).
			WithStep(step)
	}

	accepted := cost < e.history.At(step) || cost < e.lastCost
	update := cost
	if accepted {
		e.lastAccepted = e.clone(e.working)
		e.lastCost = cost
		e.accepted++
		if cost < e.bestCost {
			e.improve(step, cost)
		}
	} else {
		e.working = e.clone(e.lastAccepted)
		e.rejected++
		if e.cfg.HistoryUpdate == optimization.UseLastAcceptedCost {
			update = e.lastCost
		}
	}
	e.history.Set(step, update)

	e.iterations.Store(int64(step))
	if e.cfg.Observer != nil {
		e.cfg.Observer.ObserveStep(step, cost, accepted)
	}
	return nil
}

func (e *Engine[S]) improve(step int, cost float64) {
	snapshot := e.clone(e.working)

	e.mu.Lock()
	e.best = snapshot
	e.bestCost = cost
	e.improvements = append(e.improvements, optimization.Evaluation{Iteration: step, Cost: cost})
	e.mu.Unlock()

	e.progress.ReportBest(cost, step*100/e.cfg.StepLimit)
}

func (e *Engine[S]) result(cancelled bool) *optimization.Result[S] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &optimization.Result[S]{
		Best:       e.best,
		BestCost:   e.bestCost,
		Iterations: int(e.iterations.Load()),
		Accepted:   e.accepted,
		Rejected:   e.rejected,
		Cancelled:  cancelled,
		History:    append([]optimization.Evaluation(nil), e.improvements...),
	}
}

// Best returns the best snapshot and its cost. The snapshot is never
// mutated by the engine and must not be mutated by the caller.
func (e *Engine[S]) Best() (S, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best, e.bestCost
}

// BestCost returns the best cost found so far
func (e *Engine[S]) BestCost() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bestCost
}

// History returns the improvements of the best cost so far
func (e *Engine[S]) History() []optimization.Evaluation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]optimization.Evaluation(nil), e.improvements...)
}

// Iterations returns the number of completed steps
func (e *Engine[S]) Iterations() int {
	return int(e.iterations.Load())
}

// Stop asks the run to terminate at the next step boundary. Calling Stop
// before Optimize makes the run return the initial solution.
func (e *Engine[S]) Stop() {
	e.stopped.Store(true)
}

// State returns the current lifecycle stage.
func (e *Engine[S]) State() State {
	return State(e.state.Load())
}

// Thresholds returns a copy of the history slots. Only meaningful while no
// run is in flight.
func (e *Engine[S]) Thresholds() []float64 {
	return e.history.Costs()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
