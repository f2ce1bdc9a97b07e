package problems

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/lahc/internal/optimization"
	"github.com/copyleftdev/lahc/internal/optimization/lahc"
)

// ProblemTSP is the problem name of the travelling salesman tour.
const ProblemTSP = "tsp"

const component = "problems"

const (
	defaultDimension = 10
	defaultCities    = 50
	citySide         = 1000.0
)

// Spec describes one optimization run: the problem instance and the engine
// settings. Zero engine settings fall back to Defaults.
type Spec struct {
	// Problem is "tsp" or one of Objectives().
	Problem string `json:"problem" yaml:"problem"`
	// Size is the dimension of a vector problem or the number of random cities.
	Size int `json:"size,omitempty" yaml:"size,omitempty"`
	// Lower and Upper bound every coordinate of a vector problem.
	Lower float64 `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper float64 `json:"upper,omitempty" yaml:"upper,omitempty"`
	// StepSize is the standard deviation of a vector move.
	StepSize float64 `json:"step_size,omitempty" yaml:"step_size,omitempty"`
	// Start is an explicit starting point for a vector problem.
	Start []float64 `json:"start,omitempty" yaml:"start,omitempty"`
	// Cities lists explicit coordinates for a tsp problem.
	Cities [][2]float64 `json:"cities,omitempty" yaml:"cities,omitempty"`

	HistoryLength int `json:"history_length,omitempty" yaml:"history_length,omitempty"`
	StepLimit     int `json:"step_limit,omitempty" yaml:"step_limit,omitempty"`
	// HistoryUpdate is last_accepted or rejected.
	HistoryUpdate string `json:"history_update,omitempty" yaml:"history_update,omitempty"`
	// CloneStrategy is method or deep. Deep copies everything but the tsp
	// distance matrix; method is faster for both problem kinds.
	CloneStrategy string `json:"clone_strategy,omitempty" yaml:"clone_strategy,omitempty"`
	// Seed drives both instance generation and the move generator. Zero
	// picks a time based seed.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Defaults fills the engine settings a Spec leaves empty.
type Defaults struct {
	HistoryLength int
	StepLimit     int
	HistoryUpdate optimization.HistoryUpdate
	CloneStrategy optimization.CloneStrategy
}

// ReferenceDefaults mirrors the reference settings: a history of 1000 and
// 100 million steps.
func ReferenceDefaults() Defaults {
	return Defaults{
		HistoryLength: 1000,
		StepLimit:     100_000_000,
		HistoryUpdate: optimization.UseLastAcceptedCost,
		CloneStrategy: optimization.CloneMethod,
	}
}

// LoadSpec reads a YAML spec file.
func LoadSpec(path string) (Spec, error) {
	var spec Spec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read spec: %w", err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return spec, nil
}

// Resolve returns a copy of s with every empty setting filled in from d and
// the problem defaults, and validates the result.
func (s Spec) Resolve(d Defaults) (Spec, error) {
	if s.HistoryLength == 0 {
		s.HistoryLength = d.HistoryLength
	}
	if s.StepLimit == 0 {
		s.StepLimit = d.StepLimit
	}
	if s.HistoryUpdate == "" {
		s.HistoryUpdate = d.HistoryUpdate.String()
	}
	if s.CloneStrategy == "" {
		s.CloneStrategy = d.CloneStrategy.String()
	}
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}

	switch s.Problem {
	case ProblemTSP:
		if len(s.Cities) > 0 {
			s.Size = len(s.Cities)
		}
		if s.Size == 0 {
			s.Size = defaultCities
		}
		if s.Size < 3 {
			return s, optimization.ConfigErrorf("tsp needs at least 3 cities, got %d", s.Size)
		}
	case "":
		return s, optimization.ConfigErrorf("problem is required")
	default:
		info, ok := objectives[s.Problem]
		if !ok {
			return s, optimization.ConfigErrorf("unknown problem %q", s.Problem)
		}
		if len(s.Start) > 0 {
			s.Size = len(s.Start)
		}
		if s.Size == 0 {
			s.Size = defaultDimension
		}
		if s.Size < 1 {
			return s, optimization.ConfigErrorf("dimension must be at least 1, got %d", s.Size)
		}
		if s.Lower == 0 && s.Upper == 0 {
			s.Lower, s.Upper = info.lower, info.upper
		}
		if !(s.Upper > s.Lower) {
			return s, optimization.ConfigErrorf("upper bound %v must exceed lower bound %v", s.Upper, s.Lower)
		}
		if s.StepSize == 0 {
			s.StepSize = (s.Upper - s.Lower) / 20
		}
		if s.StepSize < 0 {
			return s, optimization.ConfigErrorf("step size must be positive, got %v", s.StepSize)
		}
	}

	if s.HistoryLength < 1 {
		return s, optimization.ConfigErrorf("history length must be at least 1, got %d", s.HistoryLength)
	}
	if s.StepLimit < 0 {
		return s, optimization.ConfigErrorf("step limit must not be negative, got %d", s.StepLimit)
	}
	if _, err := optimization.ParseHistoryUpdate(s.HistoryUpdate); err != nil {
		return s, err
	}
	strategy, err := optimization.ParseCloneStrategy(s.CloneStrategy)
	if err != nil {
		return s, err
	}
	// Vectors and tours keep their state behind a pointer; one level of
	// copying would alias it.
	if strategy == optimization.CloneShallow {
		return s, optimization.ConfigErrorf("clone strategy %q cannot snapshot %s solutions, use method or deep", s.CloneStrategy, s.Problem)
	}
	return s, nil
}

// JobOptions carries the run-time collaborators of a job.
type JobOptions struct {
	Defaults Defaults
	Progress optimization.ProgressSink
	Observer optimization.StepObserver
	Logger   *zap.Logger
}

// Outcome is the problem-independent result of a job.
type Outcome struct {
	Best       any                       `json:"best"`
	BestCost   float64                   `json:"best_cost"`
	Iterations int                       `json:"iterations"`
	Accepted   int                       `json:"accepted"`
	Rejected   int                       `json:"rejected"`
	Cancelled  bool                      `json:"cancelled"`
	History    []optimization.Evaluation `json:"history"`
}

// Job is a built, not yet started run. The embedded Monitor reports
// progress while Run is in flight.
type Job struct {
	optimization.Monitor

	spec Spec
	run  func(ctx context.Context) (*Outcome, error)
}

// Spec returns the resolved spec the job was built from.
func (j *Job) Spec() Spec {
	return j.spec
}

// Run executes the job. When the run fails part way, the outcome holding
// the best solution found so far is returned with the error.
func (j *Job) Run(ctx context.Context) (*Outcome, error) {
	return j.run(ctx)
}

// NewJob resolves s and builds its problem instance and engine.
func (s Spec) NewJob(opts JobOptions) (*Job, error) {
	spec, err := s.Resolve(opts.Defaults)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(spec.Seed))

	if spec.Problem == ProblemTSP {
		cities := spec.Cities
		if len(cities) == 0 {
			cities = RandomCities(spec.Size, citySide, rng)
		}
		tour, err := NewTour(cities)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "building %d city tour", spec.Size).WithComponent(component)
		}
		tour.Shuffle(rng)
		return newJob(spec, tour, opts)
	}

	var vec *Vector
	if len(spec.Start) > 0 {
		vec, err = NewVector(spec.Problem, spec.Start, spec.Lower, spec.Upper, spec.StepSize)
	} else {
		vec, err = RandomVector(spec.Problem, spec.Size, spec.Lower, spec.Upper, spec.StepSize, rng)
	}
	if err != nil {
		return nil, optimization.WrapErrorf(err, "building %s vector", spec.Problem).WithComponent(component)
	}
	return newJob(spec, vec, opts)
}

func newJob[S optimization.Solution](spec Spec, initial S, opts JobOptions) (*Job, error) {
	update, _ := optimization.ParseHistoryUpdate(spec.HistoryUpdate)
	strategy, _ := optimization.ParseCloneStrategy(spec.CloneStrategy)

	engine, err := lahc.NewEngine(lahc.Config[S]{
		Initial:       initial,
		HistoryLength: spec.HistoryLength,
		StepLimit:     spec.StepLimit,
		HistoryUpdate: update,
		CloneStrategy: strategy,
		RandomSeed:    spec.Seed,
		Progress:      opts.Progress,
		Observer:      opts.Observer,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Job{
		Monitor: engine,
		spec:    spec,
		run: func(ctx context.Context) (*Outcome, error) {
			res, err := engine.Optimize(ctx)
			if res == nil {
				return nil, err
			}
			return &Outcome{
				Best:       res.Best,
				BestCost:   res.BestCost,
				Iterations: res.Iterations,
				Accepted:   res.Accepted,
				Rejected:   res.Rejected,
				Cancelled:  res.Cancelled,
				History:    res.History,
			}, err
		},
	}, nil
}
