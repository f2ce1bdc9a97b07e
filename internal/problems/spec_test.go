package problems

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/lahc/internal/optimization"
)

func testDefaults() Defaults {
	return Defaults{
		HistoryLength: 50,
		StepLimit:     2000,
		HistoryUpdate: optimization.UseLastAcceptedCost,
		CloneStrategy: optimization.CloneMethod,
	}
}

func TestSpecResolve(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		check   func(t *testing.T, s Spec)
		wantErr bool
	}{
		{
			name: "vector defaults",
			spec: Spec{Problem: "rosenbrock", Seed: 1},
			check: func(t *testing.T, s Spec) {
				assert.Equal(t, defaultDimension, s.Size)
				assert.Equal(t, -2.048, s.Lower)
				assert.Equal(t, 2.048, s.Upper)
				assert.InDelta(t, 4.096/20, s.StepSize, 1e-12)
				assert.Equal(t, 50, s.HistoryLength)
				assert.Equal(t, 2000, s.StepLimit)
				assert.Equal(t, "last_accepted", s.HistoryUpdate)
				assert.Equal(t, "method", s.CloneStrategy)
			},
		},
		{
			name: "explicit start sets size",
			spec: Spec{Problem: "sphere", Start: []float64{1, 2, 3}},
			check: func(t *testing.T, s Spec) {
				assert.Equal(t, 3, s.Size)
				assert.NotZero(t, s.Seed)
			},
		},
		{
			name: "tsp cities set size",
			spec: Spec{Problem: ProblemTSP, Cities: square(), HistoryUpdate: "rejected"},
			check: func(t *testing.T, s Spec) {
				assert.Equal(t, 4, s.Size)
				assert.Equal(t, "rejected", s.HistoryUpdate)
			},
		},
		{name: "missing problem", spec: Spec{}, wantErr: true},
		{name: "unknown problem", spec: Spec{Problem: "knapsack"}, wantErr: true},
		{name: "tiny tsp", spec: Spec{Problem: ProblemTSP, Size: 2}, wantErr: true},
		{name: "inverted bounds", spec: Spec{Problem: "sphere", Lower: 3, Upper: 1}, wantErr: true},
		{name: "negative steps", spec: Spec{Problem: "sphere", StepLimit: -5}, wantErr: true},
		{name: "negative history", spec: Spec{Problem: "sphere", HistoryLength: -1}, wantErr: true},
		{name: "bad history update", spec: Spec{Problem: "sphere", HistoryUpdate: "newest"}, wantErr: true},
		{name: "bad clone strategy", spec: Spec{Problem: "sphere", CloneStrategy: "pickle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Resolve(testDefaults())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, optimization.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestSpecNewJobRuns(t *testing.T) {
	specs := []Spec{
		{Problem: "sphere", Size: 5, Seed: 42},
		{Problem: "rastrigin", Size: 3, Seed: 42, CloneStrategy: "deep"},
		{Problem: ProblemTSP, Size: 20, Seed: 42, HistoryUpdate: "rejected"},
	}

	for _, spec := range specs {
		t.Run(spec.Problem, func(t *testing.T) {
			var bests []float64
			job, err := spec.NewJob(JobOptions{
				Defaults: testDefaults(),
				Progress: optimization.ProgressFunc(func(c float64, _ int) { bests = append(bests, c) }),
			})
			require.NoError(t, err)
			assert.Equal(t, 2000, job.Spec().StepLimit)

			outcome, err := job.Run(context.Background())
			require.NoError(t, err)
			require.NotNil(t, outcome)

			assert.Equal(t, 2000, outcome.Iterations)
			assert.Equal(t, 2000, job.Iterations())
			assert.Equal(t, outcome.Accepted+outcome.Rejected, outcome.Iterations)
			assert.Equal(t, job.BestCost(), outcome.BestCost)
			assert.Len(t, outcome.History, len(bests))
			require.NotEmpty(t, bests)
			assert.Equal(t, bests[len(bests)-1], outcome.BestCost)

			sol, ok := outcome.Best.(optimization.Solution)
			require.True(t, ok)
			cost, err := sol.Evaluate()
			require.NoError(t, err)
			assert.InDelta(t, outcome.BestCost, cost, 1e-9)
		})
	}
}

func TestSpecNewJobIsDeterministic(t *testing.T) {
	spec := Spec{Problem: ProblemTSP, Size: 15, Seed: 9, StepLimit: 500}
	run := func() float64 {
		job, err := spec.NewJob(JobOptions{Defaults: testDefaults(), Progress: optimization.DiscardProgress})
		require.NoError(t, err)
		outcome, err := job.Run(context.Background())
		require.NoError(t, err)
		return outcome.BestCost
	}
	assert.Equal(t, run(), run())
}

func TestSpecNewJobStop(t *testing.T) {
	job, err := Spec{Problem: "sphere", Seed: 1}.NewJob(JobOptions{
		Defaults: testDefaults(),
		Progress: optimization.DiscardProgress,
	})
	require.NoError(t, err)

	job.Stop()
	outcome, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Cancelled)
	assert.Zero(t, outcome.Iterations)
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := `problem: tsp
size: 30
history_length: 200
step_limit: 10000
history_update: rejected
clone_strategy: deep
seed: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, Spec{
		Problem:       ProblemTSP,
		Size:          30,
		HistoryLength: 200,
		StepLimit:     10000,
		HistoryUpdate: "rejected",
		CloneStrategy: "deep",
		Seed:          5,
	}, spec)

	_, err = LoadSpec(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSpecBestMatchesBestCostForEveryCloneStrategy(t *testing.T) {
	for _, problem := range []string{"sphere", ProblemTSP} {
		for _, strategy := range []string{"method", "deep"} {
			t.Run(problem+"/"+strategy, func(t *testing.T) {
				spec := Spec{Problem: problem, Size: 8, Seed: 3, HistoryLength: 5, StepLimit: 2000, CloneStrategy: strategy}
				job, err := spec.NewJob(JobOptions{Defaults: testDefaults(), Progress: optimization.DiscardProgress})
				require.NoError(t, err)

				outcome, err := job.Run(context.Background())
				require.NoError(t, err)

				sol, ok := outcome.Best.(optimization.Solution)
				require.True(t, ok)
				cost, err := sol.Evaluate()
				require.NoError(t, err)
				assert.InDelta(t, outcome.BestCost, cost, 1e-9)
			})
		}
	}
}

func TestSpecRejectsShallowClone(t *testing.T) {
	for _, problem := range []string{"sphere", "rosenbrock", ProblemTSP} {
		t.Run(problem, func(t *testing.T) {
			spec := Spec{Problem: problem, Size: 8, Seed: 3, CloneStrategy: "shallow"}
			_, err := spec.NewJob(JobOptions{Defaults: testDefaults(), Progress: optimization.DiscardProgress})
			assert.ErrorIs(t, err, optimization.ErrInvalidConfig)
		})
	}
}
