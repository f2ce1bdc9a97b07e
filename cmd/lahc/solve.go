package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/lahc/internal/optimization"
	"github.com/copyleftdev/lahc/internal/problems"
)

var (
	specPath      string
	problemName   string
	size          int
	historyLength int
	stepLimit     int
	seed          int64
	historyUpdate string
	cloneStrategy string
	outPath       string
	quiet         bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve one problem",
	Long: `Solve runs a single LAHC trajectory and prints a line every time the
best cost improves. Interrupting the run stops it at the next step and
reports the best solution found so far.

Flags override the values of --spec.`,
	Args: cobra.NoArgs,
	RunE: runSolveCmd,
}

func init() {
	solveCmd.Flags().StringVar(&specPath, "spec", "", "YAML run spec")
	solveCmd.Flags().StringVar(&problemName, "problem", "", "Problem: tsp, sphere, rastrigin or rosenbrock")
	solveCmd.Flags().IntVar(&size, "size", 0, "Dimension, or number of cities for tsp")
	solveCmd.Flags().IntVar(&historyLength, "history", 0, "History length (default 1000)")
	solveCmd.Flags().IntVar(&stepLimit, "steps", 0, "Step limit (default 100000000)")
	solveCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed, 0 for time based")
	solveCmd.Flags().StringVar(&historyUpdate, "history-update", "", "Cost recorded on rejection: last_accepted or rejected")
	solveCmd.Flags().StringVar(&cloneStrategy, "clone", "", "Snapshot strategy: method or deep")
	solveCmd.Flags().StringVar(&outPath, "out", "", "Write the outcome as JSON to this file")
	solveCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress lines")

	rootCmd.AddCommand(solveCmd)
}

func runSolveCmd(cmd *cobra.Command, args []string) error {
	spec, err := buildSpec(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return solve(ctx, spec, cmd.OutOrStdout(), logger.Zap())
}

// buildSpec loads --spec, if any, and applies the flags set on the command
// line over it.
func buildSpec(cmd *cobra.Command) (problems.Spec, error) {
	var spec problems.Spec
	if specPath != "" {
		var err error
		if spec, err = problems.LoadSpec(specPath); err != nil {
			return spec, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("problem") {
		spec.Problem = problemName
	}
	if flags.Changed("size") {
		spec.Size = size
	}
	if flags.Changed("history") {
		spec.HistoryLength = historyLength
	}
	if flags.Changed("steps") {
		spec.StepLimit = stepLimit
	}
	if flags.Changed("seed") {
		spec.Seed = seed
	}
	if flags.Changed("history-update") {
		spec.HistoryUpdate = historyUpdate
	}
	if flags.Changed("clone") {
		spec.CloneStrategy = cloneStrategy
	}
	return spec, nil
}

func solve(ctx context.Context, spec problems.Spec, out io.Writer, z *zap.Logger) error {
	var progress optimization.ProgressSink = optimization.NewWriterProgress(out)
	if quiet {
		progress = optimization.DiscardProgress
	}

	job, err := spec.NewJob(problems.JobOptions{
		Defaults: problems.ReferenceDefaults(),
		Progress: progress,
		Logger:   z,
	})
	if err != nil {
		return err
	}

	resolved := job.Spec()
	z.Info("solving",
		zap.String("problem", resolved.Problem),
		zap.Int("size", resolved.Size),
		zap.Int("history_length", resolved.HistoryLength),
		zap.Int("step_limit", resolved.StepLimit),
		zap.Int64("seed", resolved.Seed),
	)

	outcome, runErr := job.Run(ctx)
	if outcome == nil {
		return runErr
	}

	if outcome.Cancelled {
		fmt.Fprintln(out, "Interrupted, reporting the best solution found so far.")
	}
	fmt.Fprintf(out, "Best cost: %.4f\n", outcome.BestCost)
	fmt.Fprintf(out, "Steps: %d (accepted %d, rejected %d)\n", outcome.Iterations, outcome.Accepted, outcome.Rejected)

	if outPath != "" {
		if err := writeOutcome(outPath, resolved, outcome); err != nil {
			return err
		}
	}
	return runErr
}

func writeOutcome(path string, spec problems.Spec, outcome *problems.Outcome) error {
	data, err := json.MarshalIndent(struct {
		Spec    problems.Spec     `json:"spec"`
		Outcome *problems.Outcome `json:"outcome"`
	}{spec, outcome}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}
