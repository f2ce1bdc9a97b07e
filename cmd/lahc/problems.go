package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/lahc/internal/problems"
)

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the built-in problems",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, problems.ProblemTSP)
		for _, name := range problems.Objectives() {
			fmt.Fprintln(out, name)
		}
	},
}

func init() {
	rootCmd.AddCommand(problemsCmd)
}
