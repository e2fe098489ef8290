// analyze_results is an intentionally thin CLI: spec.md §1/§6 scopes
// plotting/analysis out of this system's core, so this command only
// decodes a results blob and its scenario config and prints a one-line
// summary (SPEC_FULL.md §3).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/om-mab/simulator/internal/config"
	"github.com/om-mab/simulator/internal/results"
)

func main() {
	root := &cobra.Command{
		Use:   "analyze_results <results-path> <scenario-config-path> [<baseline-results-path>]",
		Short: "Summarize a recorded simulation run",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "analyze_results:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	resultsPath, scenarioPath := args[0], args[1]

	full, err := results.Load(resultsPath)
	if err != nil {
		return fmt.Errorf("loading results: %w", err)
	}
	cfg, err := config.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	failures := 0
	for _, rr := range full.Rounds {
		for _, f := range rr.FailedByM {
			if f {
				failures++
				break
			}
		}
	}
	finalM := 0
	if n := len(full.ChosenM); n > 0 {
		finalM = full.ChosenM[n-1]
	}

	failureRate := 0.0
	if n := len(full.Rounds); n > 0 {
		failureRate = float64(failures) / float64(n)
	}

	fmt.Printf("run %s: %d rounds, %d nodes, failure rate %.4f, final m = %d\n",
		full.RunID, len(full.Rounds), cfg.Run.NumNodes, failureRate, finalM)

	if len(args) == 3 {
		baseline, err := results.Load(args[2])
		if err != nil {
			return fmt.Errorf("loading baseline results: %w", err)
		}
		fmt.Printf("baseline %s: %d rounds\n", baseline.RunID, len(baseline.Rounds))
	}
	return nil
}
