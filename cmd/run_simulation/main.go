// run_simulation runs one experiment from a scenario config and writes the
// resulting FullResults blob (spec §6 "run_simulation <scenario-config-path>
// <results-output-path>").
//
// Grounded on the ag-ui-cli root command shape (cmd/ag-ui-cli/commands/root.go):
// a single cobra.Command with positional Args, persistent flags for
// cross-cutting concerns (here --debug and --seed), and os.Exit on the
// command's own terms rather than letting cobra's default error printing
// decide the exit code, since spec.md §6/§7 pins specific exit statuses.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/om-mab/simulator/internal/config"
	"github.com/om-mab/simulator/internal/driver"
	"github.com/om-mab/simulator/internal/logging"
	"github.com/om-mab/simulator/internal/results"
)

var (
	debug bool
	seed  int64
)

func main() {
	root := &cobra.Command{
		Use:   "run_simulation <scenario-config-path> <results-output-path>",
		Short: "Run one OM(m) consensus simulation and record its results",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	root.PersistentFlags().Int64Var(&seed, "seed", time.Now().UnixNano(), "master RNG seed")

	if err := root.Execute(); err != nil {
		if config.IsConfigError(err) {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "run_simulation:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	scenarioPath, outputPath := args[0], args[1]

	log := logging.New(debug)
	entry := logging.For(log, "run_simulation", nil)

	cfg, err := config.Load(scenarioPath)
	if err != nil {
		return err
	}

	d := driver.New(cfg, seed, entry)
	full, err := d.Run()
	if err != nil {
		return err
	}

	if err := results.Save(outputPath, full); err != nil {
		return fmt.Errorf("writing results to %s: %w", outputPath, err)
	}
	entry.WithField("rounds", len(full.Rounds)).Info("simulation complete")
	return nil
}
