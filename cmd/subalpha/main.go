// Package main provides the subalpha CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/subalpha/internal/config"
	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags are shared by every subcommand.
type flags struct {
	verbose    bool
	configPath string

	// Overrides of the run config.
	dtype   string
	alpha   float32
	grid    []uint
	workers int
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "subalpha",
		Short:        "Tile-parallel C = A - B*alpha on a simulated device",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if f.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML run description")
	pf.StringVar(&f.dtype, "dtype", "", "element type (float32, int32, bfloat16, float16)")
	pf.Float32Var(&f.alpha, "alpha", 0, "scalar multiplier of B")
	pf.UintSliceVar(&f.grid, "grid", nil, "worker grid as x,y")
	pf.IntVar(&f.workers, "workers", 0, "concurrent core launches, 0 for every CPU")

	root.AddCommand(newRunCommand(f), newPlanCommand(f), newVersionCommand())
	return root
}

// load reads the run config and applies the flags that were set.
func (f *flags) load(cmd *cobra.Command) (config.Run, error) {
	run := config.Default()
	if f.configPath != "" {
		var err error
		if run, err = config.Load(f.configPath); err != nil {
			return run, err
		}
	}

	fs := cmd.Flags()
	if fs.Changed("dtype") {
		run.DType = f.dtype
	}
	if fs.Changed("alpha") {
		run.Alpha = f.alpha
	}
	if fs.Changed("grid") {
		if len(f.grid) != 2 {
			return run, fmt.Errorf("--grid wants two values, got %d", len(f.grid))
		}
		run.Grid = [2]uint32{uint32(f.grid[0]), uint32(f.grid[1])}
	}
	if fs.Changed("workers") {
		run.Workers = f.workers
	}
	return run, run.Validate()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subalpha %s\n", version)
		},
	}
}
