package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/born-ml/subalpha/internal/config"
	"github.com/born-ml/subalpha/internal/partition"
	"github.com/born-ml/subalpha/internal/subalpha"
	"github.com/born-ml/subalpha/internal/variant"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newPlanCommand(f *flags) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the kernels and per-core work of a run without executing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := f.load(cmd)
			if err != nil {
				return err
			}
			return printPlan(cmd, run, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include cores without work")
	return cmd
}

func printPlan(cmd *cobra.Command, run config.Run, all bool) error {
	a, b, err := run.Descriptors()
	if err != nil {
		return err
	}
	outMem, err := run.OutputMemory()
	if err != nil {
		return err
	}
	c, err := subalpha.OutputDescriptor(a, b, outMem)
	if err != nil {
		return err
	}
	kind, err := subalpha.Validate(a, b, c)
	if err != nil {
		return err
	}
	plan, err := subalpha.Plan(a, b, c, kind, run.WorkerGrid())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "C %v %s\n", c.Shape, c.Memory)
	fmt.Fprintf(out, "broadcast: %s\n", kind)
	fmt.Fprintf(out, "kernels: %s\n", plan.Kernels)
	for _, k := range []variant.KernelName{plan.Kernels.Reader, plan.Kernels.Writer, plan.Kernels.Compute} {
		fmt.Fprintf(out, "  %s\n", k.Path())
	}
	fmt.Fprintf(out, "tiles: %d over %d active cores\n\n", plan.TotalTiles, plan.ActiveCores())

	items := plan.Items
	if !all {
		items = lo.Filter(items, func(it partition.CoreWorkItem, _ int) bool { return it.Active })
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "core\tstart\ttiles\ta\tb\tshard w\tfreq\toffset\t")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n", it.Core, it.StartTile, it.NumTiles,
			it.NumTilesA, it.NumTilesB, it.ShardWidth, it.Frequency, it.StartOffset)
	}
	return w.Flush()
}
