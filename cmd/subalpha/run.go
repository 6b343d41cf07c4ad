package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/born-ml/subalpha/internal/config"
	"github.com/born-ml/subalpha/internal/device"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/subalpha"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/spf13/cobra"
)

func newRunCommand(f *flags) *cobra.Command {
	var repeat int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the operation on generated data and check it against the host reference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := f.load(cmd)
			if err != nil {
				return err
			}
			return execute(cmd, run, repeat)
		},
	}
	cmd.Flags().IntVar(&repeat, "repeat", 1, "invocations on the same inputs; later ones hit the program cache")
	return cmd
}

func parallelConfig(run config.Run) parallel.Config {
	cfg := parallel.DefaultConfig()
	if run.Workers > 0 {
		cfg.NumWorkers = run.Workers
		cfg.Enabled = run.Workers > 1
	}
	return cfg
}

// newDevice returns a device whose grid covers the run's worker grid.
func newDevice(run config.Run) *device.Device {
	cfg := device.DefaultConfig()
	cfg.GridX = max(cfg.GridX, run.Grid[0])
	cfg.GridY = max(cfg.GridY, run.Grid[1])
	cfg.Parallel = parallelConfig(run)
	return device.New(cfg)
}

func generate(n int, seed uint64, dt tensor.DataType) []float32 {
	r := rand.New(rand.NewPCG(seed, uint64(dt)))
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*20 - 10
	}
	return out
}

func execute(cmd *cobra.Command, run config.Run, repeat int) error {
	dt, err := run.DataType()
	if err != nil {
		return err
	}
	aDesc, bDesc, err := run.Descriptors()
	if err != nil {
		return err
	}
	outMem, err := run.OutputMemory()
	if err != nil {
		return err
	}

	dev := newDevice(run)
	aData := generate(aDesc.Shape.NumElements(), run.Seed, dt)
	bData := generate(bDesc.Shape.NumElements(), run.Seed+1, dt)
	a, err := dev.FromHost(aDesc, aData)
	if err != nil {
		return err
	}
	b, err := dev.FromHost(bDesc, bData)
	if err != nil {
		return err
	}

	op := subalpha.New(dev, subalpha.Options{
		MemoryConfig: outMem,
		WorkerGrid:   run.WorkerGrid(),
		Parallel:     parallelConfig(run),
	})

	var c *device.Tensor
	for i := 0; i < max(repeat, 1); i++ {
		if c != nil {
			dev.Release(c)
		}
		if c, err = op.Invoke(cmd.Context(), a, b, run.Alpha); err != nil {
			return err
		}
	}

	got, err := dev.ToHost(c)
	if err != nil {
		return err
	}
	want, _, err := device.Reference(dt, aDesc.Shape, aData, bDesc.Shape, bData, run.Alpha, parallel.DefaultConfig())
	if err != nil {
		return err
	}

	mismatches, maxDiff := compare(got, want)
	hits, misses, _ := op.Cache().Stats()
	slog.Info("done", "output", c.Desc.String(), "cache_hits", hits, "cache_misses", misses)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "C %v %s\n", c.Desc.Shape, c.Desc.Memory)
	fmt.Fprintf(out, "elements: %d  mismatches: %d  max |diff|: %g\n", len(got), mismatches, maxDiff)
	if mismatches > 0 {
		return fmt.Errorf("%d of %d elements differ from the host reference", mismatches, len(got))
	}
	return nil
}

func compare(got, want []float32) (mismatches int, maxDiff float64) {
	for i := range want {
		if got[i] != want[i] {
			mismatches++
			maxDiff = math.Max(maxDiff, math.Abs(float64(got[i])-float64(want[i])))
		}
	}
	return mismatches, maxDiff
}
