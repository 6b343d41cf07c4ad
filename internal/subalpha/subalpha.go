// Package subalpha implements the fused C = A - B*alpha device operation:
// it validates the operands, derives the output placement, builds or
// reuses a program and launches it.
package subalpha

import (
	"context"
	"log/slog"

	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/born-ml/subalpha/internal/device"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/partition"
	"github.com/born-ml/subalpha/internal/pipeline"
	"github.com/born-ml/subalpha/internal/program"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
)

// Options configures an Operation.
type Options struct {
	// Output placement of Invoke. Nil follows a sharded input of the output
	// shape, else interleaved.
	MemoryConfig *tensor.MemoryConfig
	// Cores to spread work over. Empty means the whole device.
	WorkerGrid grid.CoreRangeSet
	// Core launch concurrency.
	Parallel parallel.Config
}

// DefaultOptions returns options that use the whole device.
func DefaultOptions() Options {
	return Options{Parallel: parallel.DefaultConfig()}
}

// Operation runs subtract-alpha on one device, caching a program per
// operation signature.
type Operation struct {
	dev   *device.Device
	cache *program.Cache
	opts  Options
}

// New returns an operation bound to dev.
func New(dev *device.Device, opts Options) *Operation {
	if opts.WorkerGrid.Empty() {
		opts.WorkerGrid = dev.WorkerGrid()
	}
	return &Operation{dev: dev, cache: program.NewCache(), opts: opts}
}

// Cache returns the operation's program cache.
func (op *Operation) Cache() *program.Cache {
	return op.cache
}

// Invoke computes a - b*alpha into a freshly allocated tensor.
func (op *Operation) Invoke(ctx context.Context, a, b *device.Tensor, alpha float32) (*device.Tensor, error) {
	cDesc, err := OutputDescriptor(a.Desc, b.Desc, op.opts.MemoryConfig)
	if err != nil {
		return nil, err
	}
	c, err := op.dev.Allocate(cDesc)
	if err != nil {
		return nil, err
	}
	if err := op.InvokeInto(ctx, a, b, c, alpha); err != nil {
		op.dev.Release(c)
		return nil, err
	}
	return c, nil
}

// InvokeInto computes a - b*alpha into c. On a configuration error nothing
// is dispatched and no program is cached. It is safe for concurrent use;
// invocations sharing a cached program run one at a time.
func (op *Operation) InvokeInto(ctx context.Context, a, b, c *device.Tensor, alpha float32) error {
	kind, err := Validate(a.Desc, b.Desc, c.Desc)
	if err != nil {
		return err
	}

	plan, err := Plan(a.Desc, b.Desc, c.Desc, kind, op.opts.WorkerGrid)
	if err != nil {
		return err
	}
	in := args.Inputs{
		A: a.Desc, B: b.Desc, C: c.Desc,
		AAddr: a.Addr, BAddr: b.Addr, CAddr: c.Addr,
		Alpha: alpha,
	}

	key := program.NewKey(a.Desc, b.Desc, c.Desc, kind, op.opts.WorkerGrid)
	p, hit := op.cache.Get(key)
	if hit {
		return p.Exclusive(func() error {
			if err := args.Synthesize(plan, in, p.UpdateArgs()); err != nil {
				return errors.Wrap(err, "override runtime args")
			}
			return op.launch(ctx, p, plan, kind, true)
		})
	}

	placement := pipeline.Placement{
		A: a.Desc.Memory.IsSharded(),
		B: b.Desc.Memory.IsSharded(),
		C: c.Desc.Memory.IsSharded(),
	}
	p = program.New(plan.Kernels, placement, a.Desc.DType, a.Desc.Tile)
	return p.Exclusive(func() error {
		if err := args.Synthesize(plan, in, p.SetArgs()); err != nil {
			return errors.Wrap(err, "set runtime args")
		}
		op.cache.Put(key, p)
		return op.launch(ctx, p, plan, kind, false)
	})
}

func (op *Operation) launch(ctx context.Context, p *program.Program, plan *partition.Plan, kind broadcast.Type, cached bool) error {
	slog.Debug("subalpha", "broadcast", kind.String(), "tiles", plan.TotalTiles,
		"active", plan.ActiveCores(), "cached", cached)
	return p.Launch(ctx, op.dev, op.opts.Parallel)
}

// Validate checks that a, b and c can take part in one invocation and
// returns the broadcast classification.
func Validate(a, b, c tensor.Descriptor) (broadcast.Type, error) {
	for _, d := range []struct {
		name string
		desc tensor.Descriptor
	}{{"a", a}, {"b", b}, {"c", c}} {
		if err := d.desc.Validate(); err != nil {
			return 0, configError(d.name, err)
		}
	}
	if a.DType != b.DType || a.DType != c.DType {
		return 0, configError("dtype", errors.Errorf("a %s, b %s, c %s", a.DType, b.DType, c.DType))
	}
	if a.Tile != b.Tile || a.Tile != c.Tile {
		return 0, configError("tile", errors.Errorf("operands use different tiles"))
	}

	out, err := tensor.BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return 0, configError("shape", errors.Wrap(err, "broadcasting rule violation"))
	}
	if !out.Equal(c.Shape) {
		return 0, configError("c", errors.Errorf("output shape %v, want %v", c.Shape, out))
	}
	kind, err := broadcast.Classify(a.Shape, b.Shape)
	if err != nil {
		return 0, configError("shape", err)
	}
	return kind, nil
}

// Plan partitions the output of a validated invocation over workers.
func Plan(a, b, c tensor.Descriptor, kind broadcast.Type, workers grid.CoreRangeSet) (*partition.Plan, error) {
	plan, err := partition.Partition(partition.Input{A: a, B: b, C: c, WorkerGrid: workers, Broadcast: kind})
	if err != nil {
		return nil, configError("placement", err)
	}
	return plan, nil
}

// OutputDescriptor returns the descriptor Invoke allocates for a - b*alpha.
// An explicit mc wins; otherwise the output follows a sharded input of the
// output's shape (A first), else it is interleaved.
func OutputDescriptor(a, b tensor.Descriptor, mc *tensor.MemoryConfig) (tensor.Descriptor, error) {
	shape, err := tensor.BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return tensor.Descriptor{}, configError("shape", errors.Wrap(err, "broadcasting rule violation"))
	}
	out := tensor.Descriptor{Shape: shape, Tile: a.Tile, DType: a.DType, Memory: tensor.InterleavedConfig}
	switch {
	case mc != nil:
		out.Memory = *mc
	case a.Memory.IsSharded() && a.Shape.Equal(shape):
		out.Memory = a.Memory
	case b.Memory.IsSharded() && b.Shape.Equal(shape):
		out.Memory = b.Memory
	}
	return out, nil
}
