// Package partition assigns output tiles to cores. It is a pure function of
// the operand descriptors, the worker grid and the broadcast classification:
// every output tile lands on exactly one core, in traversal order, and every
// core of the worker grid receives an item, with no-op items for cores that
// have nothing to do.
package partition

import (
	"log/slog"

	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/born-ml/subalpha/internal/geometry"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/born-ml/subalpha/internal/variant"
	"github.com/pkg/errors"
)

// Configuration errors detected while partitioning. Wrapped geometry errors
// (geometry.ErrUnevenShard, geometry.ErrShardGridMismatch) are returned as
// well.
var (
	// ErrShardOutsideGrid means a shard core is not part of the worker grid.
	ErrShardOutsideGrid = errors.New("shard grid is not contained in the worker grid")
	// ErrShardedBroadcast means a sharded operand is also broadcast; its
	// shard would not line up with the output shard it feeds.
	ErrShardedBroadcast = errors.New("sharded operand cannot be broadcast")
	// ErrBroadcastPeriodSharding means a broadcast period longer than one
	// tile was requested on a layout whose per-core tile range is not
	// contiguous.
	ErrBroadcastPeriodSharding = errors.New("broadcast period requires contiguous per-core tiles (height sharding)")
	// ErrEmptyGrid means there are no cores to run on.
	ErrEmptyGrid = errors.New("worker grid is empty")
)

// Input is everything the partitioner looks at.
type Input struct {
	A          tensor.Descriptor
	B          tensor.Descriptor
	C          tensor.Descriptor
	WorkerGrid grid.CoreRangeSet
	Broadcast  broadcast.Type
}

// CoreWorkItem is the work one core owns.
type CoreWorkItem struct {
	Core   grid.CoreCoord
	Active bool

	// StartTile is the linear index of the first output tile.
	StartTile uint32
	// NumTiles is the number of output tiles.
	NumTiles uint32
	// NumTilesA and NumTilesB are the tiles the reader and writer publish
	// for A and B: the shard area for a sharded operand, one per output
	// tile otherwise, or one per broadcast period for the operand held by
	// the compute stage.
	NumTilesA uint32
	NumTilesB uint32
	// ShardWidth is the width in tiles of the core's output shard, 0 when
	// the output range is a contiguous run of tiles.
	ShardWidth uint32

	Frequency   uint32
	StartOffset uint32
}

// Plan is the partition of one operation.
type Plan struct {
	Items      []CoreWorkItem
	Kernels    variant.KernelConfig
	Broadcast  broadcast.Type
	Layout     tensor.MemoryLayout
	Shards     *geometry.ShardSpecs
	RowMajor   bool
	TotalTiles uint32
	OutDims    geometry.Dims
}

// ActiveCores returns the number of items with work.
func (p *Plan) ActiveCores() int {
	n := 0
	for _, it := range p.Items {
		if it.Active {
			n++
		}
	}
	return n
}

// Partition computes the per-core work for in. On error nothing is
// returned; callers must not dispatch anything.
func Partition(in Input) (*Plan, error) {
	if in.WorkerGrid.Empty() {
		return nil, ErrEmptyGrid
	}

	kernels := variant.Select(in.Broadcast)
	plan := &Plan{
		Kernels:    kernels,
		Broadcast:  in.Broadcast,
		Layout:     tensor.Interleaved,
		RowMajor:   true,
		TotalTiles: in.C.NumTiles(),
		OutDims:    geometry.ShapeDims(in.C),
	}

	var err error
	if specs, ok := geometry.ResolveShardSpecs(in.A, in.B, in.C); ok {
		plan.Shards = &specs
		plan.Layout = geometry.MemoryLayoutOf(in.A, in.B, in.C)
		plan.RowMajor = specs.A.Orientation == tensor.RowMajor
		plan.Items, err = partitionSharded(in, plan)
	} else {
		plan.Items = partitionInterleaved(in, plan)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("partitioned output tiles",
		"tiles", plan.TotalTiles,
		"cores", len(plan.Items),
		"active", plan.ActiveCores(),
		"layout", plan.Layout.String(),
		"broadcast", in.Broadcast.String())
	return plan, nil
}

func partitionInterleaved(in Input, plan *Plan) []CoreWorkItem {
	split := grid.SplitWorkToCores(in.WorkerGrid, plan.TotalTiles, plan.RowMajor)
	cores := in.WorkerGrid.Cores(plan.RowMajor)

	items := make([]CoreWorkItem, len(cores))
	var start uint32
	for i, core := range cores {
		n, ok := split.UnitsFor(core)
		if !ok {
			items[i] = CoreWorkItem{Core: core}
			continue
		}
		items[i] = newItem(core, start, n, 0, plan)
		start += n
	}
	return items
}

func partitionSharded(in Input, plan *Plan) ([]CoreWorkItem, error) {
	specs := plan.Shards
	layout := plan.Layout

	for _, c := range specs.C.Grid.Cores(plan.RowMajor) {
		if !in.WorkerGrid.Contains(c) {
			return nil, errors.Wrapf(ErrShardOutsideGrid, "core %s of %s", c, specs.C.Grid)
		}
	}
	if err := checkShardedOperand("a", in.A, in.C, specs.A, specs.C, plan.Kernels.Reader); err != nil {
		return nil, err
	}
	if err := checkShardedOperand("b", in.B, in.C, specs.B, specs.C, plan.Kernels.Writer); err != nil {
		return nil, err
	}
	if periodic(in.Broadcast) && layout != tensor.HeightSharded {
		return nil, errors.Wrapf(ErrBroadcastPeriodSharding, "%s on %s", in.Broadcast, layout)
	}

	cGen := geometry.NewShardShapeGenerator(specs.C, in.C, layout)
	if err := cGen.Validate(); err != nil {
		return nil, errors.Wrap(err, "output shard")
	}
	var aGen, bGen *geometry.ShardShapeGenerator
	if in.A.Memory.IsSharded() {
		g := geometry.NewShardShapeGenerator(specs.A, in.A, layout)
		if err := g.Validate(); err != nil {
			return nil, errors.Wrap(err, "input a shard")
		}
		aGen = &g
	}
	if in.B.Memory.IsSharded() {
		g := geometry.NewShardShapeGenerator(specs.B, in.B, layout)
		if err := g.Validate(); err != nil {
			return nil, errors.Wrap(err, "input b shard")
		}
		bGen = &g
	}

	nominal := cGen.Nominal()
	perWidth := geometry.ShardsPerWidth(specs.C, layout)
	if shardCols := ceilDiv(plan.OutDims.Wt, nominal[1]); shardCols != perWidth {
		return nil, errors.Wrapf(geometry.ErrShardGridMismatch,
			"%d shard columns across %d tiles but %d shards per width", shardCols, plan.OutDims.Wt, perWidth)
	}

	cores := grid.GridToCoresWithNoop(specs.C.Grid, in.WorkerGrid, plan.RowMajor)
	items := make([]CoreWorkItem, len(cores))
	for i, core := range cores {
		if !specs.C.Grid.Contains(core) {
			items[i] = CoreWorkItem{Core: core}
			continue
		}
		shape, err := cGen.Shape(core)
		if err != nil {
			return nil, err
		}
		idx := uint32(i)
		start := (idx/perWidth)*(nominal[0]*plan.OutDims.Wt) + (idx%perWidth)*nominal[1]
		item := newItem(core, start, shape[0]*shape[1], shape[1], plan)
		if aGen != nil {
			s, err := aGen.Shape(core)
			if err != nil {
				return nil, err
			}
			item.NumTilesA = s[0] * s[1]
		}
		if bGen != nil {
			s, err := bGen.Shape(core)
			if err != nil {
				return nil, err
			}
			item.NumTilesB = s[0] * s[1]
		}
		items[i] = item
	}
	return items, nil
}

// newItem fills the broadcast bookkeeping and the demand-derived input
// counts of an active core.
func newItem(core grid.CoreCoord, start, n, shardWidth uint32, plan *Plan) CoreWorkItem {
	freq, offset := broadcast.FrequencyOffset(plan.Broadcast, start, plan.OutDims.Ht, plan.OutDims.Wt)
	item := CoreWorkItem{
		Core:        core,
		Active:      true,
		StartTile:   start,
		NumTiles:    n,
		NumTilesA:   n,
		NumTilesB:   n,
		ShardWidth:  shardWidth,
		Frequency:   freq,
		StartOffset: offset,
	}
	switch plan.Kernels.Side {
	case broadcast.SideA:
		item.NumTilesA = broadcast.Periods(n, freq, offset)
	case broadcast.SideB:
		item.NumTilesB = broadcast.Periods(n, freq, offset)
	}
	return item
}

// checkShardedOperand rejects a sharded input that is broadcast, either
// within tiles (a fill variant) or across tiles (a different padded shape),
// or whose shard differs from the output shard.
func checkShardedOperand(name string, in, out tensor.Descriptor, spec, outSpec tensor.ShardSpec, stage variant.KernelName) error {
	if !in.Memory.IsSharded() {
		return nil
	}
	if stage.Fill() != variant.FillNone || !in.PaddedShape().Equal(out.PaddedShape()) {
		return errors.Wrapf(ErrShardedBroadcast, "input %s %v to output %v", name, in.Shape, out.Shape)
	}
	if spec.Shape != outSpec.Shape || !spec.Grid.Equal(outSpec.Grid) {
		return errors.Wrapf(ErrShardedBroadcast, "input %s %s does not match output %s", name, spec, outSpec)
	}
	return nil
}

// periodic reports whether t reuses one broadcast tile across more than one
// output tile.
func periodic(t broadcast.Type) bool {
	switch t {
	case broadcast.ScalarA, broadcast.ScalarB, broadcast.ColA, broadcast.ColB, broadcast.RowAColB, broadcast.RowBColA:
		return true
	default:
		return false
	}
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
