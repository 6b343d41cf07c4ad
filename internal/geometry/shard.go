package geometry

import (
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
)

// Configuration errors raised while deriving shard geometry.
var (
	// ErrUnevenShard means the last shard is smaller than the others on a
	// layout that cannot process a ragged remainder (anything but height
	// sharding).
	ErrUnevenShard = errors.New("uneven shard size is only supported for height sharding")
	// ErrShardGridMismatch means the shard grid does not hold exactly one
	// shard per core.
	ErrShardGridMismatch = errors.New("shard grid does not match the number of shards")
)

// ShardShapeGenerator answers, for any core of a shard grid, the shape in
// tiles (rows, cols) of the shard that core owns. It holds no mutable state
// after construction, so Shape may be called per core in any order.
type ShardShapeGenerator struct {
	endCore   grid.CoreCoord
	numCores  uint32
	layout    tensor.MemoryLayout
	shape     [2]uint32
	lastShape [2]uint32
	numShards uint32
}

// NewShardShapeGenerator builds the generator for a tensor placed with spec
// under layout.
func NewShardShapeGenerator(spec tensor.ShardSpec, d tensor.Descriptor, layout tensor.MemoryLayout) ShardShapeGenerator {
	shape := [2]uint32{
		ceilDiv(spec.Shape[0], d.Tile.Height),
		ceilDiv(spec.Shape[1], d.Tile.Width),
	}
	dims := ShapeDims(d)
	// Every tile row of the tensor, outer dimensions beyond the fourth
	// included.
	unrolledHt := d.NumTiles() / dims.Wt
	return ShardShapeGenerator{
		endCore:  spec.Grid.Last(),
		numCores: spec.Grid.NumCores(),
		layout:   layout,
		shape:    shape,
		lastShape: [2]uint32{
			shape[0] - (roundUp(unrolledHt, shape[0]) - unrolledHt),
			shape[1] - (roundUp(dims.Wt, shape[1]) - dims.Wt),
		},
		numShards: ceilDiv(unrolledHt, shape[0]) * ceilDiv(dims.Wt, shape[1]),
	}
}

// Nominal returns the shard shape of every core but the last.
func (g ShardShapeGenerator) Nominal() [2]uint32 {
	return g.shape
}

// Last returns the (possibly ragged) shape of the traversal-order last core.
func (g ShardShapeGenerator) Last() [2]uint32 {
	return g.lastShape
}

// Validate checks the placement once: one shard per core, and a ragged last
// shard only under height sharding.
func (g ShardShapeGenerator) Validate() error {
	if g.numShards != g.numCores {
		return errors.Wrapf(ErrShardGridMismatch, "%d shards of %dx%d tiles on %d cores",
			g.numShards, g.shape[0], g.shape[1], g.numCores)
	}
	if g.layout != tensor.HeightSharded && g.lastShape != g.shape {
		return errors.Wrapf(ErrUnevenShard, "layout %s: last shard %dx%d, nominal %dx%d",
			g.layout, g.lastShape[0], g.lastShape[1], g.shape[0], g.shape[1])
	}
	return nil
}

// Shape returns the shard shape, in tiles, owned by core.
func (g ShardShapeGenerator) Shape(core grid.CoreCoord) ([2]uint32, error) {
	if core != g.endCore {
		return g.shape, nil
	}
	if g.layout == tensor.HeightSharded {
		return g.lastShape, nil
	}
	if g.lastShape != g.shape {
		return [2]uint32{}, errors.Wrapf(ErrUnevenShard, "layout %s at core %s", g.layout, core)
	}
	return g.shape, nil
}

// ShardSpecs holds the resolved shard spec of each operand. Operands that
// are not sharded carry C's spec rescaled to their own shape.
type ShardSpecs struct {
	A tensor.ShardSpec
	B tensor.ShardSpec
	C tensor.ShardSpec
}

// AdjustToShape rescales the shard shape of spec from a tensor of shape
// from to a tensor of shape to, keeping the grid and orientation.
func AdjustToShape(spec tensor.ShardSpec, from, to tensor.Shape) tensor.ShardSpec {
	out := spec
	out.Shape[0] = spec.Shape[0] * uint32(to.Dim(-2)) / uint32(from.Dim(-2))
	out.Shape[1] = spec.Shape[1] * uint32(to.Dim(-1)) / uint32(from.Dim(-1))
	return out
}

// ResolveShardSpecs derives the shard specs of all three operands. C keeps
// its own spec when sharded, otherwise it takes A's (then B's) rescaled to
// C's shape. It returns false when nothing is sharded.
func ResolveShardSpecs(a, b, c tensor.Descriptor) (ShardSpecs, bool) {
	aSharded, bSharded, cSharded := a.Memory.IsSharded(), b.Memory.IsSharded(), c.Memory.IsSharded()
	if !aSharded && !bSharded && !cSharded {
		return ShardSpecs{}, false
	}

	aShape, bShape, cShape := a.PaddedShape(), b.PaddedShape(), c.PaddedShape()

	var cSpec tensor.ShardSpec
	switch {
	case cSharded:
		cSpec = *c.Memory.Shard
	case aSharded:
		cSpec = AdjustToShape(*a.Memory.Shard, aShape, cShape)
	default:
		cSpec = AdjustToShape(*b.Memory.Shard, bShape, cShape)
	}

	specs := ShardSpecs{C: cSpec}
	if aSharded {
		specs.A = *a.Memory.Shard
	} else {
		specs.A = AdjustToShape(cSpec, cShape, aShape)
	}
	if bSharded {
		specs.B = *b.Memory.Shard
	} else {
		specs.B = AdjustToShape(cSpec, cShape, bShape)
	}
	return specs, true
}

// MemoryLayoutOf returns the layout of the first sharded operand among
// a, b, c, or Interleaved.
func MemoryLayoutOf(a, b, c tensor.Descriptor) tensor.MemoryLayout {
	for _, d := range []tensor.Descriptor{a, b, c} {
		if d.Memory.IsSharded() {
			return d.Memory.Layout
		}
	}
	return tensor.Interleaved
}

// ShardsPerWidth returns how many shards sit side by side across one
// tile-row band of the tensor.
func ShardsPerWidth(spec tensor.ShardSpec, layout tensor.MemoryLayout) uint32 {
	switch layout {
	case tensor.HeightSharded:
		return 1
	case tensor.WidthSharded:
		return spec.Grid.NumCores()
	default:
		box := spec.Grid.BoundingBox()
		if spec.Orientation == tensor.RowMajor {
			return box.Width()
		}
		return box.Height()
	}
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func roundUp(v, multiple uint32) uint32 {
	return ceilDiv(v, multiple) * multiple
}
