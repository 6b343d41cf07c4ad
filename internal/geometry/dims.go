// Package geometry derives tile-grid dimensions and per-core shard shapes
// from tensor descriptors.
package geometry

import (
	"github.com/born-ml/subalpha/internal/tensor"
)

// Dims is a tensor seen as N batches of C channels of Ht x Wt tiles.
type Dims struct {
	N  uint32
	C  uint32
	Ht uint32
	Wt uint32
}

// ShapeDims reads (N, C, Ht, Wt) from the padded shape. The two innermost
// dimensions are divided by the tile; missing outer dimensions count as 1.
func ShapeDims(d tensor.Descriptor) Dims {
	shape := d.PaddedShape()
	return Dims{
		N:  uint32(shape.Dim(-4)),
		C:  uint32(shape.Dim(-3)),
		Ht: uint32(shape.Dim(-2)) / d.Tile.Height,
		Wt: uint32(shape.Dim(-1)) / d.Tile.Width,
	}
}

// PlaneTiles returns Ht*Wt.
func (d Dims) PlaneTiles() uint32 {
	return d.Ht * d.Wt
}

// UnrolledHt returns the tile-row count with batch and channel folded into
// the height.
func (d Dims) UnrolledHt() uint32 {
	return d.N * d.C * d.Ht
}

// Tiles returns N*C*Ht*Wt.
func (d Dims) Tiles() uint32 {
	return d.N * d.C * d.Ht * d.Wt
}

// ExtractND folds every logical dimension beyond the four innermost into a
// single factor. Only outputs of rank 5 or more have such dimensions; the
// product runs over the output's outer positions, so an input of lower rank
// contributes 1 for each position it does not have.
func ExtractND(d tensor.Descriptor, outRank int) uint32 {
	nd := uint32(1)
	if outRank < 5 {
		return nd
	}
	for i := -5; i >= -outRank; i-- {
		nd *= uint32(d.Shape.Dim(i))
	}
	return nd
}

// Strides are the "stride-enable" values a stage uses to step an input
// through the output's outer dimensions. Each is zero when the input is
// degenerate along that dimension, so the same input tiles are re-read.
type Strides struct {
	ND uint32
	N  uint32
	C  uint32
}

// InputStrides returns the stride-enable values of an input with dims d and
// folded outer factor nd.
func InputStrides(d Dims, nd uint32) Strides {
	return Strides{
		ND: d.Ht * d.Wt * d.C * d.N * b2u(nd > 1),
		N:  d.Ht * d.Wt * d.C * b2u(d.N > 1),
		C:  d.Ht * d.Wt * b2u(d.C > 1),
	}
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// WalkTiles calls fn with the position k and linear index of each of the n
// output tiles of a core's range. A zero shardWidth means the range is the
// contiguous run [start, start+n). Otherwise the range is a shard of rows
// shardWidth tiles wide inside a tensor wt tiles wide.
func WalkTiles(start, n, shardWidth, wt uint32, fn func(k, id uint32)) {
	if shardWidth == 0 || shardWidth == wt {
		for k := uint32(0); k < n; k++ {
			fn(k, start+k)
		}
		return
	}
	var k uint32
	for row := uint32(0); k < n; row++ {
		base := start + row*wt
		for col := uint32(0); col < shardWidth && k < n; col++ {
			fn(k, base+col)
			k++
		}
	}
}
