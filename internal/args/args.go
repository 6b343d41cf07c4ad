// Package args encodes a partition into the per-core runtime argument
// vectors the three pipeline stages read. The same walk serves the first
// launch of a program and every later launch that reuses it: only the
// handler differs.
package args

import (
	"github.com/born-ml/subalpha/internal/geometry"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/partition"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
)

// Vector widths.
const (
	ReaderWidth  = 14
	WriterWidth  = 14
	ComputeWidth = 3
)

// Reader vector fields.
const (
	ReaderSrcAddr = iota
	ReaderPackedScalar
	ReaderStartTile
	ReaderSrcNumTiles
	ReaderDstNumTiles
	ReaderDstShardWidth
	ReaderStrideND
	ReaderStrideN
	ReaderStrideC
	ReaderDstN
	ReaderDstC
	ReaderDstHt
	ReaderDstWt
	ReaderDstND
)

// Writer vector fields.
const (
	WriterSrcAddr = iota
	WriterDstAddr
	WriterStartTile
	WriterSrcNumTiles
	WriterDstNumTiles
	WriterDstShardWidth
	WriterStrideND
	WriterStrideN
	WriterStrideC
	WriterDstN
	WriterDstC
	WriterDstHt
	WriterDstWt
	WriterDstND
)

// Compute vector fields.
const (
	ComputeNumTiles = iota
	ComputeFrequency
	ComputeStartOffset
)

// ReaderArgs is the reader stage's vector.
type ReaderArgs [ReaderWidth]uint32

// WriterArgs is the writer stage's vector.
type WriterArgs [WriterWidth]uint32

// ComputeArgs is the compute stage's vector.
type ComputeArgs [ComputeWidth]uint32

// Handler receives the vectors of each core, in traversal order. A handler
// either stores fresh vectors or overwrites vectors stored by an earlier
// launch.
type Handler interface {
	Reader(core grid.CoreCoord, v ReaderArgs) error
	Writer(core grid.CoreCoord, v WriterArgs) error
	Compute(core grid.CoreCoord, v ComputeArgs) error
}

// Inputs are the per-invocation values that do not come from the plan.
type Inputs struct {
	A, B, C             tensor.Descriptor
	AAddr, BAddr, CAddr uint32
	Alpha               float32
}

// Synthesize emits the vectors of every item of plan into h. Inactive cores
// receive all-zero vectors. The first handler error stops the walk.
func Synthesize(plan *partition.Plan, in Inputs, h Handler) error {
	outRank := in.C.Shape.Rank()
	packed := PackScalar(in.Alpha, in.A.DType)

	aDims, bDims := geometry.ShapeDims(in.A), geometry.ShapeDims(in.B)
	aStrides := geometry.InputStrides(aDims, geometry.ExtractND(in.A, outRank))
	bStrides := geometry.InputStrides(bDims, geometry.ExtractND(in.B, outRank))
	c := plan.OutDims
	cND := geometry.ExtractND(in.C, outRank)

	for _, it := range plan.Items {
		var (
			r ReaderArgs
			w WriterArgs
			k ComputeArgs
		)
		if it.Active {
			r = ReaderArgs{
				in.AAddr, packed, it.StartTile, it.NumTilesA, it.NumTiles, it.ShardWidth,
				aStrides.ND, aStrides.N, aStrides.C,
				c.N, c.C, c.Ht, c.Wt, cND,
			}
			w = WriterArgs{
				in.BAddr, in.CAddr, it.StartTile, it.NumTilesB, it.NumTiles, it.ShardWidth,
				bStrides.ND, bStrides.N, bStrides.C,
				c.N, c.C, c.Ht, c.Wt, cND,
			}
			k = ComputeArgs{it.NumTiles, it.Frequency, it.StartOffset}
		}

		if err := h.Reader(it.Core, r); err != nil {
			return errors.Wrapf(err, "reader args of core %s", it.Core)
		}
		if err := h.Writer(it.Core, w); err != nil {
			return errors.Wrapf(err, "writer args of core %s", it.Core)
		}
		if err := h.Compute(it.Core, k); err != nil {
			return errors.Wrapf(err, "compute args of core %s", it.Core)
		}
	}
	return nil
}

// Strides returns the three stride-enable fields of a reader vector.
func (v ReaderArgs) Strides() geometry.Strides {
	return geometry.Strides{ND: v[ReaderStrideND], N: v[ReaderStrideN], C: v[ReaderStrideC]}
}

// OutDims returns the output tile dimensions carried by a reader vector.
func (v ReaderArgs) OutDims() geometry.Dims {
	return geometry.Dims{N: v[ReaderDstN], C: v[ReaderDstC], Ht: v[ReaderDstHt], Wt: v[ReaderDstWt]}
}

// Strides returns the three stride-enable fields of a writer vector.
func (v WriterArgs) Strides() geometry.Strides {
	return geometry.Strides{ND: v[WriterStrideND], N: v[WriterStrideN], C: v[WriterStrideC]}
}

// OutDims returns the output tile dimensions carried by a writer vector.
func (v WriterArgs) OutDims() geometry.Dims {
	return geometry.Dims{N: v[WriterDstN], C: v[WriterDstC], Ht: v[WriterDstHt], Wt: v[WriterDstWt]}
}
