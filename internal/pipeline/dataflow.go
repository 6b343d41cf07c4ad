package pipeline

import (
	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/cb"
	"github.com/born-ml/subalpha/internal/geometry"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/born-ml/subalpha/internal/variant"
)

// feed streams one input operand into its buffer for a core's output
// range.
type feed struct {
	src     TileReader
	buf     *cb.Buffer
	fill    variant.Fill
	sharded bool
	strides geometry.Strides
	out     geometry.Dims
	tile    tensor.TileShape
}

// whole pushes a sharded operand's count tiles in one publish.
func (f feed) whole(start, n, shardWidth, count uint32) {
	f.buf.ReserveBack(int(count))
	geometry.WalkTiles(start, n, shardWidth, f.out.Wt, func(k, id uint32) {
		if k < count {
			f.src.ReadTile(f.index(id), f.buf.Back(int(k)))
		}
	})
	f.buf.PushBack(int(count))
}

// step pushes the tile output tile id needs, if it starts a new broadcast
// period. k is the position of id in the core's range.
func (f feed) step(k, id uint32) {
	switch f.fill {
	case variant.FillCol:
		if k != 0 && id%f.out.Wt != 0 {
			return
		}
	case variant.FillScalar:
		if k != 0 && id%f.out.PlaneTiles() != 0 {
			return
		}
	}
	f.buf.ReserveBack(1)
	dst := f.buf.Back(0)
	f.src.ReadTile(f.index(id), dst)
	fillTile(f.fill, dst, f.tile)
	f.buf.PushBack(1)
}

// index maps an output tile id to the operand's own tile index. The outer
// coordinates go through the stride-enable values; the in-plane position
// collapses along the broadcast dimension.
func (f feed) index(id uint32) uint32 {
	o := f.out
	plane := o.PlaneTiles()
	tw := id % o.Wt
	th := (id / o.Wt) % o.Ht
	c := (id / plane) % o.C
	n := (id / (plane * o.C)) % o.N
	nd := id / (plane * o.C * o.N)
	base := nd*f.strides.ND + n*f.strides.N + c*f.strides.C

	switch f.fill {
	case variant.FillRow:
		return base + tw
	case variant.FillCol:
		return base + th
	case variant.FillScalar:
		return base
	default:
		return base + th*o.Wt + tw
	}
}

// RunReader streams A and the alpha tile. A core without output tiles
// returns at once.
func RunReader(c *Core) {
	v := c.Reader
	n := v[args.ReaderDstNumTiles]
	if n == 0 {
		return
	}

	alpha := args.ScalarElement(v[args.ReaderPackedScalar], c.DType)
	c.Buffers.Alpha.ReserveBack(1)
	t := c.Buffers.Alpha.Back(0)
	for i := range t {
		t[i] = alpha
	}
	c.Buffers.Alpha.PushBack(1)

	f := feed{
		src:     c.A,
		buf:     c.Buffers.A,
		fill:    c.Kernels.Reader.Fill(),
		sharded: c.Placement.A,
		strides: v.Strides(),
		out:     v.OutDims(),
		tile:    c.Tile,
	}
	start, shardWidth := v[args.ReaderStartTile], v[args.ReaderDstShardWidth]
	if f.sharded {
		f.whole(start, n, shardWidth, v[args.ReaderSrcNumTiles])
		return
	}
	geometry.WalkTiles(start, n, shardWidth, f.out.Wt, f.step)
}

// RunWriter streams B and writes the output tiles back. An interleaved
// output is drained tile by tile as B is fed; a sharded output is taken in
// one wait once all of B is in.
func RunWriter(c *Core) {
	v := c.Writer
	n := v[args.WriterDstNumTiles]
	if n == 0 {
		return
	}

	f := feed{
		src:     c.B,
		buf:     c.Buffers.B,
		fill:    c.Kernels.Writer.Fill(),
		sharded: c.Placement.B,
		strides: v.Strides(),
		out:     v.OutDims(),
		tile:    c.Tile,
	}
	start, shardWidth := v[args.WriterStartTile], v[args.WriterDstShardWidth]
	if f.sharded {
		f.whole(start, n, shardWidth, v[args.WriterSrcNumTiles])
	}

	out := c.Buffers.Out
	geometry.WalkTiles(start, n, shardWidth, f.out.Wt, func(k, id uint32) {
		if !f.sharded {
			f.step(k, id)
		}
		if !c.Placement.C {
			out.WaitFront(1)
			c.C.WriteTile(id, out.Front(0))
			out.PopFront(1)
		}
	})
	if !c.Placement.C {
		return
	}

	out.WaitFront(int(n))
	geometry.WalkTiles(start, n, shardWidth, f.out.Wt, func(k, id uint32) {
		c.C.WriteTile(id, out.Front(int(k)))
	})
	out.PopFront(int(n))
}
