// Package pipeline runs the three stages of one core: a reader that streams
// A and the alpha tile, a writer that streams B and drains the output, and
// a compute stage that turns them into A - B*alpha. The stages share
// nothing but the core's five tile buffers.
package pipeline

import (
	"sync"

	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/cb"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/born-ml/subalpha/internal/variant"
)

// TileReader reads tiles of a tensor by linear tile index.
type TileReader interface {
	ReadTile(idx uint32, dst []float32)
}

// TileWriter writes tiles of a tensor by linear tile index.
type TileWriter interface {
	WriteTile(idx uint32, src []float32)
}

// Buffers are the five queues of one core.
type Buffers struct {
	A      *cb.Buffer
	B      *cb.Buffer
	Alpha  *cb.Buffer
	Interm *cb.Buffer
	Out    *cb.Buffer
}

// Depths are the slot counts of a core's buffers.
type Depths struct {
	A, B, Alpha, Interm, Out int
}

// Total returns the number of tile slots across all buffers.
func (d Depths) Total() int {
	return d.A + d.B + d.Alpha + d.Interm + d.Out
}

// Placement says which operands are sharded, i.e. whose buffer is backed
// by the core's whole shard rather than double buffered.
type Placement struct {
	A, B, C bool
}

// BufferDepths returns the depths a core with the given vectors needs.
// Interleaved operands are double buffered; a sharded operand's buffer
// holds its whole shard.
func BufferDepths(r args.ReaderArgs, w args.WriterArgs, p Placement) Depths {
	d := Depths{A: 2, B: 2, Alpha: 1, Interm: 1, Out: 2}
	if p.A {
		d.A = max(1, int(r[args.ReaderSrcNumTiles]))
	}
	if p.B {
		d.B = max(1, int(w[args.WriterSrcNumTiles]))
	}
	if p.C {
		d.Out = max(1, int(w[args.WriterDstNumTiles]))
	}
	return d
}

// NewBuffers allocates the buffers of one core.
func NewBuffers(d Depths, tile tensor.TileShape) Buffers {
	n := int(tile.Elements())
	return Buffers{
		A:      cb.New(d.A, n),
		B:      cb.New(d.B, n),
		Alpha:  cb.New(d.Alpha, n),
		Interm: cb.New(d.Interm, n),
		Out:    cb.New(d.Out, n),
	}
}

// Core is everything the stages of one core see.
type Core struct {
	Kernels variant.KernelConfig
	DType   tensor.DataType
	Tile    tensor.TileShape

	Reader  args.ReaderArgs
	Writer  args.WriterArgs
	Compute args.ComputeArgs

	A, B      TileReader
	C         TileWriter
	Placement Placement
	Buffers   Buffers
}

// Run starts the three stages and waits for all of them.
func (c *Core) Run() {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		RunReader(c)
	}()
	go func() {
		defer wg.Done()
		RunCompute(c)
	}()
	go func() {
		defer wg.Done()
		RunWriter(c)
	}()
	wg.Wait()
}
