package pipeline

import (
	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/born-ml/subalpha/internal/variant"
	"github.com/gomlx/exceptions"
)

// RunCompute produces the core's output tiles. A core without output tiles
// returns before waiting on the alpha tile.
func RunCompute(c *Core) {
	v := c.Compute
	n := v[args.ComputeNumTiles]
	if n == 0 {
		return
	}

	bufs := c.Buffers
	bufs.Alpha.WaitFront(1)
	alpha := bufs.Alpha.Front(0)

	switch c.Kernels.Compute {
	case variant.ComputeNoBcast:
		computeNoBcast(c, alpha, n)
	case variant.ComputeBcast:
		freq, offset := v[args.ComputeFrequency], v[args.ComputeStartOffset]
		complete := (n + offset) / freq
		remaining := (n + offset) % freq
		period := computeHeldB
		if c.Kernels.Side == broadcast.SideA {
			period = computeHeldA
		}
		start := offset
		for i := uint32(0); i < complete; i++ {
			period(c, alpha, start, freq)
			start = 0
		}
		if remaining > 0 {
			period(c, alpha, start, remaining)
		}
	default:
		exceptions.Panicf("pipeline: %s is not a compute kernel", c.Kernels.Compute)
	}

	bufs.Alpha.PopFront(1)
}

func computeNoBcast(c *Core, alpha []float32, n uint32) {
	bufs := c.Buffers
	for i := uint32(0); i < n; i++ {
		bufs.A.WaitFront(1)
		bufs.B.WaitFront(1)

		bufs.Interm.ReserveBack(1)
		mulTiles(c.DType, bufs.Interm.Back(0), bufs.B.Front(0), alpha)
		bufs.Interm.PushBack(1)

		bufs.Interm.WaitFront(1)
		bufs.Out.ReserveBack(1)
		subTiles(c.DType, bufs.Out.Back(0), bufs.A.Front(0), bufs.Interm.Front(0))
		bufs.Out.PushBack(1)

		bufs.A.PopFront(1)
		bufs.B.PopFront(1)
		bufs.Interm.PopFront(1)
	}
}

// computeHeldB runs one period of a broadcast B: B*alpha is formed once and
// subtracted from the A tiles in [start, end).
func computeHeldB(c *Core, alpha []float32, start, end uint32) {
	bufs := c.Buffers
	bufs.B.WaitFront(1)
	bufs.Interm.ReserveBack(1)
	mulTiles(c.DType, bufs.Interm.Back(0), bufs.B.Front(0), alpha)
	bufs.Interm.PushBack(1)
	bufs.Interm.WaitFront(1)

	for j := start; j < end; j++ {
		bufs.A.WaitFront(1)
		bufs.Out.ReserveBack(1)
		subTiles(c.DType, bufs.Out.Back(0), bufs.A.Front(0), bufs.Interm.Front(0))
		bufs.A.PopFront(1)
		bufs.Out.PushBack(1)
	}

	bufs.B.PopFront(1)
	bufs.Interm.PopFront(1)
}

// computeHeldA runs one period of a broadcast A: A is held while each B
// tile in [start, end) is scaled and subtracted from it.
func computeHeldA(c *Core, alpha []float32, start, end uint32) {
	bufs := c.Buffers
	bufs.A.WaitFront(1)

	for j := start; j < end; j++ {
		bufs.B.WaitFront(1)
		bufs.Interm.ReserveBack(1)
		mulTiles(c.DType, bufs.Interm.Back(0), bufs.B.Front(0), alpha)
		bufs.B.PopFront(1)
		bufs.Interm.PushBack(1)

		bufs.Interm.WaitFront(1)
		bufs.Out.ReserveBack(1)
		subTiles(c.DType, bufs.Out.Back(0), bufs.A.Front(0), bufs.Interm.Front(0))
		bufs.Out.PushBack(1)
		bufs.Interm.PopFront(1)
	}

	bufs.A.PopFront(1)
}
