// Package variant maps a broadcast classification to the reader, writer and
// compute stage variants bound to every core for one operation.
package variant

import (
	"fmt"
	"path"

	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/gomlx/exceptions"
)

// KernelName identifies one stage variant.
type KernelName int

// Stage variants.
const (
	ReaderNoBcast KernelName = iota
	ReaderRowBcast
	ReaderColBcast
	ReaderScalarBcast
	WriterNoBcast
	WriterRowBcast
	WriterColBcast
	WriterScalarBcast
	ComputeNoBcast
	ComputeBcast
)

const kernelRoot = "subalpha/kernels"

// String returns the variant's file stem.
func (k KernelName) String() string {
	switch k {
	case ReaderNoBcast:
		return "reader_interleaved_no_bcast"
	case ReaderRowBcast:
		return "reader_interleaved_row_bcast"
	case ReaderColBcast:
		return "reader_interleaved_col_bcast"
	case ReaderScalarBcast:
		return "reader_interleaved_scalar_bcast"
	case WriterNoBcast:
		return "writer_interleaved_no_bcast"
	case WriterRowBcast:
		return "writer_interleaved_row_bcast"
	case WriterColBcast:
		return "writer_interleaved_col_bcast"
	case WriterScalarBcast:
		return "writer_interleaved_scalar_bcast"
	case ComputeNoBcast:
		return "eltwise_subalpha_no_bcast"
	case ComputeBcast:
		return "eltwise_subalpha"
	default:
		return fmt.Sprintf("KernelName(%d)", int(k))
	}
}

// IsReader reports whether k is a reader variant.
func (k KernelName) IsReader() bool { return k >= ReaderNoBcast && k <= ReaderScalarBcast }

// IsWriter reports whether k is a writer variant.
func (k KernelName) IsWriter() bool { return k >= WriterNoBcast && k <= WriterScalarBcast }

// IsCompute reports whether k is a compute variant.
func (k KernelName) IsCompute() bool { return k == ComputeNoBcast || k == ComputeBcast }

// Path returns the kernel source location for k.
func (k KernelName) Path() string {
	switch {
	case k.IsCompute():
		return path.Join(kernelRoot, "compute", k.String()+".cpp")
	case k.IsReader(), k.IsWriter():
		return path.Join(kernelRoot, "dataflow", k.String()+".cpp")
	default:
		exceptions.Panicf("variant: unknown kernel %d", int(k))
		return ""
	}
}

// Fill is how a dataflow stage expands a fetched tile before publishing it.
type Fill int

// Tile fills.
const (
	FillNone Fill = iota
	FillRow
	FillCol
	FillScalar
)

// Fill returns the tile fill a dataflow variant applies.
func (k KernelName) Fill() Fill {
	switch k {
	case ReaderRowBcast, WriterRowBcast:
		return FillRow
	case ReaderColBcast, WriterColBcast:
		return FillCol
	case ReaderScalarBcast, WriterScalarBcast:
		return FillScalar
	default:
		return FillNone
	}
}

// KernelConfig is the set of variants instantiated for one operation.
type KernelConfig struct {
	Reader  KernelName
	Writer  KernelName
	Compute KernelName
	// Side is the operand held across a broadcast period by ComputeBcast.
	Side broadcast.Side
}

// Select returns the variants for broadcast type t. An unknown type is a
// programming error and panics.
func Select(t broadcast.Type) KernelConfig {
	switch t {
	case broadcast.None:
		return KernelConfig{ReaderNoBcast, WriterNoBcast, ComputeNoBcast, broadcast.SideNone}
	case broadcast.ScalarA:
		return KernelConfig{ReaderScalarBcast, WriterNoBcast, ComputeBcast, broadcast.SideA}
	case broadcast.ScalarB:
		return KernelConfig{ReaderNoBcast, WriterScalarBcast, ComputeBcast, broadcast.SideB}
	case broadcast.RowA:
		return KernelConfig{ReaderRowBcast, WriterNoBcast, ComputeNoBcast, broadcast.SideNone}
	case broadcast.RowB:
		return KernelConfig{ReaderNoBcast, WriterRowBcast, ComputeNoBcast, broadcast.SideNone}
	case broadcast.ColA:
		return KernelConfig{ReaderColBcast, WriterNoBcast, ComputeBcast, broadcast.SideA}
	case broadcast.ColB:
		return KernelConfig{ReaderNoBcast, WriterColBcast, ComputeBcast, broadcast.SideB}
	case broadcast.RowAColB:
		return KernelConfig{ReaderRowBcast, WriterColBcast, ComputeBcast, broadcast.SideB}
	case broadcast.RowBColA:
		return KernelConfig{ReaderColBcast, WriterRowBcast, ComputeBcast, broadcast.SideA}
	default:
		exceptions.Panicf("variant: unknown broadcast type %d", int(t))
		return KernelConfig{}
	}
}

// String lists the three variants and the held side.
func (c KernelConfig) String() string {
	return fmt.Sprintf("reader=%s writer=%s compute=%s side=%s", c.Reader, c.Writer, c.Compute, c.Side)
}
