// Package broadcast classifies how the two operands of a binary tile
// operation are replicated across the output, and derives the period over
// which one fetched broadcast tile stays valid.
package broadcast

import (
	"fmt"

	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Type is the broadcast classification of an (A, B) operand pair.
type Type int

// Broadcast classifications. Row means the operand has a single row and is
// replicated down the columns of each tile row; Col means a single column;
// Scalar means a single element per plane.
const (
	None Type = iota
	RowA
	RowB
	ColA
	ColB
	ScalarA
	ScalarB
	RowAColB
	RowBColA
)

// String returns the classification name.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case RowA:
		return "row_a"
	case RowB:
		return "row_b"
	case ColA:
		return "col_a"
	case ColB:
		return "col_b"
	case ScalarA:
		return "scalar_a"
	case ScalarB:
		return "scalar_b"
	case RowAColB:
		return "row_a_col_b"
	case RowBColA:
		return "row_b_col_a"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Side names the operand whose fetched tile is reused across a period.
type Side int

// Broadcast sides.
const (
	SideNone Side = iota
	SideA
	SideB
)

// String returns "none", "a" or "b".
func (s Side) String() string {
	switch s {
	case SideA:
		return "a"
	case SideB:
		return "b"
	default:
		return "none"
	}
}

// Classify compares the two innermost logical dimensions of a and b.
func Classify(a, b tensor.Shape) (Type, error) {
	aH, aW := a.Dim(-2), a.Dim(-1)
	bH, bW := b.Dim(-2), b.Dim(-1)

	switch {
	case aH == bH && aW == bW:
		return None, nil
	case aH == 1 && aW == 1:
		return ScalarA, nil
	case bH == 1 && bW == 1:
		return ScalarB, nil
	case aH == 1 && bW == 1:
		return RowAColB, nil
	case aW == 1 && bH == 1:
		return RowBColA, nil
	case aH == 1 && aW == bW:
		return RowA, nil
	case aW == 1 && aH == bH:
		return ColA, nil
	case bH == 1 && aW == bW:
		return RowB, nil
	case bW == 1 && aH == bH:
		return ColB, nil
	default:
		return None, fmt.Errorf("no subtile broadcast for shapes %v and %v", a, b)
	}
}

// FrequencyOffset returns, for an output range starting at startTile of a
// tensor with Ht x Wt tile planes, how many consecutive output tiles share
// one broadcast tile and where inside that period the range starts.
func FrequencyOffset(t Type, startTile, ht, wt uint32) (freq, offset uint32) {
	startT := startTile % (ht * wt)
	startTw := startT % wt

	switch t {
	case None, RowA, RowB:
		return 1, 0
	case ScalarA, ScalarB:
		return ht * wt, startT
	case ColA, ColB, RowAColB, RowBColA:
		return wt, startTw
	default:
		exceptions.Panicf("broadcast: unknown classification %d", int(t))
		return 0, 0
	}
}

// Periods returns the number of broadcast periods a range of n tiles starting
// at offset within a period of freq spans: full periods plus a trailing
// partial one.
func Periods(n, freq, offset uint32) uint32 {
	if n == 0 || freq == 0 {
		return 0
	}
	p := (n + offset) / freq
	if (n+offset)%freq != 0 {
		p++
	}
	return p
}
