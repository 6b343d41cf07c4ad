package tensor

import "fmt"

// Shape represents the logical dimensions of a tensor, outermost first.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Dim returns the dimension at i. Negative indices count from the innermost
// dimension (-1 is the last). Dimensions missing on the left read as 1, so a
// rank-2 shape answers Dim(-4) with 1.
func (s Shape) Dim(i int) int {
	if i < 0 {
		i += len(s)
	}
	if i < 0 || i >= len(s) {
		return 1
	}
	return s[i]
}

// Validate checks that the shape has at least two dimensions and that all
// of them are positive.
func (s Shape) Validate() error {
	if len(s) < 2 {
		return fmt.Errorf("shape %v: rank %d is below the minimum of 2", s, len(s))
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Padded rounds the two innermost dimensions up to whole tiles.
func (s Shape) Padded(tile TileShape) Shape {
	p := s.Clone()
	if n := len(p); n >= 2 {
		p[n-2] = roundUp(p[n-2], int(tile.Height))
		p[n-1] = roundUp(p[n-1], int(tile.Width))
	}
	return p
}

// BroadcastShapes returns the shape both operands broadcast to under
// NumPy rules: dimensions are compared right to left, equal sizes or a size
// of 1 are compatible and missing dimensions count as 1.
//
//	(5, 1, 64, 1) and (1, 3, 1, 128) -> (5, 3, 64, 128)
//	(3, 4) and (3, 5)                -> error
func BroadcastShapes(a, b Shape) (Shape, error) {
	rank := max(len(a), len(b))
	out := make(Shape, rank)
	for i := 1; i <= rank; i++ {
		aDim, bDim := a.Dim(-i), b.Dim(-i)
		switch {
		case aDim == bDim, bDim == 1:
			out[rank-i] = aDim
		case aDim == 1:
			out[rank-i] = bDim
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, rank-i, aDim, bDim)
		}
	}
	return out, nil
}

func roundUp(v, multiple int) int {
	if multiple <= 0 {
		return v
	}
	return (v + multiple - 1) / multiple * multiple
}
