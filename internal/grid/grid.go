// Package grid describes the two-dimensional grid of compute cores a device
// exposes and the traversal orders used to hand work out to them.
package grid

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrOverlappingRanges is returned when a CoreRangeSet is built from ranges
// that share at least one core.
var ErrOverlappingRanges = errors.New("core ranges overlap")

// CoreCoord is the (x, y) position of a core on the device grid.
type CoreCoord struct {
	X uint32
	Y uint32
}

// String returns the coordinate as "(x,y)".
func (c CoreCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// CoreRange is an inclusive rectangle of cores.
type CoreRange struct {
	Start CoreCoord
	End   CoreCoord
}

// NewCoreRange returns the rectangle spanning start..end (inclusive).
// Corners are normalised so that Start is the top-left core.
func NewCoreRange(start, end CoreCoord) CoreRange {
	return CoreRange{
		Start: CoreCoord{X: min(start.X, end.X), Y: min(start.Y, end.Y)},
		End:   CoreCoord{X: max(start.X, end.X), Y: max(start.Y, end.Y)},
	}
}

// Width returns the number of columns in the range.
func (r CoreRange) Width() uint32 { return r.End.X - r.Start.X + 1 }

// Height returns the number of rows in the range.
func (r CoreRange) Height() uint32 { return r.End.Y - r.Start.Y + 1 }

// NumCores returns the number of cores covered by the range.
func (r CoreRange) NumCores() uint32 { return r.Width() * r.Height() }

// Contains reports whether c lies inside the range.
func (r CoreRange) Contains(c CoreCoord) bool {
	return c.X >= r.Start.X && c.X <= r.End.X && c.Y >= r.Start.Y && c.Y <= r.End.Y
}

func (r CoreRange) intersects(o CoreRange) bool {
	return r.Start.X <= o.End.X && o.Start.X <= r.End.X && r.Start.Y <= o.End.Y && o.Start.Y <= r.End.Y
}

// Cores enumerates the cores of the range. Row-major walks x fastest,
// column-major walks y fastest.
func (r CoreRange) Cores(rowMajor bool) []CoreCoord {
	cores := make([]CoreCoord, 0, r.NumCores())
	if rowMajor {
		for y := r.Start.Y; y <= r.End.Y; y++ {
			for x := r.Start.X; x <= r.End.X; x++ {
				cores = append(cores, CoreCoord{X: x, Y: y})
			}
		}
		return cores
	}
	for x := r.Start.X; x <= r.End.X; x++ {
		for y := r.Start.Y; y <= r.End.Y; y++ {
			cores = append(cores, CoreCoord{X: x, Y: y})
		}
	}
	return cores
}

// String returns the range as "[(x0,y0)-(x1,y1)]".
func (r CoreRange) String() string {
	return fmt.Sprintf("[%s-%s]", r.Start, r.End)
}

// CoreRangeSet is an ordered set of disjoint core ranges. Ranges are kept
// sorted by their start coordinate (y, then x), so the End of the last range
// is the last core in traversal order.
type CoreRangeSet struct {
	ranges []CoreRange
}

// NewCoreRangeSet builds a set from disjoint ranges.
func NewCoreRangeSet(ranges ...CoreRange) (CoreRangeSet, error) {
	sorted := make([]CoreRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Y != sorted[j].Start.Y {
			return sorted[i].Start.Y < sorted[j].Start.Y
		}
		return sorted[i].Start.X < sorted[j].Start.X
	})
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].intersects(sorted[j]) {
				return CoreRangeSet{}, errors.Wrapf(ErrOverlappingRanges, "%s and %s", sorted[i], sorted[j])
			}
		}
	}
	return CoreRangeSet{ranges: sorted}, nil
}

// MustCoreRangeSet is NewCoreRangeSet that panics on error.
func MustCoreRangeSet(ranges ...CoreRange) CoreRangeSet {
	set, err := NewCoreRangeSet(ranges...)
	if err != nil {
		panic(err)
	}
	return set
}

// Rect returns a set holding the single x*y rectangle anchored at (0,0).
func Rect(x, y uint32) CoreRangeSet {
	if x == 0 || y == 0 {
		return CoreRangeSet{}
	}
	return CoreRangeSet{ranges: []CoreRange{{End: CoreCoord{X: x - 1, Y: y - 1}}}}
}

// Ranges returns the ranges of the set in order.
func (s CoreRangeSet) Ranges() []CoreRange {
	return s.ranges
}

// Empty reports whether the set has no cores.
func (s CoreRangeSet) Empty() bool {
	return len(s.ranges) == 0
}

// NumCores returns the total number of cores in the set.
func (s CoreRangeSet) NumCores() uint32 {
	var n uint32
	for _, r := range s.ranges {
		n += r.NumCores()
	}
	return n
}

// Contains reports whether c belongs to any range of the set.
func (s CoreRangeSet) Contains(c CoreCoord) bool {
	for _, r := range s.ranges {
		if r.Contains(c) {
			return true
		}
	}
	return false
}

// BoundingBox returns the smallest range covering every core of the set.
func (s CoreRangeSet) BoundingBox() CoreRange {
	if len(s.ranges) == 0 {
		return CoreRange{}
	}
	box := s.ranges[0]
	for _, r := range s.ranges[1:] {
		box.Start.X = min(box.Start.X, r.Start.X)
		box.Start.Y = min(box.Start.Y, r.Start.Y)
		box.End.X = max(box.End.X, r.End.X)
		box.End.Y = max(box.End.Y, r.End.Y)
	}
	return box
}

// Last returns the traversal-order last core: the End of the last range.
func (s CoreRangeSet) Last() CoreCoord {
	if len(s.ranges) == 0 {
		return CoreCoord{}
	}
	return s.ranges[len(s.ranges)-1].End
}

// Cores enumerates every core range by range, each in the given order.
func (s CoreRangeSet) Cores(rowMajor bool) []CoreCoord {
	cores := make([]CoreCoord, 0, s.NumCores())
	for _, r := range s.ranges {
		cores = append(cores, r.Cores(rowMajor)...)
	}
	return cores
}

// Equal reports whether both sets hold the same ranges.
func (s CoreRangeSet) Equal(o CoreRangeSet) bool {
	if len(s.ranges) != len(o.ranges) {
		return false
	}
	for i := range s.ranges {
		if s.ranges[i] != o.ranges[i] {
			return false
		}
	}
	return true
}

// String returns the ranges joined by commas.
func (s CoreRangeSet) String() string {
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
