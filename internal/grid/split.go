package grid

import (
	"github.com/samber/lo"
)

// WorkSplit is the result of dividing a number of work units over the cores
// of a grid. The first len(Group1) cores in traversal order each take
// PerCore1 units; the next len(Group2) take PerCore2 units. PerCore1 is the
// ceiling share and PerCore2 the floor share, so that
// len(Group1)*PerCore1 + len(Group2)*PerCore2 equals the units divided.
type WorkSplit struct {
	NumCores uint32
	Group1   []CoreCoord
	Group2   []CoreCoord
	PerCore1 uint32
	PerCore2 uint32

	units map[CoreCoord]uint32
}

// UnitsFor returns the units assigned to c and whether c has any work.
func (w WorkSplit) UnitsFor(c CoreCoord) (uint32, bool) {
	n, ok := w.units[c]
	return n, ok
}

// SplitWorkToCores divides units as evenly as possible over the cores of
// set, taken in the given traversal order. At most min(units, cores) cores
// receive work.
func SplitWorkToCores(set CoreRangeSet, units uint32, rowMajor bool) WorkSplit {
	cores := set.Cores(rowMajor)
	numCores := min(units, uint32(len(cores)))
	split := WorkSplit{NumCores: numCores, units: make(map[CoreCoord]uint32, numCores)}
	if numCores == 0 {
		return split
	}

	floor := units / numCores
	extra := units % numCores
	if extra == 0 {
		split.Group1 = cores[:numCores]
		split.PerCore1 = floor
	} else {
		split.Group1 = cores[:extra]
		split.Group2 = cores[extra:numCores]
		split.PerCore1 = floor + 1
		split.PerCore2 = floor
	}

	for _, c := range split.Group1 {
		split.units[c] = split.PerCore1
	}
	for _, c := range split.Group2 {
		split.units[c] = split.PerCore2
	}
	return split
}

// GridToCoresWithNoop lists the cores of active first, then every remaining
// core of all that is not in active. The tail receives no-op work.
func GridToCoresWithNoop(active, all CoreRangeSet, rowMajor bool) []CoreCoord {
	cores := active.Cores(rowMajor)
	rest := lo.Filter(all.Cores(rowMajor), func(c CoreCoord, _ int) bool {
		return !active.Contains(c)
	})
	return append(cores, rest...)
}
