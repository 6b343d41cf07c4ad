package tensor

import (
	"fmt"

	"github.com/born-ml/subalpha/internal/grid"
)

// TileShape is the height and width, in elements, of one tile.
type TileShape struct {
	Height uint32
	Width  uint32
}

// DefaultTile is the 32x32 tile every tensor uses unless told otherwise.
var DefaultTile = TileShape{Height: 32, Width: 32}

// Elements returns the number of elements in one tile.
func (t TileShape) Elements() uint32 {
	return t.Height * t.Width
}

// TileSizeBytes returns the storage size of one tile of the given type.
func TileSizeBytes(dt DataType, tile TileShape) uint32 {
	return tile.Elements() * uint32(dt.Size())
}

// MemoryLayout describes how a tensor's tiles are placed across cores.
type MemoryLayout int

// Memory layouts.
const (
	// Interleaved spreads tiles round-robin over storage with no per-core
	// ownership.
	Interleaved MemoryLayout = iota
	// HeightSharded gives each core a band of full-width rows.
	HeightSharded
	// WidthSharded gives each core a band of full-height columns.
	WidthSharded
	// BlockSharded gives each core a rectangular block.
	BlockSharded
)

// String returns the layout name.
func (l MemoryLayout) String() string {
	switch l {
	case Interleaved:
		return "interleaved"
	case HeightSharded:
		return "height_sharded"
	case WidthSharded:
		return "width_sharded"
	case BlockSharded:
		return "block_sharded"
	default:
		return "unknown"
	}
}

// IsSharded reports whether the layout pins tiles to cores.
func (l MemoryLayout) IsSharded() bool {
	return l != Interleaved
}

// ParseMemoryLayout maps a name produced by String back to the layout.
func ParseMemoryLayout(name string) (MemoryLayout, bool) {
	for _, l := range []MemoryLayout{Interleaved, HeightSharded, WidthSharded, BlockSharded} {
		if l.String() == name {
			return l, true
		}
	}
	return 0, false
}

// ShardOrientation is the order in which shards are assigned to the cores
// of a shard grid.
type ShardOrientation int

// Shard orientations.
const (
	RowMajor ShardOrientation = iota
	ColMajor
)

// String returns the orientation name.
func (o ShardOrientation) String() string {
	if o == ColMajor {
		return "col_major"
	}
	return "row_major"
}

// ShardSpec places one shard of Shape elements (height, width) on every
// core of Grid.
type ShardSpec struct {
	Grid        grid.CoreRangeSet
	Shape       [2]uint32
	Orientation ShardOrientation
}

// NumElements returns the element count of one nominal shard.
func (s ShardSpec) NumElements() uint32 {
	return s.Shape[0] * s.Shape[1]
}

// Equal reports whether both specs describe the same placement.
func (s ShardSpec) Equal(o ShardSpec) bool {
	return s.Shape == o.Shape && s.Orientation == o.Orientation && s.Grid.Equal(o.Grid)
}

// String returns a compact description of the spec.
func (s ShardSpec) String() string {
	return fmt.Sprintf("shard{grid=%s shape=%dx%d %s}", s.Grid, s.Shape[0], s.Shape[1], s.Orientation)
}

// MemoryConfig is a tensor's placement: a layout and, when sharded, the
// shard spec.
type MemoryConfig struct {
	Layout MemoryLayout
	Shard  *ShardSpec
}

// InterleavedConfig is the default placement.
var InterleavedConfig = MemoryConfig{Layout: Interleaved}

// IsSharded reports whether the config carries a shard spec.
func (m MemoryConfig) IsSharded() bool {
	return m.Layout.IsSharded() && m.Shard != nil
}

// String returns the layout and, when present, the shard spec.
func (m MemoryConfig) String() string {
	if m.Shard == nil {
		return m.Layout.String()
	}
	return m.Layout.String() + " " + m.Shard.String()
}
