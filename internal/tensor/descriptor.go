package tensor

import (
	"fmt"
)

// Descriptor is everything the planner needs to know about a tensor apart
// from its contents and address. It is read-only for the duration of one
// operation.
type Descriptor struct {
	Shape  Shape
	Tile   TileShape
	DType  DataType
	Memory MemoryConfig
}

// NewDescriptor returns an interleaved descriptor with the default tile.
func NewDescriptor(shape Shape, dtype DataType) Descriptor {
	return Descriptor{
		Shape:  shape.Clone(),
		Tile:   DefaultTile,
		DType:  dtype,
		Memory: InterleavedConfig,
	}
}

// WithMemory returns a copy of d placed according to m.
func (d Descriptor) WithMemory(m MemoryConfig) Descriptor {
	d.Memory = m
	return d
}

// PaddedShape returns the shape with the two innermost dimensions rounded
// up to whole tiles.
func (d Descriptor) PaddedShape() Shape {
	return d.Shape.Padded(d.Tile)
}

// Volume returns the number of elements in the padded shape.
func (d Descriptor) Volume() int {
	return d.PaddedShape().NumElements()
}

// NumTiles returns the number of tiles the padded tensor occupies.
func (d Descriptor) NumTiles() uint32 {
	return uint32(d.Volume()) / d.Tile.Elements()
}

// SizeBytes returns the storage size of the whole tensor.
func (d Descriptor) SizeBytes() uint32 {
	return d.NumTiles() * TileSizeBytes(d.DType, d.Tile)
}

// Validate checks the shape, the tile and that sharded placements carry a
// shard spec.
func (d Descriptor) Validate() error {
	if err := d.Shape.Validate(); err != nil {
		return err
	}
	if d.Tile.Height == 0 || d.Tile.Width == 0 {
		return fmt.Errorf("invalid tile %dx%d", d.Tile.Height, d.Tile.Width)
	}
	if d.Memory.Layout.IsSharded() {
		if d.Memory.Shard == nil {
			return fmt.Errorf("%s tensor has no shard spec", d.Memory.Layout)
		}
		if d.Memory.Shard.Grid.Empty() {
			return fmt.Errorf("shard spec has an empty core grid")
		}
		if d.Memory.Shard.Shape[0] == 0 || d.Memory.Shard.Shape[1] == 0 {
			return fmt.Errorf("shard spec has a zero dimension: %v", d.Memory.Shard.Shape)
		}
	}
	return nil
}

// String returns a compact description of the descriptor.
func (d Descriptor) String() string {
	return fmt.Sprintf("%v %s tile=%dx%d %s", d.Shape, d.DType, d.Tile.Height, d.Tile.Width, d.Memory)
}
