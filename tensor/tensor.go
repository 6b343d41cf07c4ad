// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor description types used by the
// subalpha operation.
//
// A tensor is described by its logical shape, its element type, the tile
// it is stored in and its placement across device cores:
//   - Shape, DataType, TileShape: what the tensor holds
//   - MemoryConfig, ShardSpec: where its tiles live
//   - Descriptor: all of the above, without data
//
// Example:
//
//	desc := tensor.NewDescriptor(tensor.Shape{1, 3, 320, 384}, tensor.BFloat16)
//	desc = desc.WithMemory(tensor.MemoryConfig{
//	    Layout: tensor.HeightSharded,
//	    Shard:  &tensor.ShardSpec{Grid: grid, Shape: [2]uint32{32, 384}},
//	})
package tensor

import (
	"github.com/born-ml/subalpha/internal/tensor"
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 64, 96} is two batches of three 64x96 planes.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32  DataType = tensor.Float32
	Int32    DataType = tensor.Int32
	BFloat16 DataType = tensor.BFloat16
	Float16  DataType = tensor.Float16
)

// TileShape is the height and width of one storage tile.
type TileShape = tensor.TileShape

// DefaultTile is the 32x32 tile.
var DefaultTile = tensor.DefaultTile

// MemoryLayout is how a tensor's tiles are placed across cores.
type MemoryLayout = tensor.MemoryLayout

// Memory layout constants.
const (
	Interleaved   MemoryLayout = tensor.Interleaved
	HeightSharded MemoryLayout = tensor.HeightSharded
	WidthSharded  MemoryLayout = tensor.WidthSharded
	BlockSharded  MemoryLayout = tensor.BlockSharded
)

// ShardOrientation is the order shards are assigned to cores.
type ShardOrientation = tensor.ShardOrientation

// Shard orientation constants.
const (
	RowMajor ShardOrientation = tensor.RowMajor
	ColMajor ShardOrientation = tensor.ColMajor
)

// ShardSpec places one shard on every core of a grid.
type ShardSpec = tensor.ShardSpec

// MemoryConfig is a layout plus, when sharded, its shard spec.
type MemoryConfig = tensor.MemoryConfig

// InterleavedConfig is the default placement.
var InterleavedConfig = tensor.InterleavedConfig

// Descriptor describes a tensor without its data.
type Descriptor = tensor.Descriptor

// NewDescriptor returns an interleaved descriptor with the default tile.
func NewDescriptor(shape Shape, dtype DataType) Descriptor {
	return tensor.NewDescriptor(shape, dtype)
}

// BroadcastShapes returns the shape two tensors broadcast to.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return tensor.BroadcastShapes(a, b)
}

// ParseDataType maps a name such as "bfloat16" to its DataType.
func ParseDataType(name string) (DataType, bool) {
	return tensor.ParseDataType(name)
}
