// Package tensor provides the tensor descriptors used to plan and run the
// fused subtract-alpha operation: element types, shapes, tiles and memory
// placement.
package tensor

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/x448/float16"
)

// DataType represents the element type a tensor is stored in on device.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	BFloat16
	Float16
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case BFloat16, Float16:
		return 2
	default:
		exceptions.Panicf("unknown data type %d", int(dt))
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// IsNarrow reports whether two elements of dt fit in one 32-bit word.
func (dt DataType) IsNarrow() bool {
	return dt == BFloat16 || dt == Float16
}

// ParseDataType maps a name produced by String back to the DataType.
func ParseDataType(name string) (DataType, bool) {
	for _, dt := range []DataType{Float32, Int32, BFloat16, Float16} {
		if dt.String() == name {
			return dt, true
		}
	}
	return 0, false
}

// ToInt32 truncates v toward zero, saturating at the int32 range. NaN
// converts to 0.
func ToInt32(v float32) int32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// Round converts v to the closest value the storage type can hold,
// returned widened back to float32. Int32 truncates toward zero.
func (dt DataType) Round(v float32) float32 {
	switch dt {
	case Float32:
		return v
	case Int32:
		return float32(ToInt32(v))
	case BFloat16:
		return bfloat16.FromFloat32(v).Float32()
	case Float16:
		return float16.Fromfloat32(v).Float32()
	default:
		exceptions.Panicf("unknown data type %d", int(dt))
		return 0
	}
}

// Encode returns the tile element holding host value v. Int32 elements
// carry the two's complement bits of the truncated integer; the other
// types carry the rounded value.
func (dt DataType) Encode(v float32) float32 {
	if dt == Int32 {
		return fromInt32(ToInt32(v))
	}
	return dt.Round(v)
}

// Decode returns the host value of tile element x.
func (dt DataType) Decode(x float32) float32 {
	if dt == Int32 {
		return float32(asInt32(x))
	}
	return x
}

// Mul returns x*y for two tile elements, computed the way a tile of type
// dt computes it: Int32 wraps, the 16-bit types round the float32 product
// back to storage.
func (dt DataType) Mul(x, y float32) float32 {
	switch dt {
	case Float32:
		return float32(x * y)
	case Int32:
		return fromInt32(asInt32(x) * asInt32(y))
	default:
		return dt.Round(x * y)
	}
}

// Sub returns x-y for two tile elements.
func (dt DataType) Sub(x, y float32) float32 {
	switch dt {
	case Float32:
		return float32(x - y)
	case Int32:
		return fromInt32(asInt32(x) - asInt32(y))
	default:
		return dt.Round(x - y)
	}
}

func asInt32(x float32) int32 {
	return int32(math.Float32bits(x))
}

func fromInt32(v int32) float32 {
	return math.Float32frombits(uint32(v))
}
