package args

import (
	"math"

	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/x448/float16"
)

// PackScalar encodes alpha into the single 32-bit word the reader receives.
// Float32 keeps its IEEE bits. Int32 holds alpha truncated toward zero and
// saturated to the int32 range, with NaN packed as 0. The 16-bit types hold
// two copies of the converted value, one per half-word.
func PackScalar(alpha float32, dt tensor.DataType) uint32 {
	switch dt {
	case tensor.Float32:
		return math.Float32bits(alpha)
	case tensor.Int32:
		return uint32(tensor.ToInt32(alpha))
	case tensor.BFloat16:
		h := uint32(bfloat16.FromFloat32(alpha))
		return h | h<<16
	case tensor.Float16:
		h := uint32(float16.Fromfloat32(alpha).Bits())
		return h | h<<16
	default:
		exceptions.Panicf("args: cannot pack scalar of type %s", dt)
		return 0
	}
}

// UnpackScalar decodes a word produced by PackScalar. For the 16-bit types
// the low half-word is read.
func UnpackScalar(bits uint32, dt tensor.DataType) float32 {
	switch dt {
	case tensor.Float32:
		return math.Float32frombits(bits)
	case tensor.Int32:
		return float32(int32(bits))
	case tensor.BFloat16:
		return bfloat16.BFloat16(uint16(bits)).Float32()
	case tensor.Float16:
		return float16.Frombits(uint16(bits)).Float32()
	default:
		exceptions.Panicf("args: cannot unpack scalar of type %s", dt)
		return 0
	}
}

// ScalarElement returns the tile element the reader fills the alpha tile
// with: the decoded scalar in the storage encoding of dt.
func ScalarElement(bits uint32, dt tensor.DataType) float32 {
	if dt == tensor.Int32 {
		return math.Float32frombits(bits)
	}
	return UnpackScalar(bits, dt)
}
