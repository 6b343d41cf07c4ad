package tensor

import (
	"math"
	"testing"

	"github.com/born-ml/subalpha/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dtype DataType
		size  int
	}{
		{Float32, 4},
		{Int32, 4},
		{BFloat16, 2},
		{Float16, 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.dtype.Size(), "%s.Size()", tt.dtype)
		parsed, ok := ParseDataType(tt.dtype.String())
		require.True(t, ok)
		assert.Equal(t, tt.dtype, parsed)
	}
}

func TestDataTypeRound(t *testing.T) {
	assert.Equal(t, float32(1.1), Float32.Round(1.1))
	assert.Equal(t, float32(-3), Int32.Round(-3.7))
	assert.Equal(t, float32(1.5), BFloat16.Round(1.5))
	assert.NotEqual(t, float32(1.1), BFloat16.Round(1.1))
	assert.InDelta(t, 1.1, BFloat16.Round(1.1), 1.0/128)
	assert.Equal(t, float32(1.0996094), Float16.Round(1.1))
}

func TestDataTypeArithmetic(t *testing.T) {
	enc := Int32.Encode
	assert.Equal(t, float32(-6), Int32.Decode(Int32.Mul(enc(-2), enc(3))))
	assert.Equal(t, float32(math.MinInt32), Int32.Decode(Int32.Mul(enc(65536), enc(32768))), "int32 product wraps")
	assert.Equal(t, float32(1), Int32.Decode(Int32.Sub(enc(3), enc(2))))

	assert.Equal(t, float32(0.75), Float32.Mul(1.5, 0.5))
	assert.Equal(t, float32(1), Float32.Sub(1.5, 0.5))

	// 1 + 2^-10 is not representable in bfloat16.
	assert.Equal(t, float32(1), BFloat16.Sub(1+1.0/1024, 0))
	assert.Equal(t, BFloat16.Round(1.1*3), BFloat16.Mul(1.1, 3))
}

func TestInt32IntermediatesExact(t *testing.T) {
	// 4097*4097 needs 25 bits; the difference fits a float32 exactly.
	enc := Int32.Encode
	got := Int32.Sub(enc(3), Int32.Mul(enc(4097), enc(4097)))
	assert.Equal(t, float32(-16785406), Int32.Decode(got))
}

func TestEncodeDecode(t *testing.T) {
	for _, dt := range []DataType{Float32, Int32, BFloat16, Float16} {
		for _, v := range []float32{0, 1, -2, 7.5, 1.1} {
			assert.Equal(t, dt.Round(v), dt.Decode(dt.Encode(v)), "%s %v", dt, v)
		}
	}
	assert.Equal(t, math.Float32frombits(0xFFFFFFFD), Int32.Encode(-3.7), "two's complement bits")
	assert.Equal(t, float32(0), Int32.Encode(0), "zero padding is integer zero")
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		in   float32
		want int32
	}{
		{-3.7, -3},
		{3.7, 3},
		{float32(math.NaN()), 0},
		{3e9, math.MaxInt32},
		{-3e9, math.MinInt32},
		{float32(math.Inf(1)), math.MaxInt32},
		{-2147483648, math.MinInt32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToInt32(tt.in), "%v", tt.in)
	}
}

func TestShapeDim(t *testing.T) {
	s := Shape{2, 3, 64, 96}

	assert.Equal(t, 96, s.Dim(-1))
	assert.Equal(t, 2, s.Dim(-4))
	assert.Equal(t, 1, s.Dim(-5), "missing dims read as 1")
	assert.Equal(t, 3, s.Dim(1))
}

func TestShapePadded(t *testing.T) {
	s := Shape{5, 1, 64, 1}
	assert.Equal(t, Shape{5, 1, 64, 32}, s.Padded(DefaultTile))
	assert.Equal(t, Shape{5, 1, 64, 1}, s, "Padded must not modify the receiver")
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b Shape
		want Shape
		ok   bool
	}{
		{Shape{5, 1, 64, 1}, Shape{1, 3, 1, 128}, Shape{5, 3, 64, 128}, true},
		{Shape{1, 1, 1, 1}, Shape{5, 3, 32, 32}, Shape{5, 3, 32, 32}, true},
		{Shape{32, 32}, Shape{2, 3, 32, 32}, Shape{2, 3, 32, 32}, true},
		{Shape{3, 4}, Shape{3, 5}, nil, false},
	}

	for _, tt := range tests {
		got, err := BroadcastShapes(tt.a, tt.b)
		if !tt.ok {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDescriptorTiles(t *testing.T) {
	d := NewDescriptor(Shape{1, 3, 320, 384}, BFloat16)

	assert.Equal(t, uint32(3*10*12), d.NumTiles())
	assert.Equal(t, uint32(2048), TileSizeBytes(BFloat16, DefaultTile))
	assert.Equal(t, d.NumTiles()*2048, d.SizeBytes())
	require.NoError(t, d.Validate())
}

func TestDescriptorValidate(t *testing.T) {
	d := NewDescriptor(Shape{64}, Float32)
	assert.Error(t, d.Validate(), "rank 1 is rejected")

	d = NewDescriptor(Shape{64, 64}, Float32).WithMemory(MemoryConfig{Layout: HeightSharded})
	assert.Error(t, d.Validate(), "sharded without spec")

	spec := &ShardSpec{Grid: grid.Rect(2, 1), Shape: [2]uint32{32, 64}}
	d = d.WithMemory(MemoryConfig{Layout: HeightSharded, Shard: spec})
	assert.NoError(t, d.Validate())
	assert.True(t, d.Memory.IsSharded())
}
