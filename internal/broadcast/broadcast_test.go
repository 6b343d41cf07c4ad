package broadcast

import (
	"testing"

	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		a, b tensor.Shape
		want Type
	}{
		{tensor.Shape{1, 3, 320, 384}, tensor.Shape{1, 3, 320, 384}, None},
		{tensor.Shape{5, 3, 32, 32}, tensor.Shape{1, 1, 32, 32}, None},
		{tensor.Shape{1, 1, 1, 1}, tensor.Shape{5, 3, 32, 32}, ScalarA},
		{tensor.Shape{5, 3, 32, 32}, tensor.Shape{1, 1, 1, 1}, ScalarB},
		{tensor.Shape{5, 1, 1, 64}, tensor.Shape{1, 3, 128, 1}, RowAColB},
		{tensor.Shape{5, 1, 64, 1}, tensor.Shape{1, 3, 1, 128}, RowBColA},
		{tensor.Shape{2, 3, 1, 4}, tensor.Shape{2, 3, 5, 4}, RowA},
		{tensor.Shape{2, 3, 5, 4}, tensor.Shape{2, 3, 1, 4}, RowB},
		{tensor.Shape{2, 3, 5, 1}, tensor.Shape{2, 3, 5, 4}, ColA},
		{tensor.Shape{2, 3, 5, 4}, tensor.Shape{2, 3, 5, 1}, ColB},
	}

	for _, tt := range tests {
		got, err := Classify(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v vs %v", tt.a, tt.b)
	}

	_, err := Classify(tensor.Shape{3, 4}, tensor.Shape{3, 5})
	assert.Error(t, err)
}

func TestFrequencyOffset(t *testing.T) {
	// Ht=4, Wt=3: 12 tiles per plane, core starting at tile 5.
	freq, off := FrequencyOffset(ScalarB, 5, 4, 3)
	assert.Equal(t, uint32(12), freq)
	assert.Equal(t, uint32(5), off)

	freq, off = FrequencyOffset(ColB, 5, 4, 3)
	assert.Equal(t, uint32(3), freq)
	assert.Equal(t, uint32(2), off)

	freq, off = FrequencyOffset(RowA, 5, 4, 3)
	assert.Equal(t, uint32(1), freq)
	assert.Equal(t, uint32(0), off)

	// Offsets are taken within the plane.
	freq, off = FrequencyOffset(ScalarA, 12+7, 4, 3)
	assert.Equal(t, uint32(12), freq)
	assert.Equal(t, uint32(7), off)

	freq, off = FrequencyOffset(RowBColA, 12+7, 4, 3)
	assert.Equal(t, uint32(3), freq)
	assert.Equal(t, uint32(1), off)
}

func TestFrequencyOffsetUnknownPanics(t *testing.T) {
	assert.Panics(t, func() { FrequencyOffset(Type(42), 0, 1, 1) })
}

func TestPeriods(t *testing.T) {
	assert.Equal(t, uint32(0), Periods(0, 3, 0))
	assert.Equal(t, uint32(1), Periods(1, 3, 2))
	assert.Equal(t, uint32(2), Periods(2, 3, 2))
	assert.Equal(t, uint32(3), Periods(7, 3, 0))
	assert.Equal(t, uint32(5), Periods(5, 1, 0))
}
