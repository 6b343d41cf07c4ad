// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/subalpha/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptorAPI(t *testing.T) {
	desc := tensor.NewDescriptor(tensor.Shape{2, 3, 40, 70}, tensor.BFloat16)
	assert.Equal(t, tensor.DefaultTile, desc.Tile)
	assert.Equal(t, tensor.Interleaved, desc.Memory.Layout)
	assert.Equal(t, tensor.Shape{2, 3, 64, 96}, desc.PaddedShape())
	assert.Equal(t, uint32(2*3*2*3), desc.NumTiles())
	require.NoError(t, desc.Validate())
}

func TestBroadcastShapes(t *testing.T) {
	out, err := tensor.BroadcastShapes(tensor.Shape{5, 1, 64, 1}, tensor.Shape{1, 3, 1, 128})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3, 64, 128}, out)

	_, err = tensor.BroadcastShapes(tensor.Shape{1, 1, 31, 32}, tensor.Shape{5, 3, 32, 32})
	assert.Error(t, err)
}

func TestParseDataType(t *testing.T) {
	dt, ok := tensor.ParseDataType("float16")
	require.True(t, ok)
	assert.Equal(t, tensor.Float16, dt)

	_, ok = tensor.ParseDataType("float64")
	assert.False(t, ok)
}
