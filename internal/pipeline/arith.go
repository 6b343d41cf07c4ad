package pipeline

import (
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/born-ml/subalpha/internal/variant"
)

func mulTiles(dt tensor.DataType, dst, x, y []float32) {
	for i := range dst {
		dst[i] = dt.Mul(x[i], y[i])
	}
}

func subTiles(dt tensor.DataType, dst, x, y []float32) {
	for i := range dst {
		dst[i] = dt.Sub(x[i], y[i])
	}
}

// fillTile replicates the first row, first column or first element of t
// across the tile.
func fillTile(f variant.Fill, t []float32, tile tensor.TileShape) {
	h, w := int(tile.Height), int(tile.Width)
	switch f {
	case variant.FillRow:
		for r := 1; r < h; r++ {
			copy(t[r*w:(r+1)*w], t[:w])
		}
	case variant.FillCol:
		for r := 0; r < h; r++ {
			row := t[r*w : (r+1)*w]
			for c := 1; c < w; c++ {
				row[c] = row[0]
			}
		}
	case variant.FillScalar:
		for i := 1; i < len(t); i++ {
			t[i] = t[0]
		}
	}
}
