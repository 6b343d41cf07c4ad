package device

import (
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
)

// FromHost allocates a tensor described by desc and fills it from data, a
// row-major array of the logical shape. Values are encoded in the storage
// type; tile padding is zero.
func (d *Device) FromHost(desc tensor.Descriptor, data []float32) (*Tensor, error) {
	if len(data) != desc.Shape.NumElements() {
		return nil, errors.Wrapf(ErrHostData, "%d values for shape %v", len(data), desc.Shape)
	}
	t, err := d.Allocate(desc)
	if err != nil {
		return nil, err
	}
	buf, err := d.Lookup(t.Addr)
	if err != nil {
		return nil, err
	}

	l := newTileLayout(desc)
	dt := desc.DType
	parallel.ForRows(l.outer, l.h, func(o, r int) {
		src := data[(o*l.h+r)*l.w:]
		for c := 0; c < l.w; c++ {
			tile, off := l.locate(o, r, c)
			buf.tiles[tile][off] = dt.Encode(src[c])
		}
	}, d.cfg.Parallel)
	return t, nil
}

// ToHost copies t back into a row-major array of its logical shape.
func (d *Device) ToHost(t *Tensor) ([]float32, error) {
	buf, err := d.Lookup(t.Addr)
	if err != nil {
		return nil, err
	}

	l := newTileLayout(t.Desc)
	dt := t.Desc.DType
	out := make([]float32, t.Desc.Shape.NumElements())
	parallel.ForRows(l.outer, l.h, func(o, r int) {
		dst := out[(o*l.h+r)*l.w:]
		for c := 0; c < l.w; c++ {
			tile, off := l.locate(o, r, c)
			dst[c] = dt.Decode(buf.tiles[tile][off])
		}
	}, d.cfg.Parallel)
	return out, nil
}

// tileLayout maps logical (outer, row, col) positions to tiles.
type tileLayout struct {
	outer  int
	h, w   int
	ht, wt int
	tile   tensor.TileShape
}

func newTileLayout(desc tensor.Descriptor) tileLayout {
	padded := desc.PaddedShape()
	l := tileLayout{
		h:    desc.Shape.Dim(-2),
		w:    desc.Shape.Dim(-1),
		ht:   padded.Dim(-2) / int(desc.Tile.Height),
		wt:   padded.Dim(-1) / int(desc.Tile.Width),
		tile: desc.Tile,
	}
	l.outer = desc.Shape.NumElements() / (l.h * l.w)
	return l
}

func (l tileLayout) locate(o, r, c int) (tile, off int) {
	th, tw := int(l.tile.Height), int(l.tile.Width)
	tile = o*l.ht*l.wt + (r/th)*l.wt + c/tw
	off = (r%th)*tw + c%tw
	return tile, off
}
