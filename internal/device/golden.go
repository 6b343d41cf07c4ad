package device

import (
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
)

// Reference computes a - b*alpha on the host with NumPy-style
// broadcasting, encoding the inputs and computing every intermediate the
// way a tile of type dt does. It is the golden result the tiled pipeline must
// reproduce bit for bit.
func Reference(dt tensor.DataType, aShape tensor.Shape, a []float32, bShape tensor.Shape, b []float32, alpha float32, cfg parallel.Config) ([]float32, tensor.Shape, error) {
	if len(a) != aShape.NumElements() || len(b) != bShape.NumElements() {
		return nil, nil, errors.Wrapf(ErrHostData, "reference inputs %v/%d and %v/%d", aShape, len(a), bShape, len(b))
	}
	outShape, err := tensor.BroadcastShapes(aShape, bShape)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reference")
	}

	outStrides := rowMajorStrides(outShape)
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	alpha = dt.Encode(alpha)

	out := make([]float32, outShape.NumElements())
	parallel.For(len(out), func(i int) {
		av := dt.Encode(a[flatIndex(i, outStrides, aStrides)])
		bv := dt.Encode(b[flatIndex(i, outStrides, bStrides)])
		out[i] = dt.Decode(dt.Sub(av, dt.Mul(bv, alpha)))
	}, cfg)
	return out, outShape, nil
}

func rowMajorStrides(s tensor.Shape) []int {
	strides := make([]int, len(s))
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= s[i]
	}
	return strides
}

// broadcastStrides returns the strides of in laid over out: dimensions that
// in lacks or holds at size 1 get stride 0.
func broadcastStrides(in, out tensor.Shape) []int {
	own := rowMajorStrides(in)
	strides := make([]int, len(out))
	offset := len(out) - len(in)
	for i := range out {
		j := i - offset
		if j < 0 || in[j] == 1 {
			continue
		}
		strides[i] = own[j]
	}
	return strides
}

// flatIndex maps a flat output index to the input's flat index.
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	idx := 0
	for i, s := range outStrides {
		coord := outIdx / s
		outIdx %= s
		idx += coord * inStrides[i]
	}
	return idx
}
