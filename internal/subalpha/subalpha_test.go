package subalpha

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/born-ml/subalpha/internal/device"
	"github.com/born-ml/subalpha/internal/geometry"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/partition"
	"github.com/born-ml/subalpha/internal/program"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func randomData(n int, seed uint64) []float32 {
	r := rand.New(rand.NewPCG(seed, 7))
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*200 - 100
	}
	return out
}

type operand struct {
	shape tensor.Shape
	mem   *tensor.MemoryConfig
}

func dense(dims ...int) operand {
	return operand{shape: tensor.Shape(dims)}
}

func shardedOn(layout tensor.MemoryLayout, g grid.CoreRangeSet, h, w uint32, dims ...int) operand {
	return operand{
		shape: tensor.Shape(dims),
		mem:   &tensor.MemoryConfig{Layout: layout, Shard: &tensor.ShardSpec{Grid: g, Shape: [2]uint32{h, w}}},
	}
}

func upload(t *testing.T, dev *device.Device, dt tensor.DataType, o operand, seed uint64) (*device.Tensor, []float32) {
	t.Helper()
	desc := tensor.NewDescriptor(o.shape, dt)
	if o.mem != nil {
		desc = desc.WithMemory(*o.mem)
	}
	data := randomData(o.shape.NumElements(), seed)
	x, err := dev.FromHost(desc, data)
	require.NoError(t, err)
	return x, data
}

// invoke runs a - b*alpha on op and returns the device result and the
// golden reference.
func invoke(t *testing.T, op *Operation, dt tensor.DataType, a, b operand, alpha float32) (got, want []float32) {
	t.Helper()
	dev := op.dev
	at, aData := upload(t, dev, dt, a, 1)
	bt, bData := upload(t, dev, dt, b, 2)

	c, err := op.Invoke(context.Background(), at, bt, alpha)
	require.NoError(t, err)

	got, err = dev.ToHost(c)
	require.NoError(t, err)
	want, _, err = device.Reference(dt, a.shape, aData, b.shape, bData, alpha, parallel.DefaultConfig())
	require.NoError(t, err)
	return got, want
}

func programKey(t *testing.T, a, b, c *device.Tensor, op *Operation) program.Key {
	t.Helper()
	kind, err := Validate(a.Desc, b.Desc, c.Desc)
	require.NoError(t, err)
	return program.NewKey(a.Desc, b.Desc, c.Desc, kind, op.opts.WorkerGrid)
}

func newOp(opts Options) *Operation {
	return New(device.New(device.DefaultConfig()), opts)
}

func TestInvokeMatchesReference(t *testing.T) {
	tests := []struct {
		name string
		a, b operand
		kind broadcast.Type
	}{
		{"single tile", dense(1, 1, 32, 32), dense(1, 1, 32, 32), broadcast.None},
		{"no bcast", dense(1, 3, 320, 384), dense(1, 3, 320, 384), broadcast.None},
		{"scalar a", dense(1, 1, 1, 1), dense(5, 3, 32, 32), broadcast.ScalarA},
		{"scalar b", dense(5, 3, 32, 32), dense(1, 1, 1, 1), broadcast.ScalarB},
		{"scalar b multi tile", dense(2, 1, 100, 200), dense(1, 1, 1, 1), broadcast.ScalarB},
		{"row b col a", dense(5, 1, 64, 1), dense(1, 3, 1, 128), broadcast.RowBColA},
		{"row a col b", dense(5, 1, 1, 64), dense(1, 3, 128, 1), broadcast.RowAColB},
		{"row a", dense(2, 3, 1, 4), dense(2, 3, 5, 4), broadcast.RowA},
		{"row b", dense(2, 3, 5, 4), dense(2, 3, 1, 4), broadcast.RowB},
		{"col a", dense(2, 3, 5, 1), dense(2, 3, 5, 4), broadcast.ColA},
		{"col b", dense(2, 3, 5, 4), dense(2, 3, 5, 1), broadcast.ColB},
		{"col b wide", dense(1, 2, 200, 300), dense(1, 2, 200, 1), broadcast.ColB},
		{"batch broadcast", dense(4, 1, 64, 64), dense(1, 3, 64, 64), broadcast.None},
		{"rank 5", dense(3, 2, 1, 64, 96), dense(2, 4, 64, 96), broadcast.None},
		{"rank 5 col a", dense(2, 1, 3, 64, 1), dense(2, 1, 1, 64, 96), broadcast.ColA},
		{"rank 2", dense(70, 40), dense(1, 40), broadcast.RowB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := broadcast.Classify(tt.a.shape, tt.b.shape)
			require.NoError(t, err)
			require.Equal(t, tt.kind, kind)

			for _, alpha := range []float32{1, 5, 10} {
				got, want := invoke(t, newOp(DefaultOptions()), tensor.BFloat16, tt.a, tt.b, alpha)
				require.Equal(t, want, got, "alpha %v", alpha)
			}
		})
	}
}

func TestInvokeDataTypes(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Int32, tensor.BFloat16, tensor.Float16} {
		t.Run(dt.String(), func(t *testing.T) {
			got, want := invoke(t, newOp(DefaultOptions()), dt, dense(2, 1, 64, 96), dense(2, 1, 64, 1), 2.5)
			assert.Equal(t, want, got)
		})
	}
}

func TestResultIndependentOfPartition(t *testing.T) {
	a, b := dense(3, 2, 96, 160), dense(3, 1, 96, 1)
	var results [][]float32
	for _, workers := range []grid.CoreRangeSet{grid.Rect(1, 1), grid.Rect(3, 5), grid.Rect(8, 8)} {
		opts := DefaultOptions()
		opts.WorkerGrid = workers
		got, _ := invoke(t, newOp(opts), tensor.BFloat16, a, b, 0.3)
		results = append(results, got)
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestInvokeHeightShardedRagged(t *testing.T) {
	// 10 tile rows over 4 cores of 3 rows each.
	a := shardedOn(tensor.HeightSharded, grid.Rect(4, 1), 96, 64, 1, 1, 320, 64)
	got, want := invoke(t, newOp(DefaultOptions()), tensor.BFloat16, a, dense(1, 1, 320, 64), 2)
	assert.Equal(t, want, got)
}

func TestInvokeHeightShardedBroadcast(t *testing.T) {
	a := shardedOn(tensor.HeightSharded, grid.Rect(4, 2), 64, 96, 1, 2, 256, 96)
	got, want := invoke(t, newOp(DefaultOptions()), tensor.Float32, a, dense(1, 2, 256, 1), 0.75)
	assert.Equal(t, want, got)
}

func TestInvokeBlockSharded(t *testing.T) {
	g := grid.Rect(2, 2)
	a := shardedOn(tensor.BlockSharded, g, 64, 64, 1, 1, 128, 128)
	b := shardedOn(tensor.BlockSharded, g, 64, 64, 1, 1, 128, 128)
	got, want := invoke(t, newOp(DefaultOptions()), tensor.BFloat16, a, b, 3)
	assert.Equal(t, want, got)
}

func TestInvokeWidthShardedOutput(t *testing.T) {
	g := grid.Rect(4, 1)
	opts := DefaultOptions()
	opts.MemoryConfig = &tensor.MemoryConfig{
		Layout: tensor.WidthSharded,
		Shard:  &tensor.ShardSpec{Grid: g, Shape: [2]uint32{64, 32}},
	}
	got, want := invoke(t, newOp(opts), tensor.BFloat16, dense(1, 1, 64, 128), dense(1, 1, 1, 128), 1.5)
	assert.Equal(t, want, got)
}

func TestRaggedBlockLeavesNoState(t *testing.T) {
	op := newOp(DefaultOptions())
	dev := op.dev
	a := shardedOn(tensor.BlockSharded, grid.Rect(2, 2), 64, 64, 1, 1, 128, 96)
	at, _ := upload(t, dev, tensor.BFloat16, a, 1)
	bt, _ := upload(t, dev, tensor.BFloat16, dense(1, 1, 128, 96), 2)
	_, _, liveBefore := dev.Stats()

	c, err := op.Invoke(context.Background(), at, bt, 1)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, geometry.ErrUnevenShard))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "placement", cfgErr.Field)

	_, _, size := op.Cache().Stats()
	assert.Equal(t, 0, size, "nothing cached")
	_, _, liveAfter := dev.Stats()
	assert.Equal(t, liveBefore, liveAfter, "output released")
}

func TestPeriodicBroadcastOnWidthShardingRejected(t *testing.T) {
	op := newOp(DefaultOptions())
	a := shardedOn(tensor.WidthSharded, grid.Rect(2, 1), 64, 32, 1, 1, 64, 64)
	at, _ := upload(t, op.dev, tensor.Float32, a, 1)
	bt, _ := upload(t, op.dev, tensor.Float32, dense(1, 1, 1, 1), 2)

	_, err := op.Invoke(context.Background(), at, bt, 1)
	assert.True(t, errors.Is(err, partition.ErrBroadcastPeriodSharding))
}

func TestInvalidBroadcast(t *testing.T) {
	tests := []struct{ a, b tensor.Shape }{
		{tensor.Shape{1, 1, 31, 32}, tensor.Shape{5, 3, 32, 32}},
		{tensor.Shape{5, 2, 64, 1}, tensor.Shape{1, 3, 1, 128}},
		{tensor.Shape{5, 1, 1, 64}, tensor.Shape{2, 3, 128, 1}},
	}
	op := newOp(DefaultOptions())
	for _, tt := range tests {
		at, _ := upload(t, op.dev, tensor.BFloat16, operand{shape: tt.a}, 1)
		bt, _ := upload(t, op.dev, tensor.BFloat16, operand{shape: tt.b}, 2)

		_, err := op.Invoke(context.Background(), at, bt, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broadcasting rule violation")
	}
}

func TestValidate(t *testing.T) {
	a := tensor.NewDescriptor(tensor.Shape{1, 1, 32, 32}, tensor.BFloat16)
	b := tensor.NewDescriptor(tensor.Shape{1, 1, 32, 32}, tensor.Float32)

	_, err := Validate(a, b, a)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dtype", cfgErr.Field)

	wrongOut := tensor.NewDescriptor(tensor.Shape{1, 1, 64, 32}, tensor.BFloat16)
	_, err = Validate(a, a, wrongOut)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "c", cfgErr.Field)

	kind, err := Validate(a, tensor.NewDescriptor(tensor.Shape{1, 1, 1, 32}, tensor.BFloat16), a)
	require.NoError(t, err)
	assert.Equal(t, broadcast.RowB, kind)
}

func TestOutputDescriptor(t *testing.T) {
	g := grid.Rect(2, 1)
	mem := tensor.MemoryConfig{Layout: tensor.HeightSharded, Shard: &tensor.ShardSpec{Grid: g, Shape: [2]uint32{32, 32}}}
	a := tensor.NewDescriptor(tensor.Shape{1, 1, 64, 32}, tensor.BFloat16).WithMemory(mem)
	b := tensor.NewDescriptor(tensor.Shape{1, 1, 1, 32}, tensor.BFloat16)

	out, err := OutputDescriptor(a, b, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 64, 32}, out.Shape)
	assert.Equal(t, tensor.HeightSharded, out.Memory.Layout, "follows sharded a")

	out, err = OutputDescriptor(b, a, nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.HeightSharded, out.Memory.Layout, "follows sharded b")

	out, err = OutputDescriptor(a, b, &tensor.InterleavedConfig)
	require.NoError(t, err)
	assert.Equal(t, tensor.Interleaved, out.Memory.Layout)

	small := tensor.NewDescriptor(tensor.Shape{1, 1, 32, 32}, tensor.BFloat16).WithMemory(mem)
	out, err = OutputDescriptor(small, tensor.NewDescriptor(tensor.Shape{2, 1, 32, 32}, tensor.BFloat16), nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Interleaved, out.Memory.Layout, "a sharded input of another shape is not followed")
}

func TestProgramCacheReuse(t *testing.T) {
	op := newOp(DefaultOptions())
	dev := op.dev
	a, b := dense(1, 2, 96, 64), dense(1, 2, 96, 1)

	got, want := invoke(t, op, tensor.BFloat16, a, b, 1)
	require.Equal(t, want, got)

	// Same signature, new buffers and scalar: the program is reused and its
	// arguments are rewritten in place.
	at, aData := upload(t, dev, tensor.BFloat16, a, 11)
	bt, bData := upload(t, dev, tensor.BFloat16, b, 12)
	c, err := dev.Allocate(tensor.NewDescriptor(tensor.Shape{1, 2, 96, 64}, tensor.BFloat16))
	require.NoError(t, err)

	key := programKey(t, at, bt, c, op)
	p, ok := op.Cache().Get(key)
	require.True(t, ok)
	first := p.Cores()[0]
	storage, _ := p.ReaderArgs(first)

	require.NoError(t, op.InvokeInto(context.Background(), at, bt, c, 4))

	after, _ := p.ReaderArgs(first)
	assert.Same(t, storage, after)
	assert.Equal(t, at.Addr, after[args.ReaderSrcAddr])

	got, err = dev.ToHost(c)
	require.NoError(t, err)
	want, _, err = device.Reference(tensor.BFloat16, a.shape, aData, b.shape, bData, 4, parallel.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	hits, misses, size := op.Cache().Stats()
	assert.Equal(t, 1, size)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(2), hits, "explicit lookup plus the second invocation")
}

func TestInt32IntermediatesExact(t *testing.T) {
	op := newOp(DefaultOptions())
	desc := tensor.NewDescriptor(tensor.Shape{1, 1, 32, 32}, tensor.Int32)
	fill := func(v float32) []float32 {
		out := make([]float32, 32*32)
		for i := range out {
			out[i] = v
		}
		return out
	}
	at, err := op.dev.FromHost(desc, fill(3))
	require.NoError(t, err)
	bt, err := op.dev.FromHost(desc, fill(4097))
	require.NoError(t, err)

	c, err := op.Invoke(context.Background(), at, bt, 4097)
	require.NoError(t, err)
	got, err := op.dev.ToHost(c)
	require.NoError(t, err)
	assert.Equal(t, fill(-16785406), got, "3 - 4097*4097")
}

func TestConcurrentInvokeSharesProgram(t *testing.T) {
	op := newOp(DefaultOptions())
	dev := op.dev
	shape := tensor.Shape{1, 1, 256, 256}
	at, aData := upload(t, dev, tensor.Float32, operand{shape: shape}, 1)
	bt, bData := upload(t, dev, tensor.Float32, operand{shape: shape}, 2)

	warm, err := op.Invoke(context.Background(), at, bt, 0)
	require.NoError(t, err)
	dev.Release(warm)

	const workers, rounds = 4, 10
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		alpha := float32(w + 1)
		want, _, err := device.Reference(tensor.Float32, shape, aData, shape, bData, alpha, parallel.DefaultConfig())
		require.NoError(t, err)
		g.Go(func() error {
			for r := 0; r < rounds; r++ {
				c, err := op.Invoke(context.Background(), at, bt, alpha)
				if err != nil {
					return err
				}
				got, err := dev.ToHost(c)
				if err != nil {
					return err
				}
				assert.Equal(t, want, got, "alpha %v round %d", alpha, r)
				dev.Release(c)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	hits, misses, size := op.Cache().Stats()
	assert.Equal(t, 1, size)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(workers*rounds), hits, "every concurrent call reuses one program")
}

func BenchmarkInvoke(b *testing.B) {
	op := newOp(DefaultOptions())
	dev := op.dev
	aDesc := tensor.NewDescriptor(tensor.Shape{1, 3, 320, 384}, tensor.BFloat16)
	bDesc := tensor.NewDescriptor(tensor.Shape{1, 3, 320, 1}, tensor.BFloat16)
	at, err := dev.FromHost(aDesc, randomData(aDesc.Shape.NumElements(), 1))
	require.NoError(b, err)
	bt, err := dev.FromHost(bDesc, randomData(bDesc.Shape.NumElements(), 2))
	require.NoError(b, err)
	c, err := dev.Allocate(aDesc)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := op.InvokeInto(context.Background(), at, bt, c, 2); err != nil {
			b.Fatal(err)
		}
	}
}
