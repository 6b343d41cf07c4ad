package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestForRows(t *testing.T) {
	outer, rows := 3, 70
	seen := make([][]bool, outer)
	for o := range seen {
		seen[o] = make([]bool, rows)
	}

	ForRows(outer, rows, func(o, r int) {
		seen[o][r] = true
	}, DefaultConfig())

	for o := range seen {
		for r := range seen[o] {
			require.True(t, seen[o][r], "missing (%d,%d)", o, r)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(100, func(i int) {
		order = append(order, i)
	}, Sequential())

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestForEachCore(t *testing.T) {
	var counter int64
	err := ForEachCore(context.Background(), 64, func(_ context.Context, _ int) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, int64(64), counter)
}

func TestForEachCore_Error(t *testing.T) {
	boom := errors.New("boom")
	var ran int64
	err := ForEachCore(context.Background(), 10, func(_ context.Context, i int) error {
		atomic.AddInt64(&ran, 1)
		if i == 2 {
			return boom
		}
		return nil
	}, Sequential())

	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, int64(3), ran, "sequential launch stops after the failing core")
}

func TestForEachCore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	err := ForEachCore(ctx, 8, func(_ context.Context, _ int) error {
		atomic.AddInt64(&ran, 1)
		return nil
	}, DefaultConfig())

	assert.Equal(t, int64(0), ran)
	assert.True(t, errors.Is(err, context.Canceled))
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
