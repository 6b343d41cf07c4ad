// Package parallel fans host work and core launches out over goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls how much concurrency the helpers use.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Upper bound on goroutines working at once.
	MinChunkSize int  // Minimum items per goroutine for For.
}

// DefaultConfig returns a configuration sized to the host.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a configuration that runs everything on the caller's
// goroutine, one item at a time.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

// For executes f(i) for i in [0, n), in chunks of at least MinChunkSize.
// Falls back to a plain loop when disabled or when n is small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForRows runs f over every (outer, row) pair, the iteration shape of a
// tilize or untilize pass.
func ForRows(outer, rows int, f func(o, r int), cfg Config) {
	For(outer*rows, func(k int) {
		f(k/rows, k%rows)
	}, cfg)
}

// ForEachCore runs fn for every core index in [0, n), at most NumWorkers
// at a time. The first error cancels the calls not yet started and is
// returned. A cancelled ctx stops further launches and its error is
// returned.
func ForEachCore(ctx context.Context, n int, fn func(ctx context.Context, i int) error, cfg Config) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := 1
	if cfg.Enabled && cfg.NumWorkers > 1 {
		limit = cfg.NumWorkers
	}
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
