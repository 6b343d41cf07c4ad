// Package program holds a compiled operation: the kernels bound to every
// core and each core's runtime argument vectors. A program is built once
// per operation signature and relaunched with fresh arguments written into
// the same storage.
package program

import (
	"context"
	"log/slog"
	"sync"

	"github.com/born-ml/subalpha/internal/args"
	"github.com/born-ml/subalpha/internal/device"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/pipeline"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/born-ml/subalpha/internal/variant"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNoArgStorage means an update targeted a core the program never stored
// arguments for.
var ErrNoArgStorage = errors.New("core has no runtime argument storage")

// Memory is what a launch needs from the device.
type Memory interface {
	Lookup(addr uint32) (*device.Buffer, error)
	CheckL1(slots int, tileBytes uint32) error
}

// Program is the kernels and per-core arguments of one operation.
//
// Argument storage is shared by every invocation that reuses the program.
// Writing arguments and launching must happen inside one call to Exclusive.
type Program struct {
	ID        uuid.UUID
	Kernels   variant.KernelConfig
	Placement pipeline.Placement
	DType     tensor.DataType
	Tile      tensor.TileShape

	cores   []grid.CoreCoord
	reader  map[grid.CoreCoord]*args.ReaderArgs
	writer  map[grid.CoreCoord]*args.WriterArgs
	compute map[grid.CoreCoord]*args.ComputeArgs

	mu sync.Mutex // Held from argument writes until the launch returns.
}

// New returns an empty program. Arguments are added with SetArgs.
func New(kernels variant.KernelConfig, placement pipeline.Placement, dtype tensor.DataType, tile tensor.TileShape) *Program {
	return &Program{
		ID:        uuid.New(),
		Kernels:   kernels,
		Placement: placement,
		DType:     dtype,
		Tile:      tile,
		reader:    make(map[grid.CoreCoord]*args.ReaderArgs),
		writer:    make(map[grid.CoreCoord]*args.WriterArgs),
		compute:   make(map[grid.CoreCoord]*args.ComputeArgs),
	}
}

// Cores returns the cores with argument storage, in the order they were
// set.
func (p *Program) Cores() []grid.CoreCoord {
	return p.cores
}

// ReaderArgs returns the stored reader vector of core.
func (p *Program) ReaderArgs(core grid.CoreCoord) (*args.ReaderArgs, bool) {
	v, ok := p.reader[core]
	return v, ok
}

// WriterArgs returns the stored writer vector of core.
func (p *Program) WriterArgs(core grid.CoreCoord) (*args.WriterArgs, bool) {
	v, ok := p.writer[core]
	return v, ok
}

// ComputeArgs returns the stored compute vector of core.
func (p *Program) ComputeArgs(core grid.CoreCoord) (*args.ComputeArgs, bool) {
	v, ok := p.compute[core]
	return v, ok
}

// Exclusive runs fn while holding the program. Concurrent callers run one
// after another.
func (p *Program) Exclusive(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// SetArgs returns a handler that allocates fresh storage for every vector
// it receives.
func (p *Program) SetArgs() args.Handler {
	return setter{p}
}

// UpdateArgs returns a handler that overwrites the storage allocated by an
// earlier SetArgs, without allocating.
func (p *Program) UpdateArgs() args.Handler {
	return updater{p}
}

type setter struct{ p *Program }

func (s setter) Reader(core grid.CoreCoord, v args.ReaderArgs) error {
	if _, ok := s.p.reader[core]; !ok {
		s.p.cores = append(s.p.cores, core)
	}
	s.p.reader[core] = &v
	return nil
}

func (s setter) Writer(core grid.CoreCoord, v args.WriterArgs) error {
	s.p.writer[core] = &v
	return nil
}

func (s setter) Compute(core grid.CoreCoord, v args.ComputeArgs) error {
	s.p.compute[core] = &v
	return nil
}

type updater struct{ p *Program }

func (u updater) Reader(core grid.CoreCoord, v args.ReaderArgs) error {
	dst, ok := u.p.reader[core]
	if !ok {
		return errors.Wrapf(ErrNoArgStorage, "reader on %s", core)
	}
	*dst = v
	return nil
}

func (u updater) Writer(core grid.CoreCoord, v args.WriterArgs) error {
	dst, ok := u.p.writer[core]
	if !ok {
		return errors.Wrapf(ErrNoArgStorage, "writer on %s", core)
	}
	*dst = v
	return nil
}

func (u updater) Compute(core grid.CoreCoord, v args.ComputeArgs) error {
	dst, ok := u.p.compute[core]
	if !ok {
		return errors.Wrapf(ErrNoArgStorage, "compute on %s", core)
	}
	*dst = v
	return nil
}

// Launch runs every core of the program on mem and waits for all of them.
// Buffers and L1 budgets are checked for every core before any core
// starts, so a failed launch has not touched the output.
func (p *Program) Launch(ctx context.Context, mem Memory, cfg parallel.Config) error {
	cores := make([]*pipeline.Core, 0, len(p.cores))
	tileBytes := tensor.TileSizeBytes(p.DType, p.Tile)

	for _, coord := range p.cores {
		r, w, k := *p.reader[coord], *p.writer[coord], *p.compute[coord]
		if k[args.ComputeNumTiles] == 0 {
			continue
		}

		depths := pipeline.BufferDepths(r, w, p.Placement)
		if err := mem.CheckL1(depths.Total(), tileBytes); err != nil {
			return errors.Wrapf(err, "core %s", coord)
		}
		a, err := mem.Lookup(r[args.ReaderSrcAddr])
		if err != nil {
			return errors.Wrapf(err, "input a on core %s", coord)
		}
		b, err := mem.Lookup(w[args.WriterSrcAddr])
		if err != nil {
			return errors.Wrapf(err, "input b on core %s", coord)
		}
		c, err := mem.Lookup(w[args.WriterDstAddr])
		if err != nil {
			return errors.Wrapf(err, "output on core %s", coord)
		}

		cores = append(cores, &pipeline.Core{
			Kernels:   p.Kernels,
			DType:     p.DType,
			Tile:      p.Tile,
			Reader:    r,
			Writer:    w,
			Compute:   k,
			A:         a,
			B:         b,
			C:         c,
			Placement: p.Placement,
			Buffers:   pipeline.NewBuffers(depths, p.Tile),
		})
	}

	slog.Debug("launching program", "id", p.ID, "kernels", p.Kernels.String(), "active", len(cores), "cores", len(p.cores))
	return parallel.ForEachCore(ctx, len(cores), func(_ context.Context, i int) error {
		cores[i].Run()
		return nil
	}, cfg)
}
