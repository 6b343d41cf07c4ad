// Package device is an in-process stand-in for an accelerator: a grid of
// cores, an address space of tiled tensor buffers and a per-core L1 budget
// for tile queues.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Errors returned by the device.
var (
	// ErrL1Exhausted means a core's tile queues do not fit in its L1.
	ErrL1Exhausted = errors.New("circular buffers exceed core L1 capacity")
	// ErrUnknownAddress means no live buffer starts at an address.
	ErrUnknownAddress = errors.New("no buffer at address")
	// ErrHostData means host data does not match the descriptor.
	ErrHostData = errors.New("host data does not match tensor shape")
)

// Config describes the device.
type Config struct {
	GridX       uint32 // Worker grid columns.
	GridY       uint32 // Worker grid rows.
	L1Bytes     uint32 // Per-core memory available to tile queues.
	BaseAddress uint32 // First buffer address.
	Alignment   uint32 // Buffer addresses are multiples of this.
	Parallel    parallel.Config
}

// DefaultConfig returns an 8x8 device with 1 MiB of L1 per core.
func DefaultConfig() Config {
	return Config{
		GridX:       8,
		GridY:       8,
		L1Bytes:     1 << 20,
		BaseAddress: 0x10000,
		Alignment:   32,
		Parallel:    parallel.DefaultConfig(),
	}
}

// Device owns the buffers of every allocated tensor.
type Device struct {
	cfg Config

	mu      sync.Mutex
	next    uint32
	buffers map[uint32]*Buffer

	// Statistics
	allocated uint64
	released  uint64
}

// New creates a device.
func New(cfg Config) *Device {
	if cfg.Alignment == 0 {
		cfg.Alignment = 1
	}
	return &Device{
		cfg:     cfg,
		next:    cfg.BaseAddress,
		buffers: make(map[uint32]*Buffer),
	}
}

// Config returns the device configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// WorkerGrid returns every core of the device.
func (d *Device) WorkerGrid() grid.CoreRangeSet {
	return grid.Rect(d.cfg.GridX, d.cfg.GridY)
}

// Allocate reserves zeroed storage for a tensor described by desc.
func (d *Device) Allocate(desc tensor.Descriptor) (*Tensor, error) {
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrap(err, "allocate")
	}

	buf := &Buffer{
		ID:    uuid.New(),
		tiles: make([][]float32, desc.NumTiles()),
	}
	elems := desc.Tile.Elements()
	for i := range buf.tiles {
		buf.tiles[i] = make([]float32, elems)
	}

	d.mu.Lock()
	addr := d.next
	size := desc.SizeBytes()
	d.next += (size + d.cfg.Alignment - 1) / d.cfg.Alignment * d.cfg.Alignment
	d.buffers[addr] = buf
	d.allocated++
	d.mu.Unlock()

	slog.Debug("allocated buffer", "addr", fmt.Sprintf("%#x", addr), "id", buf.ID, "tensor", desc.String())
	return &Tensor{Desc: desc, Addr: addr, ID: buf.ID, dev: d}, nil
}

// Lookup returns the buffer starting at addr.
func (d *Device) Lookup(addr uint32) (*Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[addr]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAddress, "%#x", addr)
	}
	return buf, nil
}

// Release frees the storage of t. Addresses are not reused.
func (d *Device) Release(t *Tensor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[t.Addr]; ok {
		delete(d.buffers, t.Addr)
		d.released++
	}
}

// CheckL1 fails with ErrL1Exhausted when slots tiles of tileBytes each do
// not fit in one core's L1.
func (d *Device) CheckL1(slots int, tileBytes uint32) error {
	need := uint64(slots) * uint64(tileBytes)
	if need > uint64(d.cfg.L1Bytes) {
		return errors.Wrapf(ErrL1Exhausted, "%d tile slots need %d bytes, L1 holds %d", slots, need, d.cfg.L1Bytes)
	}
	return nil
}

// Stats returns allocation counters and the number of live buffers.
func (d *Device) Stats() (allocated, released uint64, live int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated, d.released, len(d.buffers)
}

// Buffer is the tiled storage of one tensor. Tiles may be read and written
// concurrently as long as no two writers share a tile.
type Buffer struct {
	ID    uuid.UUID
	tiles [][]float32
}

// NumTiles returns the number of tiles in the buffer.
func (b *Buffer) NumTiles() int {
	return len(b.tiles)
}

// ReadTile copies tile idx into dst.
func (b *Buffer) ReadTile(idx uint32, dst []float32) {
	copy(dst, b.tiles[idx])
}

// WriteTile copies src into tile idx.
func (b *Buffer) WriteTile(idx uint32, src []float32) {
	copy(b.tiles[idx], src)
}

// Tensor is a device-resident tensor.
type Tensor struct {
	Desc tensor.Descriptor
	Addr uint32
	ID   uuid.UUID
	dev  *Device
}

// Device returns the device holding t.
func (t *Tensor) Device() *Device {
	return t.dev
}

// String returns a compact description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("tensor@%#x %s", t.Addr, t.Desc)
}
