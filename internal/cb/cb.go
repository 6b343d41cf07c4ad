// Package cb implements the fixed-capacity tile queues that connect the
// stages of one core. A buffer has one producer and one consumer. The
// producer reserves free slots at the back, writes them and publishes them;
// the consumer waits for published slots at the front, reads them and
// releases them. Waits block until the other side moves; there is no
// cancellation.
package cb

import (
	"sync"

	"github.com/gomlx/exceptions"
)

// Buffer is a ring of depth tile slots.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	slots [][]float32
	rd    int // first published slot
	wr    int // first free slot
	count int // published, not yet released
}

// New returns a buffer of depth slots holding tiles of tileElems values.
func New(depth, tileElems int) *Buffer {
	if depth <= 0 {
		exceptions.Panicf("cb: depth must be positive, got %d", depth)
	}
	b := &Buffer{slots: make([][]float32, depth)}
	for i := range b.slots {
		b.slots[i] = make([]float32, tileElems)
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Depth returns the slot count.
func (b *Buffer) Depth() int {
	return len(b.slots)
}

// WaitFront blocks until n published tiles are available to the consumer.
func (b *Buffer) WaitFront(n int) {
	b.check(n)
	b.mu.Lock()
	for b.count < n {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// ReserveBack blocks until n free slots are available to the producer.
func (b *Buffer) ReserveBack(n int) {
	b.check(n)
	b.mu.Lock()
	for len(b.slots)-b.count < n {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Front returns the i-th published tile. The slice stays valid until the
// consumer releases it.
func (b *Buffer) Front(i int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= b.count {
		exceptions.Panicf("cb: front tile %d of %d published", i, b.count)
	}
	return b.slots[(b.rd+i)%len(b.slots)]
}

// Back returns the i-th reserved slot for the producer to fill.
func (b *Buffer) Back(i int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.slots)-b.count {
		exceptions.Panicf("cb: back slot %d with %d free", i, len(b.slots)-b.count)
	}
	return b.slots[(b.wr+i)%len(b.slots)]
}

// PushBack publishes n filled slots to the consumer.
func (b *Buffer) PushBack(n int) {
	b.check(n)
	b.mu.Lock()
	if b.count+n > len(b.slots) {
		b.mu.Unlock()
		exceptions.Panicf("cb: push of %d overflows %d/%d", n, b.count, len(b.slots))
	}
	b.wr = (b.wr + n) % len(b.slots)
	b.count += n
	b.mu.Unlock()
	b.cond.Broadcast()
}

// PopFront releases n consumed tiles back to the producer.
func (b *Buffer) PopFront(n int) {
	b.check(n)
	b.mu.Lock()
	if n > b.count {
		b.mu.Unlock()
		exceptions.Panicf("cb: pop of %d with %d published", n, b.count)
	}
	b.rd = (b.rd + n) % len(b.slots)
	b.count -= n
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Published returns the number of tiles currently visible to the consumer.
func (b *Buffer) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// A request larger than the buffer would never be satisfied.
func (b *Buffer) check(n int) {
	if n < 0 || n > len(b.slots) {
		exceptions.Panicf("cb: request of %d tiles on a buffer of depth %d", n, len(b.slots))
	}
}
