package program

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/born-ml/subalpha/internal/broadcast"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/tensor"
)

// Key identifies programs that can be reused for one another: everything
// about an invocation except buffer addresses and the scalar.
type Key string

// NewKey builds the key of an invocation.
func NewKey(a, b, c tensor.Descriptor, t broadcast.Type, workers grid.CoreRangeSet) Key {
	return Key(fmt.Sprintf("a=%s|b=%s|c=%s|bcast=%s|grid=%s", a, b, c, t, workers))
}

// Cache stores programs by key.
type Cache struct {
	mu       sync.Mutex
	programs map[Key]*Program

	// Statistics
	hits   uint64
	misses uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{programs: make(map[Key]*Program)}
}

// Get returns the program stored under key.
func (c *Cache) Get(key Key) (*Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.programs[key]
	if ok {
		c.hits++
		slog.Debug("program cache hit", "id", p.ID)
	} else {
		c.misses++
		slog.Debug("program cache miss", "key", string(key))
	}
	return p, ok
}

// Put stores p under key.
func (c *Cache) Put(key Key, p *Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = p
}

// Clear drops every program.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs = make(map[Key]*Program)
}

// Stats returns hit and miss counters and the number of stored programs.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.programs)
}
