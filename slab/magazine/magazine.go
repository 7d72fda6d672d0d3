// Package magazine implements the per-size-class cache of freed chunks.
//
// A Magazine is a LIFO stack: the chunk freed most recently is the next one
// handed out. With capacity 0 it retains every chunk pushed into it. With a
// positive capacity, a push into a full magazine first evicts the oldest half
// of its contents through the overflow function, so the newest chunks stay
// cached and the pushed chunk is always retained.
//
// Magazines are not thread-safe; each one has a single owner.
package magazine

import "github.com/joshuapare/slabkit/slab/page"

// Overflow receives chunks evicted from a full magazine, oldest first. The
// slice is only valid for the duration of the call.
type Overflow func(evicted []page.Addr)

// Magazine caches free chunks of one size class.
type Magazine struct {
	class    int
	capacity int
	overflow Overflow
	items    []page.Addr
	evicted  int
}

// New creates a magazine for class. capacity <= 0 means unbounded; overflow
// may be nil only for unbounded magazines.
func New(class, capacity int, overflow Overflow) *Magazine {
	if capacity < 0 {
		capacity = 0
	}
	m := &Magazine{
		class:    class,
		capacity: capacity,
		overflow: overflow,
	}
	if capacity > 0 {
		m.items = make([]page.Addr, 0, capacity)
	}
	return m
}

// Class returns the size class of the cached chunks.
func (m *Magazine) Class() int { return m.class }

// Cap returns the retention limit, 0 if unbounded.
func (m *Magazine) Cap() int { return m.capacity }

// Len returns the number of cached chunks.
func (m *Magazine) Len() int { return len(m.items) }

// Evicted returns the number of chunks handed to the overflow function so far.
func (m *Magazine) Evicted() int { return m.evicted }

// Push caches a freed chunk.
func (m *Magazine) Push(addr page.Addr) {
	if m.capacity > 0 && len(m.items) >= m.capacity {
		m.evict(max(1, m.capacity/2))
	}
	m.items = append(m.items, addr)
}

// Pop returns the most recently pushed chunk, or false if the magazine is empty.
func (m *Magazine) Pop() (page.Addr, bool) {
	n := len(m.items)
	if n == 0 {
		return 0, false
	}
	addr := m.items[n-1]
	m.items = m.items[:n-1]
	return addr, true
}

// Peek returns the chunk Pop would return without removing it.
func (m *Magazine) Peek() (page.Addr, bool) {
	n := len(m.items)
	if n == 0 {
		return 0, false
	}
	return m.items[n-1], true
}

// Drain removes every cached chunk and passes them to fn, oldest first.
func (m *Magazine) Drain(fn Overflow) {
	if len(m.items) == 0 {
		return
	}
	if fn != nil {
		fn(m.items)
	}
	m.items = m.items[:0]
}

// evict hands the n oldest chunks to the overflow function and shifts the rest down.
func (m *Magazine) evict(n int) {
	if m.overflow != nil {
		m.overflow(m.items[:n])
	}
	m.evicted += n
	m.items = m.items[:copy(m.items, m.items[n:])]
}
