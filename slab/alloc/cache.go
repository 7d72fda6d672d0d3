package alloc

import "github.com/joshuapare/slabkit/slab/page"

// Cache is a per-goroutine front end: its own magazines over the pages of the
// allocator that created it. The fast path (magazine hit on Alloc, every
// unchecked Free) takes no lock; only carving and returning chunks to pages
// serialize on the shared pool.
//
// A Cache must be used by one goroutine at a time. Chunks may be freed through
// a different Cache (or the Allocator) than the one that allocated them.
type Cache struct {
	front
}

// Alloc returns a chunk of roundup(size, Alignment) bytes.
func (c *Cache) Alloc(size int) (page.Addr, error) {
	return c.alloc(size)
}

// Free gives back a chunk. See Allocator.Free.
func (c *Cache) Free(addr page.Addr, size int) error {
	return c.free(addr, size)
}

// Bytes returns the memory of the chunk at addr, limited to size bytes.
func (c *Cache) Bytes(addr page.Addr, size int) ([]byte, error) {
	return bytesOf(c.sh, addr, size)
}

// Flush returns every cached chunk to its page, making it available to other
// caches. Call it before dropping a Cache.
func (c *Cache) Flush() {
	c.flush()
}

// Stats returns the cache's counters.
func (c *Cache) Stats() Stats {
	return c.snapshot()
}
