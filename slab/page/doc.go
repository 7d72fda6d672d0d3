// Package page manages the pages a slab allocator carves chunks from.
//
// # Overview
//
// A Page is a fixed-size region obtained from a source.Source and dedicated to
// exactly one size class for its whole life. It is partitioned into
// floor(PageSize / class) chunks; a tail shorter than one chunk is wasted.
//
// A Pool owns all pages of one allocator:
//
//   - Carve(class): take a chunk from a page of that class, acquiring a new page if needed
//   - Release(addr): give a chunk back to its page's free sequence
//   - Lookup(addr): find the owning page in O(1)
//
// # Page Identity
//
// Sources return regions aligned to the page size, so
//
//	PageID(addr) = addr / PageSize
//
// identifies the page of any address without consulting metadata. The pool
// still keeps an explicit arena of Page records (indexed by ID) and a map from
// PageID to ID, so lookups never slice raw memory.
//
// # Lifecycle
//
// Pages are never returned to the source individually. Close releases them all.
//
// # Thread Safety
//
// Pools are not thread-safe. The alloc package serializes access.
package page
