// Package alloc provides the slab allocator front end: size-class routing over
// per-class magazines and a page pool.
//
// # Overview
//
// Every request is rounded up to a size class (a multiple of Config.Alignment).
// Each class has a magazine of freed chunks and a set of pages dedicated to it:
//
//	Alloc(size) → class → magazine.Pop() hit?  → chunk
//	                                     miss  → pool.Carve(class) → chunk
//	Free(addr, size) → class → magazine.Push(addr)
//
// Magazines are LIFO, so the chunk freed most recently is the next one
// returned for its class. By default they retain every freed chunk; set
// Config.MagazineCapacity to return the oldest half of a full magazine to the
// pages instead.
//
// # Usage Example
//
//	a, err := alloc.New(source.NewMmap(0), nil)
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	addr, err := a.Alloc(48)
//	if err != nil {
//	    return err
//	}
//	buf, _ := a.Bytes(addr, 48)
//	copy(buf, payload)
//
//	// Later, free with a size of the same class
//	err = a.Free(addr, 48)
//
// # Size Classes
//
// With the default 8-byte alignment and 4 KiB pages:
//
//	size    1-8  → class 8    (512 chunks per page)
//	size    9-16 → class 16   (256 chunks per page)
//	size   97    → class 104  (39 chunks per page, 40-byte tail unused)
//	size 4096    → class 4096 (1 chunk per page)
//	size 4097    → ErrTooLarge
//
// # Checked Mode
//
// The allocator does not store a size with each chunk; Free trusts the
// caller's size. Config.Checked turns the three classic misuses (foreign
// address, wrong size class, double free) into errors at the cost of a page
// lookup under the pool lock on every Free.
//
// # Thread Safety
//
// An Allocator is single-threaded. For concurrent use, give each goroutine a
// Cache from NewCache: caches own their magazines and share the page pool
// behind a mutex, so a freed chunk is handed out again by at most one Alloc.
package alloc
