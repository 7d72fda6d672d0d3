// Package probe checks the page locality and magazine retention of a slab
// allocator from the outside, using nothing but Alloc, Free and address
// arithmetic.
//
// Addresses are grouped into pages of Params.GroupSize bytes (addr/GroupSize).
// The probe fills Params.Pages distinct pages with small samples, frees the
// extra samples and checks that a new sample lands on one of those pages. It
// also frees one chunk of a few otherwise unused sizes and checks that each is
// handed back within Params.MaxProbeTrials allocations of its size, twice.
//
// GroupSize must not exceed the allocator's page size and MaxProbeTrials must
// be larger than the allocator's magazine capacity, or the checks can fail on
// a correct allocator.
package probe
