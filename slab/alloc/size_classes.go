package alloc

import (
	"fmt"
	"math/bits"
)

// sizeClasses maps request sizes to size classes and classes to magazine slots.
//
// Classes are the multiples of the alignment up to the page size, so slot
// lookup is a shift and the slot table is dense:
//
//	class = roundup(size, alignment)
//	slot  = class/alignment - 1
type sizeClasses struct {
	alignment int
	maxClass  int
	shift     uint
}

func newSizeClasses(alignment, pageSize int) sizeClasses {
	return sizeClasses{
		alignment: alignment,
		maxClass:  pageSize,
		shift:     uint(bits.TrailingZeros(uint(alignment))),
	}
}

// classOf returns the size class for a request of size bytes.
func (sc sizeClasses) classOf(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrZeroSize, size)
	}
	class := (size + sc.alignment - 1) &^ (sc.alignment - 1)
	if class > sc.maxClass || class < size {
		return 0, fmt.Errorf("%w: %d bytes (class %d, page size %d)", ErrTooLarge, size, class, sc.maxClass)
	}
	return class, nil
}

// slot returns the magazine slot of class.
func (sc sizeClasses) slot(class int) int {
	return class>>sc.shift - 1
}

// numSlots returns the number of possible classes.
func (sc sizeClasses) numSlots() int {
	return sc.maxClass >> sc.shift
}
