package config

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count that reads and writes human units ("4KiB", "256 kB",
// "1MiB") as well as plain integers.
type Size int

// ParseSize parses a byte count such as "4096", "4KiB" or "1 MB".
func ParseSize(s string) (Size, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadSize, err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s is too large", ErrBadSize, s)
	}
	return Size(n), nil
}

// String formats s in IEC units, or as a plain integer when the short IEC
// form would not parse back to s.
func (s Size) String() string {
	if s > 0 {
		h := humanize.IBytes(uint64(s))
		if n, err := humanize.ParseBytes(h); err == nil && n == uint64(s) {
			return h
		}
	}
	return strconv.Itoa(int(s))
}

// Int returns s as an int.
func (s Size) Int() int {
	return int(s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: expected a scalar", ErrBadSize, node.Line)
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Set implements pflag.Value so sizes can be given on the command line.
func (s *Size) Set(v string) error {
	n, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = n
	return nil
}

// Type implements pflag.Value.
func (*Size) Type() string {
	return "bytes"
}
