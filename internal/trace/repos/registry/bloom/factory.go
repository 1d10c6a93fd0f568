package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/haukened/traceless/internal/trace/repos/registry"
)

// factory implements registry.BloomFactory on top of bits-and-blooms.
type factory struct {
	sizer registry.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() registry.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for capacity entries at the target false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) registry.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
