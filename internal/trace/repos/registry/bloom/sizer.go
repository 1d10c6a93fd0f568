package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/haukened/traceless/internal/trace/repos/registry"
)

const (
	// minEntries keeps filters for tiny tracker lists from degenerating to a few bits.
	minEntries = 64
	defaultFP  = 0.01
)

type sizer struct{}

// NewSizer returns a BloomSizer backed by bits-and-blooms parameter estimation.
// Entry counts below 64 are sized as 64 and an FP rate outside (0,1) becomes 1%.
func NewSizer() registry.BloomSizer { return sizer{} }

func (sizer) Size(n uint64, p float64) (uint64, uint8) {
	if n < minEntries {
		n = minEntries
	}
	if !(p > 0 && p < 1) {
		p = defaultFP
	}
	m, k := bitsbloom.EstimateParameters(uint(n), p)
	if k == 0 {
		k = 1
	}
	if k > 255 {
		k = 255
	}
	return uint64(m), uint8(k)
}
