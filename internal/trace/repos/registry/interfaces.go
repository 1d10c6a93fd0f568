package registry

import "github.com/haukened/traceless/internal/trace/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the registry needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches match decisions by canonical hostname.
type DecisionCache interface {
	Get(host string) (domain.MatchDecision, bool)
	Put(host string, d domain.MatchDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the authoritative set of registry entries.
//   - Lookup: the most specific entry equal to host or a dot-bounded parent of it
//   - RebuildAll: replace the whole entry set in one step
type Store interface {
	Lookup(host string) (entry string, ok bool, err error)
	RebuildAll(entries []string, version uint64, updatedUnix int64) error
	Stats() StoreStats
	Close() error
}
