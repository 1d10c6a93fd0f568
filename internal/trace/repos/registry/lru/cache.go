package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/repos/registry"
)

// decisionCache is an LRU-backed registry.DecisionCache with hit/miss/eviction counters.
type decisionCache struct {
	lru       *lru.Cache[string, domain.MatchDecision]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses.
func New(size int) (registry.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	dc := &decisionCache{capacity: size}
	// NewWithEvict also observes Purge-induced evictions.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.MatchDecision) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(host string) (domain.MatchDecision, bool) {
	if val, ok := c.lru.Get(host); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	return domain.MatchDecision{}, false
}

func (c *decisionCache) Put(host string, d domain.MatchDecision) {
	c.lru.Add(host, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() registry.CacheStats {
	return registry.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

func (d *disabledCache) Get(string) (domain.MatchDecision, bool) {
	return domain.MatchDecision{}, false
}

func (d *disabledCache) Put(string, domain.MatchDecision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() registry.CacheStats { return registry.CacheStats{} }

var _ registry.DecisionCache = (*decisionCache)(nil)
var _ registry.DecisionCache = (*disabledCache)(nil)
