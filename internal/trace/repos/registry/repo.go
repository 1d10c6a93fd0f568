package registry

import (
	"sync"

	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/domain"
)

// Registry is the immutable-after-load set of known tracker hostnames. Reads
// run cache → bloom → store; Replace swaps the whole set atomically with
// respect to readers.
//
// Until the first Replace the registry is empty and every lookup reports
// "not a tracker".
type Registry struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
	loaded  bool
}

// New constructs a Registry. fpRate is the target false-positive rate for the
// Bloom filter built on each Replace.
func New(store Store, cache DecisionCache, factory BloomFactory, fpRate float64) *Registry {
	return &Registry{store: store, cache: cache, factory: factory, fpRate: fpRate}
}

// Contains reports whether hostname equals a registry entry or ends with "." + entry.
// No wildcard, prefix or substring matching.
func (r *Registry) Contains(hostname string) bool {
	return r.Match(hostname).Tracker
}

// Match returns the decision for hostname including the entry that matched.
// Store errors yield a negative decision.
func (r *Registry) Match(hostname string) domain.MatchDecision {
	cn := utils.CanonicalHost(hostname)
	if cn == "" {
		return domain.EmptyDecision()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return domain.EmptyDecision()
	}
	if !r.checkBloom(cn) {
		return domain.EmptyDecision()
	}
	if d, ok := r.cache.Get(cn); ok {
		return d
	}
	dec := r.checkStore(cn)
	r.cache.Put(cn, dec)
	return dec
}

// Replace rebuilds the store from entries, builds a fresh Bloom filter and
// purges cached decisions. Entries are canonicalized and deduplicated; empty
// ones are dropped. On store error the previous set stays in place.
func (r *Registry) Replace(entries []string, version uint64, updatedUnix int64) (int, error) {
	clean := normalizeEntries(entries)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.RebuildAll(clean, version, updatedUnix); err != nil {
		return 0, err
	}
	bf := r.factory.New(uint64(len(clean)), r.fpRate)
	for _, e := range clean {
		bf.Add([]byte(e))
	}
	r.bloom = bf
	r.cache.Purge()
	r.loaded = true
	return len(clean), nil
}

// Ready reports whether at least one load has completed.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Stats returns store and cache metrics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Loaded: r.loaded, Store: r.store.Stats(), Cache: r.cache.Stats()}
}

// Close releases the underlying store.
func (r *Registry) Close() error { return r.store.Close() }

// checkBloom returns true if the store may hold host or one of its parents.
// A nil filter defers to the store.
func (r *Registry) checkBloom(cn string) bool {
	if r.bloom == nil {
		return true
	}
	for _, candidate := range utils.Suffixes(cn) {
		if r.bloom.MightContain([]byte(candidate)) {
			return true
		}
	}
	return false
}

func (r *Registry) checkStore(cn string) domain.MatchDecision {
	entry, ok, err := r.store.Lookup(cn)
	if err != nil || !ok {
		return domain.EmptyDecision()
	}
	return domain.MatchDecision{Tracker: true, MatchedEntry: entry}
}

func normalizeEntries(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		cn := utils.CanonicalHost(e)
		if cn == "" {
			continue
		}
		if _, dup := seen[cn]; dup {
			continue
		}
		seen[cn] = struct{}{}
		out = append(out, cn)
	}
	return out
}
