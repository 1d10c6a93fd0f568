// Package memstore keeps the tracker registry in a Go map.
package memstore

import (
	"sync"

	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/repos/registry"
)

type memStore struct {
	mu      sync.RWMutex
	entries map[string]struct{}
	version uint64
	updated int64
}

// New returns an empty in-memory registry.Store.
func New() registry.Store {
	return &memStore{entries: make(map[string]struct{})}
}

func (s *memStore) Lookup(host string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, candidate := range utils.Suffixes(host) {
		if _, ok := s.entries[candidate]; ok {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// RebuildAll swaps in a freshly built map so readers never see a partial set.
func (s *memStore) RebuildAll(entries []string, version uint64, updatedUnix int64) error {
	next := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		next[e] = struct{}{}
	}
	s.mu.Lock()
	s.entries = next
	s.version = version
	s.updated = updatedUnix
	s.mu.Unlock()
	return nil
}

func (s *memStore) Stats() registry.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return registry.StoreStats{Version: s.version, UpdatedUnix: s.updated, Entries: uint64(len(s.entries))}
}

func (s *memStore) Close() error { return nil }
