// Package aggregate owns the per-domain tracker statistics of a session.
//
// Every operation runs inside one store-wide critical section: Record calls
// never lose increments, Snapshot and Totals never observe a half-applied
// Record, and Reset is totally ordered with respect to Record. Each mutation
// advances a generation counter that is stamped on every Totals value, so
// observers can order totals that were read outside the lock.
package aggregate

import (
	"sync"
	"time"

	"github.com/haukened/traceless/internal/trace/domain"
)

// Policy bounds memory over an unbounded session. Zero values disable a bound.
type Policy struct {
	// MaxDomains caps distinct domains; the least recently updated one is
	// evicted to admit a new domain.
	MaxDomains int
	// MaxIdle is the age of lastSeen past which Prune drops an entry.
	MaxIdle time.Duration
}

// RecordResult describes what a Record call changed.
type RecordResult struct {
	// Created is true when the domain had no entry before this call.
	Created bool
	// Evicted names the domain dropped by the capacity bound, if any.
	Evicted string
	// Totals are the store totals right after the call.
	Totals domain.Totals
}

// CountChanged reports whether the distinct-domain count moved.
func (r RecordResult) CountChanged() bool { return r.Created && r.Evicted == "" }

// Stats reports store bookkeeping.
type Stats struct {
	Domains   int    `json:"domains"`
	Requests  int    `json:"requests"`
	Evictions uint64 `json:"evictions"`
	Pruned    uint64 `json:"pruned"`
	Policy    Policy `json:"-"`
}

type Store struct {
	mu        sync.Mutex
	policy    Policy
	idx       index
	requests  int
	evictions uint64
	pruned    uint64
	gen       uint64
}

// New returns an empty store governed by policy.
func New(policy Policy) (*Store, error) {
	s := &Store{policy: policy}
	if policy.MaxDomains > 0 {
		idx, err := newLRUIndex(policy.MaxDomains)
		if err != nil {
			return nil, err
		}
		s.idx = idx
	} else {
		s.idx = newMapIndex()
	}
	return s, nil
}

// Record counts one request of requestType to trackerDomain observed at ts.
// An empty requestType is counted as "other"; an empty domain is ignored.
func (s *Store) Record(trackerDomain, requestType string, ts time.Time) RecordResult {
	if trackerDomain == "" {
		return RecordResult{Totals: s.Totals()}
	}
	if requestType == "" {
		requestType = domain.RequestTypeOther
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res RecordResult
	st, ok := s.idx.get(trackerDomain)
	if !ok {
		st = &domain.TrackerStat{
			Domain:        trackerDomain,
			TypeBreakdown: make(map[string]int),
			FirstSeen:     ts,
			LastSeen:      ts,
		}
		if ev := s.idx.add(trackerDomain, st); ev != nil {
			s.requests -= ev.RequestCount
			s.evictions++
			res.Evicted = ev.Domain
		}
		res.Created = true
	}
	st.RequestCount++
	st.TypeBreakdown[requestType]++
	if ts.After(st.LastSeen) {
		st.LastSeen = ts
	}
	s.requests++
	s.gen++

	res.Totals = s.totalsLocked()
	return res
}

// Snapshot returns a deep copy of every entry.
func (s *Store) Snapshot() map[string]domain.TrackerStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Totals returns the distinct domain count and the sum of request counts.
func (s *Store) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

// SnapshotWithTotals returns both views from the same critical section.
func (s *Store) SnapshotWithTotals() (map[string]domain.TrackerStat, domain.Totals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.totalsLocked()
}

// Reset drops every entry. It returns the counts that were cleared, stamped
// with the generation of the now empty store.
func (s *Store) Reset() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.totalsLocked()
	s.idx.purge()
	s.requests = 0
	s.gen++
	before.Generation = s.gen
	return before
}

// Prune removes entries idle for longer than the policy's MaxIdle as of now
// and returns their domains. It is a no-op when MaxIdle is zero.
func (s *Store) Prune(now time.Time) []string {
	if s.policy.MaxIdle <= 0 {
		return nil
	}
	cutoff := now.Add(-s.policy.MaxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*domain.TrackerStat
	s.idx.each(func(st *domain.TrackerStat) {
		if st.LastSeen.Before(cutoff) {
			stale = append(stale, st)
		}
	})
	removed := make([]string, 0, len(stale))
	for _, st := range stale {
		s.idx.remove(st.Domain)
		s.requests -= st.RequestCount
		removed = append(removed, st.Domain)
	}
	if len(removed) > 0 {
		s.pruned += uint64(len(removed))
		s.gen++
	}
	return removed
}

// Stats returns store bookkeeping counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Domains:   s.idx.len(),
		Requests:  s.requests,
		Evictions: s.evictions,
		Pruned:    s.pruned,
		Policy:    s.policy,
	}
}

func (s *Store) snapshotLocked() map[string]domain.TrackerStat {
	out := make(map[string]domain.TrackerStat, s.idx.len())
	s.idx.each(func(st *domain.TrackerStat) {
		out[st.Domain] = st.Clone()
	})
	return out
}

func (s *Store) totalsLocked() domain.Totals {
	return domain.Totals{TrackerCount: s.idx.len(), RequestCount: s.requests, Generation: s.gen}
}
