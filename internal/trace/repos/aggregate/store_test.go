package aggregate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/traceless/internal/trace/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, p Policy) *Store {
	t.Helper()
	s, err := New(p)
	require.NoError(t, err)
	return s
}

func TestRecord_CreatesAndIncrements(t *testing.T) {
	s := newStore(t, Policy{})

	res := s.Record("google-analytics.com", "script", t0)
	assert.True(t, res.Created)
	assert.True(t, res.CountChanged())
	assert.Equal(t, domain.Totals{TrackerCount: 1, RequestCount: 1}, res.Totals.Counts())

	res = s.Record("google-analytics.com", "image", t0.Add(time.Second))
	assert.False(t, res.Created)
	assert.False(t, res.CountChanged())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	st := snap["google-analytics.com"]
	assert.Equal(t, 2, st.RequestCount)
	assert.Equal(t, map[string]int{"script": 1, "image": 1}, st.TypeBreakdown)
	assert.Equal(t, t0, st.FirstSeen)
	assert.Equal(t, t0.Add(time.Second), st.LastSeen)
}

func TestRecord_EmptyTypeIsOther(t *testing.T) {
	s := newStore(t, Policy{})
	s.Record("doubleclick.net", "", t0)
	assert.Equal(t, map[string]int{"other": 1}, s.Snapshot()["doubleclick.net"].TypeBreakdown)
}

func TestRecord_EmptyDomainIgnored(t *testing.T) {
	s := newStore(t, Policy{})
	res := s.Record("", "script", t0)
	assert.False(t, res.Created)
	assert.Empty(t, s.Snapshot())
}

func TestRecord_FirstSeenNeverChanges(t *testing.T) {
	s := newStore(t, Policy{})
	s.Record("a.com", "script", t0)
	s.Record("a.com", "script", t0.Add(time.Hour))
	s.Record("a.com", "script", t0.Add(-time.Hour))

	st := s.Snapshot()["a.com"]
	assert.Equal(t, t0, st.FirstSeen)
	assert.Equal(t, t0.Add(time.Hour), st.LastSeen)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := newStore(t, Policy{})
	s.Record("a.com", "script", t0)

	snap := s.Snapshot()
	st := snap["a.com"]
	st.TypeBreakdown["script"] = 99
	st.RequestCount = 99
	snap["a.com"] = st

	again := s.Snapshot()["a.com"]
	assert.Equal(t, 1, again.RequestCount)
	assert.Equal(t, 1, again.TypeBreakdown["script"])
}

func TestTotals(t *testing.T) {
	s := newStore(t, Policy{})
	for i := 0; i < 3; i++ {
		s.Record("google-analytics.com", "script", t0)
	}
	s.Record("doubleclick.net", "image", t0)
	s.Record("doubleclick.net", "image", t0)

	assert.Equal(t, domain.Totals{TrackerCount: 2, RequestCount: 5}, s.Totals().Counts())

	snap, totals := s.SnapshotWithTotals()
	assert.Equal(t, domain.TotalsOf(snap), totals.Counts())
}

func TestReset(t *testing.T) {
	s := newStore(t, Policy{})
	s.Record("a.com", "script", t0)
	s.Record("b.com", "script", t0)

	cleared := s.Reset()
	assert.Equal(t, domain.Totals{TrackerCount: 2, RequestCount: 2}, cleared.Counts())
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, domain.Totals{}, s.Totals().Counts())

	res := s.Record("a.com", "script", t0.Add(time.Minute))
	assert.True(t, res.Created)
	assert.Equal(t, t0.Add(time.Minute), s.Snapshot()["a.com"].FirstSeen)
}

func TestRecord_ConcurrentNoLostUpdates(t *testing.T) {
	s := newStore(t, Policy{})
	const workers, perWorker = 16, 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Record("shared.com", "script", t0)
				s.Record(fmt.Sprintf("w%d.com", w), "image", t0)
			}
		}(w)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, workers*perWorker, snap["shared.com"].RequestCount)
	for w := 0; w < workers; w++ {
		assert.Equal(t, perWorker, snap[fmt.Sprintf("w%d.com", w)].RequestCount)
	}
	assert.Equal(t, domain.Totals{TrackerCount: workers + 1, RequestCount: 2 * workers * perWorker}, s.Totals().Counts())
}

func TestReset_InterleavedNeverExposesEmptyEntries(t *testing.T) {
	s := newStore(t, Policy{})
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Record("a.com", "script", t0)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Reset()
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		snap, totals := s.SnapshotWithTotals()
		for _, st := range snap {
			require.GreaterOrEqual(t, st.RequestCount, 1)
			sum := 0
			for _, n := range st.TypeBreakdown {
				sum += n
			}
			require.Equal(t, st.RequestCount, sum)
		}
		require.Equal(t, domain.TotalsOf(snap), totals.Counts())
	}
	close(stop)
	wg.Wait()
}

func TestPolicy_MaxDomainsEvictsLeastRecentlyUpdated(t *testing.T) {
	s := newStore(t, Policy{MaxDomains: 2})

	s.Record("a.com", "script", t0)
	s.Record("a.com", "script", t0)
	s.Record("b.com", "script", t0)
	// touch a.com so b.com becomes the oldest
	s.Record("a.com", "image", t0)

	res := s.Record("c.com", "script", t0)
	assert.True(t, res.Created)
	assert.Equal(t, "b.com", res.Evicted)
	assert.False(t, res.CountChanged())
	assert.Equal(t, domain.Totals{TrackerCount: 2, RequestCount: 4}, res.Totals.Counts())

	snap := s.Snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "a.com")
	assert.Contains(t, snap, "c.com")
	assert.NotContains(t, snap, "b.com")

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Evictions)
	assert.Equal(t, 2, st.Domains)
}

func TestPolicy_MaxDomainsBound(t *testing.T) {
	s := newStore(t, Policy{MaxDomains: 10})
	for i := 0; i < 100; i++ {
		s.Record(fmt.Sprintf("d%d.com", i), "script", t0)
		require.LessOrEqual(t, len(s.Snapshot()), 10)
	}
	assert.Equal(t, uint64(90), s.Stats().Evictions)
	assert.Equal(t, domain.Totals{TrackerCount: 10, RequestCount: 10}, s.Totals().Counts())
}

func TestPolicy_ResetIsNotEviction(t *testing.T) {
	s := newStore(t, Policy{MaxDomains: 4})
	s.Record("a.com", "script", t0)
	s.Record("b.com", "script", t0)
	s.Reset()
	assert.Zero(t, s.Stats().Evictions)
}

func TestGeneration_AdvancesOnEveryMutation(t *testing.T) {
	s := newStore(t, Policy{MaxIdle: time.Hour})
	assert.Zero(t, s.Totals().Generation)

	first := s.Record("a.com", "script", t0)
	second := s.Record("a.com", "script", t0)
	assert.Equal(t, uint64(1), first.Totals.Generation)
	assert.Equal(t, uint64(2), second.Totals.Generation)

	cleared := s.Reset()
	assert.Equal(t, uint64(3), cleared.Generation)
	assert.Equal(t, cleared.Generation, s.Totals().Generation)

	s.Record("b.com", "script", t0)
	assert.Nil(t, s.Prune(t0))
	assert.Equal(t, uint64(4), s.Totals().Generation, "a no-op prune is not a mutation")

	assert.Equal(t, []string{"b.com"}, s.Prune(t0.Add(2*time.Hour)))
	assert.Equal(t, uint64(5), s.Totals().Generation)

	s.Record("", "script", t0)
	assert.Equal(t, uint64(5), s.Totals().Generation, "ignored records are not mutations")
}

func TestPrune(t *testing.T) {
	s := newStore(t, Policy{MaxIdle: time.Hour})
	s.Record("old.com", "script", t0)
	s.Record("fresh.com", "script", t0)
	s.Record("fresh.com", "script", t0.Add(90*time.Minute))

	removed := s.Prune(t0.Add(2 * time.Hour))
	assert.Equal(t, []string{"old.com"}, removed)

	snap := s.Snapshot()
	assert.NotContains(t, snap, "old.com")
	assert.Contains(t, snap, "fresh.com")
	assert.Equal(t, domain.Totals{TrackerCount: 1, RequestCount: 2}, s.Totals().Counts())
	assert.Equal(t, uint64(1), s.Stats().Pruned)
}

func TestPrune_DisabledWithoutMaxIdle(t *testing.T) {
	s := newStore(t, Policy{})
	s.Record("old.com", "script", t0)
	assert.Nil(t, s.Prune(t0.Add(1000*time.Hour)))
	assert.Len(t, s.Snapshot(), 1)
}

func TestPrune_WithCapacityBound(t *testing.T) {
	s := newStore(t, Policy{MaxDomains: 3, MaxIdle: time.Minute})
	s.Record("a.com", "script", t0)
	s.Record("b.com", "script", t0.Add(5*time.Minute))

	removed := s.Prune(t0.Add(5 * time.Minute))
	assert.Equal(t, []string{"a.com"}, removed)
	assert.Equal(t, 1, s.Stats().Domains)
}

func BenchmarkRecord(b *testing.B) {
	s, _ := New(Policy{})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Record("google-analytics.com", "script", t0)
	}
}

func BenchmarkRecord_Bounded(b *testing.B) {
	s, _ := New(Policy{MaxDomains: 256})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Record(fmt.Sprintf("d%d.com", i%512), "script", t0)
	}
}

func BenchmarkSnapshot(b *testing.B) {
	s, _ := New(Policy{})
	for i := 0; i < 200; i++ {
		s.Record(fmt.Sprintf("d%d.com", i), "script", t0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Snapshot()
	}
}
