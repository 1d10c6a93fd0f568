package aggregate

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/haukened/traceless/internal/trace/domain"
)

// index is the keyed container behind the store. Implementations are not
// safe for concurrent use; the store mutex guards every call.
type index interface {
	get(key string) (*domain.TrackerStat, bool)
	// add inserts a new key and returns the key evicted to make room, if any.
	add(key string, v *domain.TrackerStat) (evicted *domain.TrackerStat)
	remove(key string)
	each(fn func(*domain.TrackerStat))
	len() int
	purge()
}

// mapIndex is unbounded.
type mapIndex map[string]*domain.TrackerStat

func newMapIndex() mapIndex { return make(mapIndex) }

func (m mapIndex) get(key string) (*domain.TrackerStat, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapIndex) add(key string, v *domain.TrackerStat) *domain.TrackerStat {
	m[key] = v
	return nil
}

func (m mapIndex) remove(key string) { delete(m, key) }

func (m mapIndex) each(fn func(*domain.TrackerStat)) {
	for _, v := range m {
		fn(v)
	}
}

func (m mapIndex) len() int { return len(m) }

func (m mapIndex) purge() { clear(m) }

// lruIndex holds at most size keys and drops the least recently updated one.
type lruIndex struct {
	lru     *simplelru.LRU[string, *domain.TrackerStat]
	evicted *domain.TrackerStat
}

func newLRUIndex(size int) (*lruIndex, error) {
	idx := &lruIndex{}
	l, err := simplelru.NewLRU(size, func(_ string, v *domain.TrackerStat) {
		idx.evicted = v
	})
	if err != nil {
		return nil, err
	}
	idx.lru = l
	return idx, nil
}

// get marks key as most recently used.
func (l *lruIndex) get(key string) (*domain.TrackerStat, bool) { return l.lru.Get(key) }

func (l *lruIndex) add(key string, v *domain.TrackerStat) *domain.TrackerStat {
	l.evicted = nil
	if l.lru.Add(key, v) {
		ev := l.evicted
		l.evicted = nil
		return ev
	}
	return nil
}

func (l *lruIndex) remove(key string) { l.lru.Remove(key) }

func (l *lruIndex) each(fn func(*domain.TrackerStat)) {
	for _, k := range l.lru.Keys() {
		if v, ok := l.lru.Peek(k); ok {
			fn(v)
		}
	}
}

func (l *lruIndex) len() int { return l.lru.Len() }

func (l *lruIndex) purge() {
	l.lru.Purge()
	l.evicted = nil
}
