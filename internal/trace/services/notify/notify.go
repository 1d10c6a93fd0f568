// Package notify fans store changes out to observers without ever blocking
// the publisher. Each subscriber holds at most one pending Change; a newer
// Change replaces an unread one. A stamped Change older than one already
// published is dropped, so a late publisher can never roll observers back.
package notify

import (
	"sync"

	"github.com/haukened/traceless/internal/trace/domain"
)

// Change is the store state observers are told about.
type Change struct {
	TrackerCount int    `json:"totalTrackers"`
	RequestCount int    `json:"totalRequests"`
	Generation   uint64 `json:"-"`
}

// FromTotals converts store totals into a Change.
func FromTotals(t domain.Totals) Change {
	return Change{TrackerCount: t.TrackerCount, RequestCount: t.RequestCount, Generation: t.Generation}
}

type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Change
	next   uint64
	latest uint64
	closed bool
}

func New() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan Change)}
}

// Subscribe registers an observer. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers c to every subscriber, replacing any undelivered Change.
// A Change whose Generation is below the newest one seen is ignored; an
// unstamped Change (Generation 0) is always delivered.
func (b *Broadcaster) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if c.Generation != 0 {
		if c.Generation < b.latest {
			return
		}
		b.latest = c.Generation
	}
	for _, ch := range b.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		// drop the stale pending value, then retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
