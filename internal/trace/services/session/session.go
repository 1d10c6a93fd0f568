// Package session ties the per-session aggregate to the long-lived registry
// and matcher. A reset starts a new session over the same registry.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/repos/aggregate"
	"github.com/haukened/traceless/internal/trace/repos/registry"
	"github.com/haukened/traceless/internal/trace/services/matcher"
)

// Info describes the active session.
type Info struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Totals    domain.Totals `json:"totals"`
}

type Session struct {
	mu        sync.RWMutex
	id        uuid.UUID
	startedAt time.Time

	clock    clock.Clock
	matcher  *matcher.Matcher
	registry *registry.Registry
	store    *aggregate.Store
}

type Options struct {
	Clock    clock.Clock
	Matcher  *matcher.Matcher
	Registry *registry.Registry
	Store    *aggregate.Store
}

func New(opts Options) *Session {
	s := &Session{
		clock:    opts.Clock,
		matcher:  opts.Matcher,
		registry: opts.Registry,
		store:    opts.Store,
	}
	if s.clock == nil {
		s.clock = &clock.RealClock{}
	}
	s.id = uuid.New()
	s.startedAt = s.clock.Now()
	return s
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id.String()
}

func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

func (s *Session) Store() *aggregate.Store      { return s.store }
func (s *Session) Registry() *registry.Registry { return s.registry }
func (s *Session) Matcher() *matcher.Matcher    { return s.matcher }

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{ID: s.id.String(), StartedAt: s.startedAt, Totals: s.store.Totals()}
}

func (s *Session) SnapshotWithTotals() (map[string]domain.TrackerStat, domain.Totals) {
	return s.store.SnapshotWithTotals()
}

func (s *Session) Totals() domain.Totals { return s.store.Totals() }

// Reset clears the aggregate and starts a new session id. The registry is
// left untouched. It returns the totals that were cleared.
func (s *Session) Reset() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := s.store.Reset()
	s.id = uuid.New()
	s.startedAt = s.clock.Now()
	return cleared
}
