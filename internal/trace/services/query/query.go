// Package query is the read and reset surface over the aggregation store:
// filtered views, the request/response tracker data API, exports and the
// badge state.
package query

import (
	"sort"
	"strings"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/services/notify"
)

type Service struct {
	categorizer Categorizer
	clock       clock.Clock
	logger      log.Logger
	notifier    Notifier
	store       Store
}

type Options struct {
	Categorizer Categorizer
	Clock       clock.Clock
	Logger      log.Logger
	// Notifier is optional.
	Notifier Notifier
	Store    Store
}

func New(opts Options) *Service {
	s := &Service{
		categorizer: opts.Categorizer,
		clock:       opts.Clock,
		logger:      opts.Logger,
		notifier:    opts.Notifier,
		store:       opts.Store,
	}
	if s.clock == nil {
		s.clock = &clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	return s
}

// Filter narrows a view. Zero values match everything.
type Filter struct {
	// Search is a case-insensitive substring of the domain.
	Search   string
	Category domain.Category
}

func (f Filter) matches(d string, c domain.Category) bool {
	if f.Category != "" && f.Category != c {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(d), q)
	}
	return true
}

type SortOrder int

// ParseSortOrder maps "count" (or "") and "domain" to a SortOrder.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "count", "requests":
		return SortByRequestCount, true
	case "domain":
		return SortByDomain, true
	default:
		return SortByRequestCount, false
	}
}

const (
	// SortByRequestCount orders busiest first, then by domain.
	SortByRequestCount SortOrder = iota
	// SortByDomain orders alphabetically.
	SortByDomain
)

// TypeCount is one request type of a row, with its display label.
type TypeCount struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Row is one tracker in a view.
type Row struct {
	Domain   string             `json:"domain"`
	Stat     domain.TrackerStat `json:"stat"`
	Category domain.Category    `json:"category"`
	// Apex is the registrable domain, used to group related hosts.
	Apex  string      `json:"apex"`
	Types []TypeCount `json:"requestTypes"`
}

// View returns the filtered rows of one snapshot in the requested order.
func (s *Service) View(f Filter, order SortOrder) []Row {
	snap, _ := s.store.SnapshotWithTotals()

	rows := make([]Row, 0, len(snap))
	for d, st := range snap {
		c := s.categorizer.Categorize(d)
		if !f.matches(d, c) {
			continue
		}
		rows = append(rows, Row{
			Domain:   d,
			Stat:     st,
			Category: c,
			Apex:     utils.GetApexDomain(d),
			Types:    typeCounts(st.TypeBreakdown),
		})
	}

	switch order {
	case SortByDomain:
		sort.Slice(rows, func(i, j int) bool { return rows[i].Domain < rows[j].Domain })
	default:
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Stat.RequestCount != rows[j].Stat.RequestCount {
				return rows[i].Stat.RequestCount > rows[j].Stat.RequestCount
			}
			return rows[i].Domain < rows[j].Domain
		})
	}
	return rows
}

func typeCounts(breakdown map[string]int) []TypeCount {
	out := make([]TypeCount, 0, len(breakdown))
	for t, n := range breakdown {
		out = append(out, TypeCount{Type: t, Label: domain.RequestTypeLabel(t), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// TrackerData is the getTrackerData response.
type TrackerData struct {
	TrackerData   map[string]domain.TrackerStat `json:"trackerData"`
	TotalTrackers int                           `json:"totalTrackers"`
	TotalRequests int                           `json:"totalRequests"`
}

// Ack is the clearData response.
type Ack struct {
	Success bool `json:"success"`
}

// GetTrackerData returns a deep copy of the aggregate and its totals.
func (s *Service) GetTrackerData() TrackerData {
	snap, totals := s.store.SnapshotWithTotals()
	return TrackerData{
		TrackerData:   snap,
		TotalTrackers: totals.TrackerCount,
		TotalRequests: totals.RequestCount,
	}
}

// ClearData resets the store and tells observers when the count dropped.
func (s *Service) ClearData() Ack {
	cleared := s.store.Reset()
	s.logger.Info(map[string]any{
		"trackers": cleared.TrackerCount,
		"requests": cleared.RequestCount,
	}, "Tracker data cleared")
	if cleared.TrackerCount > 0 && s.notifier != nil {
		s.notifier.Publish(notify.Change{Generation: cleared.Generation})
	}
	return Ack{Success: true}
}

// Badge returns the indicator state for the current tracker count.
func (s *Service) Badge() domain.Badge {
	return domain.BadgeFor(s.store.Totals().TrackerCount)
}
