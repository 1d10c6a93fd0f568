package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// isoLayout matches JavaScript's Date.prototype.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatISO renders t in UTC with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ExportRecord is one tracker in an export document.
type ExportRecord struct {
	Domain       string         `json:"domain"`
	Category     string         `json:"category"`
	RequestCount int            `json:"requestCount"`
	RequestTypes map[string]int `json:"requestTypes"`
	FirstSeen    string         `json:"firstSeen"`
}

// ExportDocument is the downloadable session summary.
type ExportDocument struct {
	ExportedAt    string         `json:"exportedAt"`
	TotalTrackers int            `json:"totalTrackers"`
	TotalRequests int            `json:"totalRequests"`
	Trackers      []ExportRecord `json:"trackers"`
}

// Export projects the current snapshot into an ExportDocument. Trackers are
// ordered by request count, busiest first. The store is not modified.
func (s *Service) Export() ExportDocument {
	snap, totals := s.store.SnapshotWithTotals()

	doc := ExportDocument{
		ExportedAt:    FormatISO(s.clock.Now()),
		TotalTrackers: totals.TrackerCount,
		TotalRequests: totals.RequestCount,
		Trackers:      make([]ExportRecord, 0, len(snap)),
	}
	for d, st := range snap {
		doc.Trackers = append(doc.Trackers, ExportRecord{
			Domain:       d,
			Category:     s.categorizer.Categorize(d).String(),
			RequestCount: st.RequestCount,
			RequestTypes: st.TypeBreakdown,
			FirstSeen:    FormatISO(st.FirstSeen),
		})
	}
	sort.Slice(doc.Trackers, func(i, j int) bool {
		a, b := doc.Trackers[i], doc.Trackers[j]
		if a.RequestCount != b.RequestCount {
			return a.RequestCount > b.RequestCount
		}
		return a.Domain < b.Domain
	})
	return doc
}

// ExportJSON returns Export as two-space indented JSON.
func (s *Service) ExportJSON() ([]byte, error) {
	b, err := json.MarshalIndent(s.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return b, nil
}

// ExportFilename names an export written at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("traceless-export-%d.json", now.UnixMilli())
}
