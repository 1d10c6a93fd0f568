package domain

import "time"

// TrackerStat is the accumulated activity for one tracker domain during a session.
//
// Domain and FirstSeen are fixed at creation. RequestCount and TypeBreakdown
// only grow, and the TypeBreakdown values always sum to RequestCount.
type TrackerStat struct {
	Domain        string         `json:"domain"`
	RequestCount  int            `json:"count"`
	TypeBreakdown map[string]int `json:"types"`
	FirstSeen     time.Time      `json:"firstSeen"`
	LastSeen      time.Time      `json:"lastSeen"`
}

// Clone returns a deep copy that shares no memory with s.
func (s TrackerStat) Clone() TrackerStat {
	out := s
	out.TypeBreakdown = make(map[string]int, len(s.TypeBreakdown))
	for k, v := range s.TypeBreakdown {
		out.TypeBreakdown[k] = v
	}
	return out
}

// Totals summarises a snapshot: distinct domains and the sum of their request counts.
//
// Generation is the store's mutation counter at the moment the totals were
// taken; later store states always carry a higher value. Zero means unstamped.
type Totals struct {
	TrackerCount int    `json:"totalTrackers"`
	RequestCount int    `json:"totalRequests"`
	Generation   uint64 `json:"-"`
}

// Counts returns t without its generation stamp.
func (t Totals) Counts() Totals {
	t.Generation = 0
	return t
}

// TotalsOf computes Totals for a snapshot mapping.
func TotalsOf(snapshot map[string]TrackerStat) Totals {
	t := Totals{TrackerCount: len(snapshot)}
	for _, s := range snapshot {
		t.RequestCount += s.RequestCount
	}
	return t
}
