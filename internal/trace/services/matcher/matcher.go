// Package matcher classifies hostnames. Membership and labeling use two
// different strictness levels and are kept as two separate functions:
//
//   - IsKnownTracker: exact or dot-bounded suffix match against the registry.
//     This decides what gets counted.
//   - Categorize: exact table lookup, then the first table entry that is a
//     dot-bounded suffix of the host or appears anywhere inside it. This only
//     decides the display label.
//
// The substring rule in Categorize can attach a label to an unrelated host
// that embeds a tracker name (e.g. "cdn-facebook.net.example.org" → social).
// That is a known limitation; it never affects counters.
package matcher

import (
	"strings"

	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/domain"
)

type Matcher struct {
	registry Registry
	table    CategoryTable
}

func New(registry Registry, table CategoryTable) *Matcher {
	return &Matcher{registry: registry, table: table}
}

// IsKnownTracker reports registry membership for hostname.
func (m *Matcher) IsKnownTracker(hostname string) bool {
	return m.registry.Match(hostname).Tracker
}

// Categorize returns the display category of hostname, CategoryOther when no table entry applies.
func (m *Matcher) Categorize(hostname string) domain.Category {
	host := utils.CanonicalHost(hostname)
	if host == "" {
		return domain.CategoryOther
	}
	if c, ok := m.table.Exact(host); ok {
		return c
	}
	for _, e := range m.table.Entries() {
		if utils.HasLabelSuffix(host, e.Host) || strings.Contains(host, e.Host) {
			return e.Category
		}
	}
	return domain.CategoryOther
}

// Classify combines both verdicts.
func (m *Matcher) Classify(hostname string) domain.MatchResult {
	return domain.MatchResult{
		IsTracker: m.IsKnownTracker(hostname),
		Category:  m.Categorize(hostname),
	}
}
