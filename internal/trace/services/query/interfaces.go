package query

import (
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/services/notify"
)

// Store is the read side of the aggregation store plus Reset.
type Store interface {
	SnapshotWithTotals() (map[string]domain.TrackerStat, domain.Totals)
	Totals() domain.Totals
	Reset() domain.Totals
}

// Categorizer assigns display categories.
type Categorizer interface {
	Categorize(hostname string) domain.Category
}

// Notifier is told when ClearData changes the tracker count.
type Notifier interface {
	Publish(c notify.Change)
}
