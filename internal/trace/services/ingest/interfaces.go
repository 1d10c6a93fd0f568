package ingest

import (
	"context"
	"time"

	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/repos/aggregate"
	"github.com/haukened/traceless/internal/trace/services/notify"
)

// Matcher decides whether a hostname is a known tracker.
type Matcher interface {
	IsKnownTracker(hostname string) bool
}

// Store records matched requests.
type Store interface {
	Record(trackerDomain, requestType string, ts time.Time) aggregate.RecordResult
}

// Notifier receives store changes. Publish must not block.
type Notifier interface {
	Publish(c notify.Change)
}

// Source produces request events until its input ends or ctx is done. It
// does not close out.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- domain.RequestEvent) error
}
