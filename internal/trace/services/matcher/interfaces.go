package matcher

import "github.com/haukened/traceless/internal/trace/domain"

// Registry answers conservative tracker membership (exact or dot-bounded suffix).
type Registry interface {
	Match(hostname string) domain.MatchDecision
}

// CategoryTable is the ordered hostname→category configuration.
type CategoryTable interface {
	Exact(host string) (domain.Category, bool)
	Entries() []domain.CategoryEntry
}
