package domain

// InternalContextID marks requests that are not tied to a browsing context
// (the observer's own background work, service workers, prefetches).
const InternalContextID = -1

// RequestEvent is one observed outbound request as delivered by a request source.
type RequestEvent struct {
	URL         string
	RequestType string
	ContextID   int
	// Initiator is the URL of the document that issued the request, when known.
	Initiator string
}

// IsInternal reports whether the event carries the internal context sentinel.
func (e RequestEvent) IsInternal() bool { return e.ContextID == InternalContextID }

// MatchResult is the combined verdict for a hostname.
type MatchResult struct {
	IsTracker bool
	Category  Category
}

// MatchDecision is the registry verdict for a hostname.
type MatchDecision struct {
	Tracker      bool
	MatchedEntry string // registry entry that matched (the host itself or a parent)
}

// EmptyDecision returns a not-a-tracker decision.
func EmptyDecision() MatchDecision { return MatchDecision{} }
