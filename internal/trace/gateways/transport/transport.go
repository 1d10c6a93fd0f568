// Package transport exposes the query surface over the network. The service
// layer only sees its own types; routing, encoding and streaming live here.
package transport

import (
	"context"

	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/services/notify"
	"github.com/haukened/traceless/internal/trace/services/query"
)

// ServerTransport is a network front end for a QueryHandler.
type ServerTransport interface {
	Start(ctx context.Context, handler QueryHandler) error
	Stop() error
	Address() string
}

// QueryHandler is the request/response query contract.
type QueryHandler interface {
	GetTrackerData() query.TrackerData
	ClearData() query.Ack
	View(f query.Filter, order query.SortOrder) []query.Row
	ExportJSON() ([]byte, error)
	Badge() domain.Badge
}

// Subscriber provides push updates for the event stream.
type Subscriber interface {
	Subscribe() (<-chan notify.Change, func())
}

// HealthFunc reports process health as a JSON-encodable value.
type HealthFunc func() any
