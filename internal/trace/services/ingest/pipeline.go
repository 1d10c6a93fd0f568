package ingest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/common/utils"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/services/notify"
)

// DefaultInternalSchemes are the browser extension page schemes that never count.
var DefaultInternalSchemes = []string{"moz-extension", "chrome-extension"}

// Outcome is what happened to a single event.
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeInternal
	OutcomeNotTracker
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeInternal:
		return "internal"
	case OutcomeNotTracker:
		return "not_tracker"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Stats are cumulative event counters.
type Stats struct {
	Processed  uint64 `json:"processed"`
	Recorded   uint64 `json:"recorded"`
	Internal   uint64 `json:"internal"`
	NotTracker uint64 `json:"notTracker"`
	Malformed  uint64 `json:"malformed"`
}

type Pipeline struct {
	clock    clock.Clock
	logger   log.Logger
	matcher  Matcher
	notifier Notifier
	store    Store
	schemes  map[string]struct{}

	processed  atomic.Uint64
	recorded   atomic.Uint64
	internal   atomic.Uint64
	notTracker atomic.Uint64
	malformed  atomic.Uint64
}

type Options struct {
	Clock   clock.Clock
	Logger  log.Logger
	Matcher Matcher
	// Notifier is optional.
	Notifier Notifier
	Store    Store
	// InternalSchemes are added to DefaultInternalSchemes.
	InternalSchemes []string
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		clock:    opts.Clock,
		logger:   opts.Logger,
		matcher:  opts.Matcher,
		notifier: opts.Notifier,
		store:    opts.Store,
		schemes:  make(map[string]struct{}),
	}
	if p.clock == nil {
		p.clock = &clock.RealClock{}
	}
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	for _, s := range append(append([]string{}, DefaultInternalSchemes...), opts.InternalSchemes...) {
		s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ":")
		if s != "" {
			p.schemes[s] = struct{}{}
		}
	}
	return p
}

// Handle runs one event through the pipeline. A non-nil error is always a
// *domain.MalformedEventError; the event is dropped and the pipeline stays usable.
func (p *Pipeline) Handle(ev domain.RequestEvent) (Outcome, error) {
	p.processed.Add(1)

	if ev.IsInternal() || p.isInternalURL(ev.Initiator) {
		p.internal.Add(1)
		return OutcomeInternal, nil
	}

	u, err := parseEventURL(ev.URL)
	if err != nil {
		p.malformed.Add(1)
		merr := &domain.MalformedEventError{URL: ev.URL, Err: err}
		p.logger.Warn(map[string]any{
			"url":   ev.URL,
			"error": err,
		}, "Dropping malformed request event")
		return OutcomeMalformed, merr
	}

	if p.isInternalScheme(u.Scheme) {
		p.internal.Add(1)
		return OutcomeInternal, nil
	}

	host := utils.CanonicalHost(u.Hostname())
	if host == "" || !p.matcher.IsKnownTracker(host) {
		p.notTracker.Add(1)
		return OutcomeNotTracker, nil
	}

	res := p.store.Record(host, ev.RequestType, p.clock.Now())
	p.recorded.Add(1)

	if res.Created {
		p.logger.Debug(map[string]any{
			"domain":   host,
			"trackers": res.Totals.TrackerCount,
			"evicted":  res.Evicted,
		}, "Tracker detected")
	}
	if res.CountChanged() && p.notifier != nil {
		p.notifier.Publish(notify.FromTotals(res.Totals))
	}
	return OutcomeRecorded, nil
}

// Run drains events until the channel closes (nil) or ctx is done (ctx.Err()).
func (p *Pipeline) Run(ctx context.Context, events <-chan domain.RequestEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_, _ = p.Handle(ev)
		}
	}
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Recorded:   p.recorded.Load(),
		Internal:   p.internal.Load(),
		NotTracker: p.notTracker.Load(),
		Malformed:  p.malformed.Load(),
	}
}

func (p *Pipeline) isInternalScheme(scheme string) bool {
	_, ok := p.schemes[strings.ToLower(scheme)]
	return ok
}

func (p *Pipeline) isInternalURL(raw string) bool {
	if raw == "" {
		return false
	}
	scheme, _, ok := strings.Cut(raw, ":")
	return ok && p.isInternalScheme(scheme)
}

var errNoScheme = errors.New("missing scheme")

// parseEventURL accepts only absolute URLs.
func parseEventURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, errNoScheme
	}
	return u, nil
}
