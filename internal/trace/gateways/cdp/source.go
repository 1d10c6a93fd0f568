// Package cdp observes a Chromium-family browser over the DevTools protocol
// and reports every outgoing request as a RequestEvent.
//
// The source polls the endpoint's target list and attaches a Network
// subscription to each page, so tabs opened after start-up are observed too.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"

	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/domain"
)

const (
	defaultPoll      = time.Second
	defaultMaxFrames = 4096
)

type Options struct {
	// Endpoint is the DevTools HTTP endpoint, e.g. http://127.0.0.1:9222.
	Endpoint string
	// Target pins a single target id. Empty follows every page.
	Target string
	// Poll is how often the target list is refreshed.
	Poll time.Duration
	// MaxFrames bounds the frame to context id table.
	MaxFrames int
	Logger    log.Logger
}

type Source struct {
	endpoint  string
	target    string
	poll      time.Duration
	logger    log.Logger
	converter *Converter

	list   func(ctx context.Context) ([]*devtool.Target, error)
	attach func(ctx context.Context, t *devtool.Target, out chan<- domain.RequestEvent) error
}

func New(opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaultMaxFrames
	}
	s := &Source{
		endpoint:  opts.Endpoint,
		target:    opts.Target,
		poll:      opts.Poll,
		logger:    opts.Logger,
		converter: NewConverter(opts.MaxFrames),
	}
	s.list = devtool.New(opts.Endpoint).List
	s.attach = s.attachTarget
	return s
}

func (s *Source) Name() string { return "cdp:" + s.endpoint }

// Run follows the endpoint until ctx is done. It fails only when the first
// target listing fails or a pinned target does not exist; later listing
// errors and dropped target connections are logged and retried.
func (s *Source) Run(ctx context.Context, out chan<- domain.RequestEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var mu sync.Mutex
	attached := make(map[string]struct{})

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for first := true; ; first = false {
		targets, err := s.list(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && first:
			return fmt.Errorf("list devtools targets: %w", err)
		case err != nil:
			s.logger.Warn(map[string]any{"endpoint": s.endpoint, "error": err}, "Failed to list DevTools targets")
		default:
			wanted := 0
			for _, t := range targets {
				if !s.wants(t) {
					continue
				}
				wanted++
				id := string(t.ID)
				mu.Lock()
				_, busy := attached[id]
				attached[id] = struct{}{}
				mu.Unlock()
				if busy {
					continue
				}

				wg.Add(1)
				go func(t *devtool.Target) {
					defer wg.Done()
					err := s.attach(ctx, t, out)
					mu.Lock()
					delete(attached, id)
					mu.Unlock()
					s.converter.Forget(id)
					if err != nil && ctx.Err() == nil {
						s.logger.Debug(map[string]any{"target": id, "error": err}, "Detached from DevTools target")
					}
				}(t)
			}
			if first && wanted == 0 && s.target != "" {
				return fmt.Errorf("no devtools target matching %q at %s", s.target, s.endpoint)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Source) wants(t *devtool.Target) bool {
	if s.target != "" {
		return string(t.ID) == s.target
	}
	return string(t.Type) == "page"
}

// attachTarget enables the Network domain on one target and forwards its
// requests until ctx is done or the target goes away.
func (s *Source) attachTarget(ctx context.Context, t *devtool.Target, out chan<- domain.RequestEvent) error {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial devtools target: %w", err)
	}
	defer conn.Close()

	client := cdp.NewClient(conn)
	sent, err := client.Network.RequestWillBeSent(ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestWillBeSent: %w", err)
	}
	defer sent.Close()

	if err := client.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}

	id := string(t.ID)
	s.logger.Info(map[string]any{
		"endpoint": s.endpoint,
		"target":   id,
		"url":      t.URL,
	}, "Attached to DevTools target")

	for {
		reply, err := sent.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive requestWillBeSent: %w", err)
		}
		raw, err := json.Marshal(reply)
		if err != nil {
			s.logger.Warn(map[string]any{"error": err}, "Failed to encode DevTools event")
			continue
		}
		ev, err := s.converter.Convert(id, raw)
		if err != nil {
			s.logger.Warn(map[string]any{"target": id, "error": err}, "Skipping DevTools event")
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
