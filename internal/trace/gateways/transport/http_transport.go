package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/domain"
	"github.com/haukened/traceless/internal/trace/services/notify"
	"github.com/haukened/traceless/internal/trace/services/query"
)

const (
	defaultKeepAlive       = 15 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// HTTPTransport serves the query API, exports and a server-sent event stream.
type HTTPTransport struct {
	addr      string
	clock     clock.Clock
	events    Subscriber
	health    HealthFunc
	keepAlive time.Duration
	logger    log.Logger

	mu       sync.RWMutex
	running  bool
	server   *http.Server
	listener net.Listener
	stopCh   chan struct{}
}

type HTTPOptions struct {
	Addr   string
	Clock  clock.Clock
	Logger log.Logger
	// Events enables GET /api/v1/events when set.
	Events Subscriber
	Health HealthFunc
	// KeepAlive is the comment interval on idle event streams.
	KeepAlive time.Duration
}

func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	t := &HTTPTransport{
		addr:      opts.Addr,
		clock:     opts.Clock,
		events:    opts.Events,
		health:    opts.Health,
		keepAlive: opts.KeepAlive,
		logger:    opts.Logger,
	}
	if t.clock == nil {
		t.clock = &clock.RealClock{}
	}
	if t.logger == nil {
		t.logger = log.NewNoopLogger()
	}
	if t.keepAlive <= 0 {
		t.keepAlive = defaultKeepAlive
	}
	return t
}

// Start binds the listener and serves until Stop or ctx cancellation.
func (t *HTTPTransport) Start(ctx context.Context, handler QueryHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("HTTP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.listener = ln
	t.server = &http.Server{
		Handler:           t.routes(handler, stopCh),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   ln.Addr().String(),
	}, "Query transport started")

	go t.serve(t.server, ln)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

func (t *HTTPTransport) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.logger.Error(map[string]any{"error": err}, "Query transport failed")
	}
}

// Stop ends event streams and shuts the server down gracefully.
func (t *HTTPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	err := t.server.Shutdown(ctx)
	if err != nil {
		t.logger.Warn(map[string]any{"error": err}, "Error shutting down query transport")
	}
	t.running = false

	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   t.listener.Addr().String(),
	}, "Query transport stopped")
	return err
}

// Address returns the bound address while running, else the configured one.
func (t *HTTPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running && t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// routes builds the router. Event streams end when stop is closed.
func (t *HTTPTransport) routes(h QueryHandler, stop <-chan struct{}) http.Handler {
	r := mux.NewRouter()
	r.Use(t.logRequests)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/trackers", func(w http.ResponseWriter, _ *http.Request) {
		t.writeJSON(w, http.StatusOK, h.GetTrackerData())
	}).Methods(http.MethodGet)

	api.HandleFunc("/trackers/clear", func(w http.ResponseWriter, _ *http.Request) {
		t.writeJSON(w, http.StatusOK, h.ClearData())
	}).Methods(http.MethodPost)

	api.HandleFunc("/trackers/view", func(w http.ResponseWriter, req *http.Request) {
		t.handleView(w, req, h)
	}).Methods(http.MethodGet)

	api.HandleFunc("/export", func(w http.ResponseWriter, _ *http.Request) {
		t.handleExport(w, h)
	}).Methods(http.MethodGet)

	api.HandleFunc("/badge", func(w http.ResponseWriter, _ *http.Request) {
		t.writeJSON(w, http.StatusOK, h.Badge())
	}).Methods(http.MethodGet)

	if t.events != nil {
		api.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
			t.handleEvents(w, req, h, stop)
		}).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if t.health == nil {
			t.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		t.writeJSON(w, http.StatusOK, t.health())
	}).Methods(http.MethodGet)

	return r
}

func (t *HTTPTransport) handleView(w http.ResponseWriter, req *http.Request, h QueryHandler) {
	q := req.URL.Query()

	var f query.Filter
	f.Search = q.Get("q")
	if c := q.Get("category"); c != "" {
		cat, err := domain.ParseCategory(c)
		if err != nil {
			t.writeError(w, http.StatusBadRequest, err)
			return
		}
		f.Category = cat
	}
	order, ok := query.ParseSortOrder(q.Get("sort"))
	if !ok {
		t.writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported sort: %q", q.Get("sort")))
		return
	}
	t.writeJSON(w, http.StatusOK, h.View(f, order))
}

func (t *HTTPTransport) handleExport(w http.ResponseWriter, h QueryHandler) {
	body, err := h.ExportJSON()
	if err != nil {
		t.logger.Error(map[string]any{"error": err}, "Export failed")
		t.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", query.ExportFilename(t.clock.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleEvents streams a "change" event with the current totals on connect
// and after every tracker count change.
func (t *HTTPTransport) handleEvents(w http.ResponseWriter, req *http.Request, h QueryHandler, stop <-chan struct{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	changes, cancel := t.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	data := h.GetTrackerData()
	if err := writeEvent(w, notify.Change{TrackerCount: data.TotalTrackers, RequestCount: data.TotalRequests}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(t.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-stop:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := writeEvent(w, c); err != nil {
				t.logger.Debug(map[string]any{"error": err}, "Event stream write failed")
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, c notify.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: change\ndata: %s\n\n", b)
	return err
}

func (t *HTTPTransport) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.logger.Warn(map[string]any{"error": err}, "Failed to encode response")
	}
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, status int, err error) {
	t.writeJSON(w, status, map[string]string{"error": err.Error()})
}
