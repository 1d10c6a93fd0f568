package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/haukened/traceless/internal/trace/common/clock"
	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/domain"
)

// maxRegistryBytes bounds how much of a registry body is read.
const maxRegistryBytes = 16 << 20

// Source fetches the raw registry document.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// FileSource reads the registry from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxRegistryBytes))
}

// HTTPSource fetches the registry with a GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Name() string { return s.URL }

func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRegistryBytes))
}

// NewSource picks an HTTPSource for http(s) URLs and a FileSource otherwise.
func NewSource(location string, timeout time.Duration) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return HTTPSource{URL: location, Client: &http.Client{Timeout: timeout}}
	}
	return FileSource{Path: location}
}

// Parse decodes a registry document: a JSON array of hostname strings.
// Elements that are not non-empty strings are skipped.
func Parse(data []byte) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("registry is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("registry must be a JSON array, got %s", doc.Type)
	}
	var out []string
	doc.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			out = append(out, v.Str)
		} else {
			log.Debug(map[string]any{"value": v.Raw}, "Skipping non-hostname registry element")
		}
		return true
	})
	return out, nil
}

// LoadResult is the outcome of one registry load.
type LoadResult struct {
	Entries int
	Err     error
}

// OK reports whether the load succeeded.
func (r LoadResult) OK() bool { return r.Err == nil }

// Load fetches, parses and installs the registry. Failures are returned as a
// *domain.RegistryLoadError in the result and leave reg untouched; they are
// logged, never fatal.
func Load(ctx context.Context, src Source, reg *Registry, clk clock.Clock, logger log.Logger) LoadResult {
	fail := func(err error) LoadResult {
		lerr := &domain.RegistryLoadError{Source: src.Name(), Err: err}
		logger.Warn(map[string]any{"source": src.Name(), "error": err.Error()}, "Tracker registry load failed; detection stays inactive")
		return LoadResult{Err: lerr}
	}

	data, err := src.Fetch(ctx)
	if err != nil {
		return fail(err)
	}
	entries, err := Parse(data)
	if err != nil {
		return fail(err)
	}
	now := clk.Now()
	version := reg.Stats().Store.Version + 1
	n, err := reg.Replace(entries, version, now.Unix())
	if err != nil {
		return fail(err)
	}
	logger.Info(map[string]any{"source": src.Name(), "entries": n, "version": version}, "Tracker registry loaded")
	return LoadResult{Entries: n}
}
