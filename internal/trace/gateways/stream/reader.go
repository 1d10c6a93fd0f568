// Package stream reads request events as JSON lines, one object per line:
//
//	{"url":"https://doubleclick.net/p.gif","type":"image","tabId":3,"initiator":"https://example.com/"}
//
// "requestType" and "contextId" are accepted as aliases. A missing tabId is
// read as context 0; -1 marks the observer's own traffic.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/haukened/traceless/internal/trace/common/log"
	"github.com/haukened/traceless/internal/trace/domain"
)

const maxLineBytes = 1 << 20

var (
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrNotObject   = errors.New("event is not a JSON object")
	ErrLineTooLong = errors.New("event line exceeds 1 MiB")
)

// Reader is a request source over an io.Reader.
type Reader struct {
	name   string
	r      io.Reader
	logger log.Logger
}

func NewReader(name string, r io.Reader, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Reader{name: name, r: r, logger: logger}
}

func (s *Reader) Name() string { return s.name }

// Run emits one event per valid line. Unparsable or oversized lines are
// logged and skipped. It returns nil at end of input.
func (s *Reader) Run(ctx context.Context, out chan<- domain.RequestEvent) error {
	br := bufio.NewReaderSize(s.r, 64*1024)

	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, rerr := readLine(br, maxLineBytes)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, ErrLineTooLong) {
			return fmt.Errorf("read %s: %w", s.name, rerr)
		}
		if len(raw) > 0 || !errors.Is(rerr, io.EOF) {
			line++
		}
		if errors.Is(rerr, ErrLineTooLong) {
			s.skip(line, rerr)
			continue
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			ev, err := ParseLine(raw)
			if err != nil {
				s.skip(line, err)
			} else {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if rerr != nil {
			return nil
		}
	}
}

func (s *Reader) skip(line int, err error) {
	s.logger.Warn(map[string]any{
		"source": s.name,
		"line":   line,
		"error":  err,
	}, "Skipping unreadable request event")
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported as ErrLineTooLong. The final
// line of the input is returned together with io.EOF.
func readLine(br *bufio.Reader, limit int) ([]byte, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > limit+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			if tooLong {
				// at end of input the following call reports io.EOF
				return nil, ErrLineTooLong
			}
			buf = bytes.TrimSuffix(buf, []byte("\n"))
			buf = bytes.TrimSuffix(buf, []byte("\r"))
		}
		return buf, err
	}
}

// ParseLine decodes a single JSON event object.
func ParseLine(raw []byte) (domain.RequestEvent, error) {
	if !gjson.ValidBytes(raw) {
		return domain.RequestEvent{}, ErrInvalidJSON
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return domain.RequestEvent{}, ErrNotObject
	}
	return domain.RequestEvent{
		URL:         firstOf(res, "url").String(),
		RequestType: firstOf(res, "type", "requestType").String(),
		ContextID:   int(firstOf(res, "tabId", "contextId").Int()),
		Initiator:   firstOf(res, "initiator", "originUrl").String(),
	}, nil
}

func firstOf(res gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
