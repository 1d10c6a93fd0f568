package cdp

import (
	"errors"
	"strings"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/tidwall/gjson"

	"github.com/haukened/traceless/internal/trace/domain"
)

var ErrInvalidEvent = errors.New("invalid Network.requestWillBeSent payload")

// resourceTypes maps DevTools resource types onto webRequest type names.
var resourceTypes = map[string]string{
	"document":           "main_frame",
	"stylesheet":         "stylesheet",
	"image":              "image",
	"media":              "media",
	"font":               "font",
	"script":             "script",
	"xhr":                "xmlhttprequest",
	"fetch":              "xmlhttprequest",
	"eventsource":        "xmlhttprequest",
	"websocket":          "websocket",
	"ping":               "ping",
	"cspviolationreport": "csp_report",
	"prefetch":           "other",
	"manifest":           "other",
	"other":              "other",
}

// RequestType converts a DevTools resource type. Unknown types become "other".
func RequestType(resourceType string) string {
	if t, ok := resourceTypes[strings.ToLower(resourceType)]; ok {
		return t
	}
	return domain.RequestTypeOther
}

// Converter turns requestWillBeSent payloads into RequestEvents. Each
// (target, frame) pair gets a small integer context id; requests without a
// frame belong to the internal context. The table keeps the most recently
// used frames only, and a frame that falls out is given a fresh id.
type Converter struct {
	mu     sync.Mutex
	frames *simplelru.LRU[frameKey, int]
	next   int
}

type frameKey struct {
	target string
	frame  string
}

// NewConverter returns a converter remembering up to maxFrames frames.
func NewConverter(maxFrames int) *Converter {
	if maxFrames <= 0 {
		maxFrames = defaultMaxFrames
	}
	// only fails for a non-positive size
	frames, _ := simplelru.NewLRU[frameKey, int](maxFrames, nil)
	return &Converter{frames: frames, next: 1}
}

// Convert decodes the JSON form of a Network.requestWillBeSent event seen
// on target.
func (c *Converter) Convert(target string, raw []byte) (domain.RequestEvent, error) {
	if !gjson.ValidBytes(raw) {
		return domain.RequestEvent{}, ErrInvalidEvent
	}
	res := gjson.ParseBytes(raw)
	req := res.Get("request")
	if !req.IsObject() {
		return domain.RequestEvent{}, ErrInvalidEvent
	}

	initiator := res.Get("documentURL").String()
	if initiator == "" {
		initiator = res.Get("initiator.url").String()
	}

	return domain.RequestEvent{
		URL:         req.Get("url").String(),
		RequestType: RequestType(res.Get("type").String()),
		ContextID:   c.contextFor(target, res.Get("frameId").String()),
		Initiator:   initiator,
	}, nil
}

// Forget drops every frame of target.
func (c *Converter) Forget(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.frames.Keys() {
		if k.target == target {
			c.frames.Remove(k)
		}
	}
}

// Frames returns the number of frames currently tracked.
func (c *Converter) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames.Len()
}

func (c *Converter) contextFor(target, frame string) int {
	if frame == "" {
		return domain.InternalContextID
	}
	k := frameKey{target: target, frame: frame}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.frames.Get(k); ok {
		return id
	}
	id := c.next
	c.next++
	c.frames.Add(k, id)
	return id
}
