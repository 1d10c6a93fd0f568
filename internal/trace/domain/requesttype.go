package domain

import "strconv"

// RequestTypeOther is recorded when a source does not report a request type.
const RequestTypeOther = "other"

var requestTypeLabels = map[string]string{
	"main_frame":     "Page",
	"sub_frame":      "Frame",
	"stylesheet":     "CSS",
	"script":         "Script",
	"image":          "Image",
	"font":           "Font",
	"object":         "Object",
	"xmlhttprequest": "XHR",
	"xhr":            "XHR",
	"fetch":          "Fetch",
	"ping":           "Ping",
	"media":          "Media",
	"websocket":      "WebSocket",
	"other":          "Other",
}

// RequestTypeLabel returns the display label for a request type, or the type itself.
func RequestTypeLabel(t string) string {
	if l, ok := requestTypeLabels[t]; ok {
		return l
	}
	return t
}

// Badge is what the status indicator shows.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

const badgeColor = "#ff3333"

// BadgeFor renders the indicator for a distinct tracker count; zero yields the empty state.
func BadgeFor(trackerCount int) Badge {
	if trackerCount <= 0 {
		return Badge{}
	}
	return Badge{Text: strconv.Itoa(trackerCount), Color: badgeColor}
}
