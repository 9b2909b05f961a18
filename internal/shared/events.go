// Package shared holds the telemetry data model consumed by the session
// manager, the collector client, the ingest server, and the sinks. Field
// names in JSON projections are camelCase to match the wire contract.
package shared

// Category classifies an event for filtering and reporting. It never affects
// delivery behavior.
type Category string

const (
	CategoryUserAction  Category = "user_action"
	CategoryPerformance Category = "performance"
	CategoryError       Category = "error"
	CategoryNavigation  Category = "navigation"
	CategoryVideo       Category = "video"
	CategoryEngagement  Category = "engagement"
)

// Categories lists every valid category in a stable order.
var Categories = []Category{
	CategoryUserAction,
	CategoryPerformance,
	CategoryError,
	CategoryNavigation,
	CategoryVideo,
	CategoryEngagement,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Properties is the open key-value payload of an event. Values must be
// JSON-compatible; NormalizeProperties coerces arbitrary input into that
// shape so marshaling never fails.
type Properties map[string]any

// Event is one immutable, timestamped, categorized analytics fact. Events
// are never mutated after creation.
type Event struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties Properties `json:"properties,omitempty"`
	Timestamp  int64      `json:"timestamp"` // milliseconds since epoch
	SessionID  string     `json:"sessionId"`
	UserID     string     `json:"userId,omitempty"`
	Category   Category   `json:"category"`
}

// Session records one client lifetime's worth of events and identifying
// context. EndTime stays zero until the session is explicitly ended; once
// set it never changes. PageViews starts at 1 for the initial load and is
// incremented once per detected navigation.
type Session struct {
	ID        string  `json:"id"`
	StartTime int64   `json:"startTime"` // milliseconds since epoch
	EndTime   int64   `json:"endTime,omitempty"`
	PageViews int     `json:"pageViews"`
	Events    []Event `json:"events"`
	UserAgent string  `json:"userAgent,omitempty"`
	Referrer  string  `json:"referrer,omitempty"`
	UserID    string  `json:"userId,omitempty"`
}

// BatchPayload is the body of one collector upload: the captured batch plus
// a snapshot of the owning session.
type BatchPayload struct {
	Events  []Event `json:"events"`
	Session Session `json:"session"`
}
