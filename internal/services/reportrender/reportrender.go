// Package reportrender builds human-readable HTML reports for tracked
// sessions. A report is assembled as markdown first (session fields, event
// counts per category, sample payloads as fenced JSON) and then converted
// to HTML with goldmark. Fenced code blocks get chroma-backed syntax
// highlighting using CSS classes so callers can style the output.
package reportrender

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"

	"streamview/telemetry/internal/shared"
)

// maxSampleEvents bounds the number of fenced JSON samples in a report so
// long sessions stay readable.
const maxSampleEvents = 5

// Configured once and reused across all calls. The GitHub style with CSS
// classes matches what the dashboard stylesheet expects.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.Table,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
			highlighting.WithFormatOptions(
				html.WithClasses(true),
			),
		),
	),
)

// Render converts a markdown string to HTML with syntax-highlighted code
// blocks. Exposed separately so callers can render their own markdown
// through the same pipeline the session reports use.
func Render(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderSession builds the markdown report for a session and converts it
// to HTML.
func RenderSession(session shared.Session, events []shared.Event) (string, error) {
	return Render(SessionMarkdown(session, events))
}

// SessionMarkdown assembles the markdown source of a session report. The
// events argument is the full event log for the session; callers holding a
// live session snapshot can pass session.Events directly, while warehouse
// readers pass whatever they stored for that session id.
func SessionMarkdown(session shared.Session, events []shared.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", session.ID)

	b.WriteString("| Field | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| User | %s |\n", cell(orElse(session.UserID, "anonymous")))
	fmt.Fprintf(&b, "| Started | %s |\n", formatMillis(session.StartTime))
	if session.EndTime > 0 {
		fmt.Fprintf(&b, "| Ended | %s |\n", formatMillis(session.EndTime))
		fmt.Fprintf(&b, "| Duration | %s |\n", formatDuration(session.EndTime-session.StartTime))
	} else {
		b.WriteString("| Ended | still active |\n")
	}
	fmt.Fprintf(&b, "| Page views | %d |\n", session.PageViews)
	fmt.Fprintf(&b, "| Events | %d |\n", len(events))
	fmt.Fprintf(&b, "| User agent | %s |\n", cell(orElse(session.UserAgent, "(unknown)")))
	fmt.Fprintf(&b, "| Referrer | %s |\n", cell(orElse(session.Referrer, "(none)")))
	b.WriteString("\n")

	b.WriteString("## Events by category\n\n")
	counts := make(map[shared.Category]int, len(shared.Categories))
	for _, event := range events {
		counts[event.Category]++
	}
	b.WriteString("| Category | Count |\n")
	b.WriteString("| --- | --- |\n")
	for _, category := range shared.Categories {
		fmt.Fprintf(&b, "| %s | %d |\n", category, counts[category])
	}
	b.WriteString("\n")

	samples := latestEvents(events, maxSampleEvents)
	if len(samples) > 0 {
		b.WriteString("## Latest events\n\n")
		for _, event := range samples {
			encoded, err := json.MarshalIndent(event, "", "  ")
			if err != nil {
				// Properties are normalized at track time, so this only
				// happens for hand-built events with unmarshalable values.
				encoded = []byte(fmt.Sprintf("{\"id\": %q, \"name\": %q}", event.ID, event.Name))
			}
			fmt.Fprintf(&b, "```json\n%s\n```\n\n", encoded)
		}
	}

	return b.String()
}

// latestEvents returns up to max events ordered by timestamp ascending,
// keeping the newest ones. The input is never mutated; warehouse readers
// may hand us events in arbitrary order.
func latestEvents(events []shared.Event, max int) []shared.Event {
	ordered := make([]shared.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})
	if len(ordered) > max {
		ordered = ordered[len(ordered)-max:]
	}
	return ordered
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

// cell escapes a value for use inside a markdown table row.
func cell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}

func orElse(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
