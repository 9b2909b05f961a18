// Package eventstore provides the durable backstop for undelivered telemetry
// events.
//
// The contract is a single slot holding a JSON array of events: the session
// manager reads and clears the slot at construction, merge-appends the
// captured batch on every non-immediate flush, and clears the slot again
// once the collector confirms delivery. Malformed slot content surfaces as
// ErrMalformed so the caller can log it and continue with an empty slot; it
// is never fatal.
package eventstore

import (
	"context"
	"errors"

	"streamview/telemetry/internal/shared"
)

// ErrMalformed reports that the slot held content that could not be decoded
// as an event array. Callers treat the slot as empty.
var ErrMalformed = errors.New("event store content is malformed")

// Store is the single-slot durable storage used as an at-least-once
// delivery backstop.
type Store interface {
	// Load returns the events currently held in the slot. An empty or
	// missing slot yields a nil slice and nil error.
	Load(ctx context.Context) ([]shared.Event, error)

	// Save replaces the slot contents with the given events.
	Save(ctx context.Context, events []shared.Event) error

	// Clear empties the slot. Clearing an already empty slot is not an
	// error.
	Clear(ctx context.Context) error
}

// Cap truncates events to the most recent max entries, dropping the oldest
// first. A non-positive max leaves events untouched.
func Cap(events []shared.Event, max int) []shared.Event {
	if max <= 0 || len(events) <= max {
		return events
	}
	return events[len(events)-max:]
}
