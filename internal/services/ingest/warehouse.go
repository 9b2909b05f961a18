package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"streamview/telemetry/internal/shared"
)

// ErrSessionUnknown is returned by SessionEvents when neither a session
// snapshot nor any event has been stored for the requested id.
var ErrSessionUnknown = errors.New("session unknown")

// StoredEvent is an ingested event enriched with server receipt context.
// The client clock stamps Event.Timestamp; ReceivedAt is the collector's
// own clock so skewed or replayed batches stay attributable.
type StoredEvent struct {
	shared.Event
	ReceivedAt int64  `json:"receivedAt"` // milliseconds since epoch, server clock
	RemoteAddr string `json:"remoteAddr"`
}

// StatsReport is the body of GET /api/v1/stats.
type StatsReport struct {
	TotalEvents int64                     `json:"totalEvents"`
	Sessions    int64                     `json:"sessions"`
	ByCategory  map[shared.Category]int64 `json:"byCategory"`
	ByName      map[string]int64          `json:"byName"`
}

// Warehouse persists ingested events and answers the read queries behind
// the stats and report endpoints. Implementations must dedup by event id:
// the SDK re-sends failed batches, so replayed ids are expected traffic,
// not an error.
type Warehouse interface {
	// InsertEvents stores the session snapshot and every event whose id
	// has not been stored before, and reports how many events were newly
	// stored.
	InsertEvents(ctx context.Context, session shared.Session, events []StoredEvent) (int, error)

	// Stats aggregates totals over everything stored so far.
	Stats(ctx context.Context) (*StatsReport, error)

	// SessionEvents returns the stored snapshot for a session and its
	// events ordered by client timestamp. When only events were stored a
	// minimal snapshot is synthesized from them.
	SessionEvents(ctx context.Context, sessionID string) (shared.Session, []shared.Event, error)

	Close() error
}

// MemoryWarehouse keeps everything in process memory. It backs handler
// tests and lets the collector run without a ClickHouse instance; data is
// gone on restart.
type MemoryWarehouse struct {
	mu       sync.Mutex
	events   []StoredEvent
	seen     map[string]bool
	sessions map[string]shared.Session
}

var _ Warehouse = (*MemoryWarehouse)(nil)

func NewMemoryWarehouse() *MemoryWarehouse {
	return &MemoryWarehouse{
		seen:     make(map[string]bool),
		sessions: make(map[string]shared.Session),
	}
}

func (w *MemoryWarehouse) InsertEvents(ctx context.Context, session shared.Session, events []StoredEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if session.ID != "" {
		w.sessions[session.ID] = session
	}

	inserted := 0
	for _, event := range events {
		if event.ID == "" || w.seen[event.ID] {
			continue
		}
		w.seen[event.ID] = true
		w.events = append(w.events, event)
		inserted++
	}
	return inserted, nil
}

func (w *MemoryWarehouse) Stats(ctx context.Context) (*StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	report := &StatsReport{
		TotalEvents: int64(len(w.events)),
		ByCategory:  make(map[shared.Category]int64, len(shared.Categories)),
		ByName:      make(map[string]int64),
	}
	for _, category := range shared.Categories {
		report.ByCategory[category] = 0
	}

	sessionIDs := make(map[string]bool, len(w.sessions))
	for id := range w.sessions {
		sessionIDs[id] = true
	}
	for _, event := range w.events {
		report.ByCategory[event.Category]++
		report.ByName[event.Name]++
		if event.SessionID != "" {
			sessionIDs[event.SessionID] = true
		}
	}
	report.Sessions = int64(len(sessionIDs))
	return report, nil
}

func (w *MemoryWarehouse) SessionEvents(ctx context.Context, sessionID string) (shared.Session, []shared.Event, error) {
	if err := ctx.Err(); err != nil {
		return shared.Session{}, nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	events := make([]shared.Event, 0)
	for _, stored := range w.events {
		if stored.SessionID == sessionID {
			events = append(events, stored.Event)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	session, ok := w.sessions[sessionID]
	if !ok {
		if len(events) == 0 {
			return shared.Session{}, nil, ErrSessionUnknown
		}
		session = shared.Session{ID: sessionID, StartTime: events[0].Timestamp}
	}
	return session, events, nil
}

func (w *MemoryWarehouse) Close() error {
	return nil
}
