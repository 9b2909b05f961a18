package eventstore

import (
	"context"
	"sync"

	"streamview/telemetry/internal/shared"
)

// MemoryStore keeps the slot in process memory. It backs tests and demo
// binaries, and is the fallback when a deployment disables file persistence
// but still wants flush semantics exercised.
type MemoryStore struct {
	mu     sync.Mutex
	events []shared.Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]shared.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 {
		return nil, nil
	}
	out := make([]shared.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, events []shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]shared.Event, len(events))
	copy(s.events, events)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
	return nil
}
