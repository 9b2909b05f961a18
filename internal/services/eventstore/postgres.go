package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamview/telemetry/internal/shared"
)

// PGStore keeps the slot in a Postgres row, for deployments where the
// embedding application already runs against Postgres and wants the backstop
// to survive host restarts and filesystem loss. Each slot key is one row in
// telemetry_backstop.
type PGStore struct {
	pool *pgxpool.Pool
	slot string
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a PGStore writing to the given slot key.
func NewPGStore(pool *pgxpool.Pool, slot string) *PGStore {
	if slot == "" {
		slot = "default"
	}
	return &PGStore{pool: pool, slot: slot}
}

func (s *PGStore) Load(ctx context.Context) ([]shared.Event, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT events FROM telemetry_backstop WHERE slot = $1`, s.slot).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load event slot %s: %w", s.slot, err)
	}

	var events []shared.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return events, nil
}

func (s *PGStore) Save(ctx context.Context, events []shared.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode event slot %s: %w", s.slot, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry_backstop (slot, events)
		VALUES ($1, $2)
		ON CONFLICT (slot) DO UPDATE SET events = EXCLUDED.events, updated_at = NOW()
	`, s.slot, data)
	if err != nil {
		return fmt.Errorf("failed to save event slot %s: %w", s.slot, err)
	}
	return nil
}

func (s *PGStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM telemetry_backstop WHERE slot = $1`, s.slot)
	if err != nil {
		return fmt.Errorf("failed to clear event slot %s: %w", s.slot, err)
	}
	return nil
}
