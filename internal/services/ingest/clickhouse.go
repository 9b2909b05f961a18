package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/shared"
)

// ClickHouseConfig carries the connection settings for the analytics
// warehouse. Addr is host:port of the native TCP endpoint.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseConfigFromEnv reads CLICKHOUSE_ADDR, CLICKHOUSE_DATABASE,
// CLICKHOUSE_USERNAME and CLICKHOUSE_PASSWORD. Database defaults to
// "default" when unset.
func ClickHouseConfigFromEnv() ClickHouseConfig {
	config := ClickHouseConfig{
		Addr:     os.Getenv("CLICKHOUSE_ADDR"),
		Database: os.Getenv("CLICKHOUSE_DATABASE"),
		Username: os.Getenv("CLICKHOUSE_USERNAME"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
	if config.Database == "" {
		config.Database = "default"
	}
	return config
}

// ClickHouseWarehouse stores events and session snapshots in ClickHouse.
// Events live in a ReplacingMergeTree keyed by (session_id, event_id);
// insert-time dedup keeps replayed ids out, the engine collapses whatever
// races through. Session snapshots use last-write-wins by receipt time.
type ClickHouseWarehouse struct {
	conn   clickhouse.Conn
	logger *logger.Logger
}

var _ Warehouse = (*ClickHouseWarehouse)(nil)

// NewClickHouseWarehouse opens and pings a native TCP connection.
func NewClickHouseWarehouse(config ClickHouseConfig, log *logger.Logger) (*ClickHouseWarehouse, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("clickhouse address is not set")
	}
	if log == nil {
		log = logger.New("clickhouse")
	}

	options := &clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "streamview-collector", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	log.Infof("connected to clickhouse at %s (database %s)", config.Addr, config.Database)
	return &ClickHouseWarehouse{conn: conn, logger: log}, nil
}

// EnsureSchema creates the event and session tables when they do not
// exist yet. Timestamps are stored as millisecond epochs to match the
// wire contract exactly.
func (w *ClickHouseWarehouse) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_events (
			event_id    String,
			event_name  String,
			category    String,
			session_id  String,
			user_id     String,
			timestamp   Int64,
			received_at Int64,
			remote_addr String,
			properties  String
		) ENGINE = ReplacingMergeTree
		ORDER BY (session_id, event_id)`,
		`CREATE TABLE IF NOT EXISTS telemetry_sessions (
			session_id String,
			start_time Int64,
			end_time   Int64,
			page_views Int32,
			user_agent String,
			referrer   String,
			user_id    String,
			updated_at Int64
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY session_id`,
	}
	for _, statement := range statements {
		if err := w.conn.Exec(ctx, statement); err != nil {
			return fmt.Errorf("create warehouse table: %w", err)
		}
	}
	return nil
}

func (w *ClickHouseWarehouse) InsertEvents(ctx context.Context, session shared.Session, events []StoredEvent) (int, error) {
	if session.ID != "" {
		if err := w.upsertSession(ctx, session); err != nil {
			return 0, err
		}
	}
	if len(events) == 0 {
		return 0, nil
	}

	fresh, err := w.filterNew(ctx, events)
	if err != nil {
		return 0, err
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO telemetry_events (
			event_id, event_name, category, session_id, user_id,
			timestamp, received_at, remote_addr, properties
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare event batch: %w", err)
	}

	for _, event := range fresh {
		properties := "{}"
		if len(event.Properties) > 0 {
			encoded, err := json.Marshal(event.Properties)
			if err != nil {
				w.logger.Warnf("marshal properties of event %s: %v", event.ID, err)
			} else {
				properties = string(encoded)
			}
		}
		err := batch.Append(
			event.ID,
			event.Name,
			string(event.Category),
			event.SessionID,
			event.UserID,
			event.Timestamp,
			event.ReceivedAt,
			event.RemoteAddr,
			properties,
		)
		if err != nil {
			w.logger.Warnf("append event %s to batch: %v", event.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send event batch: %w", err)
	}
	return len(fresh), nil
}

// filterNew drops events whose id is already stored, and duplicates
// within the batch itself.
func (w *ClickHouseWarehouse) filterNew(ctx context.Context, events []StoredEvent) ([]StoredEvent, error) {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		if event.ID != "" {
			ids = append(ids, event.ID)
		}
	}

	existing := make(map[string]bool, len(ids))
	if len(ids) > 0 {
		rows, err := w.conn.Query(ctx, `SELECT DISTINCT event_id FROM telemetry_events WHERE event_id IN (?)`, ids)
		if err != nil {
			return nil, fmt.Errorf("query existing event ids: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scan existing event id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate existing event ids: %w", err)
		}
	}

	fresh := make([]StoredEvent, 0, len(events))
	for _, event := range events {
		if event.ID == "" || existing[event.ID] {
			continue
		}
		existing[event.ID] = true
		fresh = append(fresh, event)
	}
	return fresh, nil
}

func (w *ClickHouseWarehouse) upsertSession(ctx context.Context, session shared.Session) error {
	err := w.conn.Exec(ctx, `
		INSERT INTO telemetry_sessions (
			session_id, start_time, end_time, page_views,
			user_agent, referrer, user_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.StartTime,
		session.EndTime,
		int32(session.PageViews),
		session.UserAgent,
		session.Referrer,
		session.UserID,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store session snapshot: %w", err)
	}
	return nil
}

func (w *ClickHouseWarehouse) Stats(ctx context.Context) (*StatsReport, error) {
	report := &StatsReport{
		ByCategory: make(map[shared.Category]int64, len(shared.Categories)),
		ByName:     make(map[string]int64),
	}
	for _, category := range shared.Categories {
		report.ByCategory[category] = 0
	}

	var total uint64
	if err := w.conn.QueryRow(ctx, `SELECT count() FROM telemetry_events`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	report.TotalEvents = int64(total)

	var sessions uint64
	err := w.conn.QueryRow(ctx, `
		SELECT uniqExact(session_id) FROM (
			SELECT session_id FROM telemetry_sessions
			UNION DISTINCT
			SELECT session_id FROM telemetry_events
		)
	`).Scan(&sessions)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	report.Sessions = int64(sessions)

	rows, err := w.conn.Query(ctx, `SELECT category, count() FROM telemetry_events GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count events by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count uint64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		report.ByCategory[shared.Category(category)] = int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category counts: %w", err)
	}

	nameRows, err := w.conn.Query(ctx, `SELECT event_name, count() FROM telemetry_events GROUP BY event_name`)
	if err != nil {
		return nil, fmt.Errorf("count events by name: %w", err)
	}
	defer nameRows.Close()
	for nameRows.Next() {
		var name string
		var count uint64
		if err := nameRows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan name count: %w", err)
		}
		report.ByName[name] = int64(count)
	}
	if err := nameRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate name counts: %w", err)
	}

	return report, nil
}

func (w *ClickHouseWarehouse) SessionEvents(ctx context.Context, sessionID string) (shared.Session, []shared.Event, error) {
	var session shared.Session
	found := false

	rows, err := w.conn.Query(ctx, `
		SELECT session_id, start_time, end_time, page_views, user_agent, referrer, user_id
		FROM telemetry_sessions FINAL
		WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return shared.Session{}, nil, fmt.Errorf("query session snapshot: %w", err)
	}
	if rows.Next() {
		var pageViews int32
		err := rows.Scan(
			&session.ID,
			&session.StartTime,
			&session.EndTime,
			&pageViews,
			&session.UserAgent,
			&session.Referrer,
			&session.UserID,
		)
		if err != nil {
			rows.Close()
			return shared.Session{}, nil, fmt.Errorf("scan session snapshot: %w", err)
		}
		session.PageViews = int(pageViews)
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return shared.Session{}, nil, fmt.Errorf("iterate session snapshot: %w", err)
	}

	eventRows, err := w.conn.Query(ctx, `
		SELECT event_id, event_name, category, user_id, timestamp, properties
		FROM telemetry_events
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return shared.Session{}, nil, fmt.Errorf("query session events: %w", err)
	}
	defer eventRows.Close()

	events := make([]shared.Event, 0)
	for eventRows.Next() {
		var event shared.Event
		var category, properties string
		if err := eventRows.Scan(&event.ID, &event.Name, &category, &event.UserID, &event.Timestamp, &properties); err != nil {
			return shared.Session{}, nil, fmt.Errorf("scan session event: %w", err)
		}
		event.SessionID = sessionID
		event.Category = shared.Category(category)
		if properties != "" && properties != "{}" {
			var decoded shared.Properties
			if err := json.Unmarshal([]byte(properties), &decoded); err != nil {
				w.logger.Warnf("decode properties of event %s: %v", event.ID, err)
			} else {
				event.Properties = decoded
			}
		}
		events = append(events, event)
	}
	if err := eventRows.Err(); err != nil {
		return shared.Session{}, nil, fmt.Errorf("iterate session events: %w", err)
	}

	if !found {
		if len(events) == 0 {
			return shared.Session{}, nil, ErrSessionUnknown
		}
		session = shared.Session{ID: sessionID, StartTime: events[0].Timestamp}
	}
	return session, events, nil
}

func (w *ClickHouseWarehouse) Close() error {
	return w.conn.Close()
}
