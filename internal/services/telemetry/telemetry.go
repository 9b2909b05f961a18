// Package telemetry implements the client-side analytics pipeline: one
// session per Manager, synchronous tracking into an in-memory queue, and
// batched delivery to a remote collector with a durable local backstop.
//
// Delivery is at-least-once on the happy path and best-effort otherwise. A
// failed batch is re-queued at the front with no backoff and no retry cap;
// under a sustained outage the capped backstop silently drops the oldest
// events. Collectors must dedup by event id because a crash between the
// backstop write and the delivery acknowledgment redelivers events, and
// front-of-queue retries can arrive out of order.
//
// Telemetry must never crash or block its host: Track and the convenience
// wrappers swallow every internal failure, reporting through the logger only.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/collector"
	"streamview/telemetry/internal/services/eventstore"
	"streamview/telemetry/internal/services/identity"
	"streamview/telemetry/internal/services/sessionid"
	"streamview/telemetry/internal/services/signals"
	"streamview/telemetry/internal/services/vitals"
	"streamview/telemetry/internal/shared"
)

const (
	identityTimeout = 3 * time.Second
	storeTimeout    = 5 * time.Second
)

// Listener observes every tracked event. Listeners run synchronously on the
// tracking goroutine in registration order; a panicking listener is recovered
// and logged without affecting other listeners or the Track caller.
type Listener func(event shared.Event)

type subscriber struct {
	id int
	fn Listener
}

// Manager owns one client session and the delivery-pending event queue.
// Construct one per application lifetime with New and release it with
// Destroy.
type Manager struct {
	config Config

	logger    *logger.Logger
	clock     Clock
	env       EnvironmentInfo
	store     eventstore.Store
	transport collector.Transport
	signals   signals.Source
	vitals    vitals.Source
	identity  identity.Resolver

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu            sync.Mutex
	session       *shared.Session
	queue         []shared.Event
	currentURL    string
	lastTimestamp int64
	destroyed     bool

	subMu       sync.Mutex
	nextSubID   int
	subscribers []subscriber

	unsubscribes []func()

	stopTicker chan struct{}
	wg         sync.WaitGroup
}

// Option injects a collaborator into a Manager under construction.
type Option func(*Manager)

// WithStore sets the durable event backstop.
func WithStore(store eventstore.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithTransport sets the batch delivery transport.
func WithTransport(transport collector.Transport) Option {
	return func(m *Manager) { m.transport = transport }
}

// WithSignals sets the host signal source.
func WithSignals(source signals.Source) Option {
	return func(m *Manager) { m.signals = source }
}

// WithIdentity sets the resolver consulted once at session start.
func WithIdentity(resolver identity.Resolver) Option {
	return func(m *Manager) { m.identity = resolver }
}

// WithVitals sets the web-vitals source observed when performance tracking
// is enabled.
func WithVitals(source vitals.Source) Option {
	return func(m *Manager) { m.vitals = source }
}

// WithEnvironment sets the host environment descriptor.
func WithEnvironment(env EnvironmentInfo) Option {
	return func(m *Manager) { m.env = env }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) { m.logger = log }
}

// WithClock sets the timestamp source.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// New constructs a Manager: merges config with defaults, starts a fresh
// session, registers signal listeners, starts the periodic flush ticker, and
// restores any persisted undelivered events into the queue. It never fails;
// missing collaborators degrade the corresponding feature.
func New(config Config, opts ...Option) *Manager {
	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	m := &Manager{
		config:     config.withDefaults(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		stopTicker: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logger.New("telemetry")
	}
	if m.clock == nil {
		m.clock = RealClock{}
	}
	if m.env == nil {
		m.env = HostEnvironment()
	}
	if m.signals == nil {
		m.signals = signals.NewHub()
	}
	if m.store == nil && *m.config.EnableLocalStorage {
		path, err := eventstore.DefaultPath()
		if err != nil {
			m.logger.Warnf("local event backstop unavailable: %v", err)
		} else {
			m.store = eventstore.NewFileStore(path)
		}
	}
	if m.transport == nil && m.config.APIEndpoint != "" {
		m.transport = collector.NewClient(m.config.APIEndpoint, m.config.APIKey, m.logger)
	}

	m.session = m.newSession()
	m.currentURL = m.env.CurrentURL()

	m.registerSignalListeners()
	if *m.config.EnablePerformanceTracking && m.vitals != nil {
		m.observeVitals()
	}

	m.wg.Add(1)
	go m.flushLoop()

	m.restorePersisted()

	return m
}

func (m *Manager) newSession() *shared.Session {
	session := &shared.Session{
		ID:        sessionid.New(),
		StartTime: m.clock.Now().UnixMilli(),
		PageViews: 1,
		UserAgent: m.env.UserAgent(),
		Referrer:  m.env.Referrer(),
	}

	if m.identity != nil {
		ctx, cancel := context.WithTimeout(m.lifeCtx, identityTimeout)
		defer cancel()

		userID, err := m.identity.ResolveUserID(ctx)
		if err != nil {
			m.logger.Debug("session stays anonymous", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			session.UserID = userID
		}
	}

	return session
}

func (m *Manager) registerSignalListeners() {
	m.unsubscribes = append(m.unsubscribes,
		m.signals.OnVisibilityChange(func(visible bool) {
			if visible {
				return
			}
			go func() {
				_ = m.Flush(m.lifeCtx, false)
			}()
		}),
		m.signals.OnBeforeUnload(func() {
			m.EndSession()
			_ = m.Flush(context.Background(), true)
		}),
		m.signals.OnRouteChange(func(path string) {
			m.mu.Lock()
			m.currentURL = path
			m.session.PageViews++
			m.mu.Unlock()

			m.TrackPageView(path, nil)
		}),
	)

	if *m.config.EnableErrorTracking {
		m.unsubscribes = append(m.unsubscribes, m.signals.OnError(func(info signals.ErrorInfo) {
			m.TrackError(info.Message, shared.Properties{
				"source": info.Source,
				"stack":  info.Stack,
			})
		}))
	}
}

// observeVitals starts one goroutine per metric. Each observation is one-shot
// and bounded by VitalsTimeout; metrics the source never reports are dropped
// silently.
func (m *Manager) observeVitals() {
	for _, metric := range vitals.Metrics() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()

			ctx, cancel := context.WithTimeout(m.lifeCtx, m.config.VitalsTimeout)
			defer cancel()

			measurement, err := m.vitals.Observe(ctx, metric)
			if err != nil {
				m.logger.Debug("web vital not observed", map[string]interface{}{
					"metric": string(metric),
					"error":  err.Error(),
				})
				return
			}

			m.TrackPerformance(string(measurement.Metric), measurement.Value, shared.Properties{
				"rating": measurement.Rating(),
			})
		}()
	}
}

func (m *Manager) flushLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.Flush(m.lifeCtx, false)
		case <-m.stopTicker:
			return
		}
	}
}

// restorePersisted moves events left behind by a previous run into the live
// queue and clears the slot. Malformed content is treated as empty.
func (m *Manager) restorePersisted() {
	if m.store == nil || !*m.config.EnableLocalStorage {
		return
	}

	ctx, cancel := context.WithTimeout(m.lifeCtx, storeTimeout)
	defer cancel()

	stored, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, eventstore.ErrMalformed) {
			m.logger.Warn("discarding malformed event backstop")
		} else {
			m.logger.Warnf("failed to load event backstop: %v", err)
		}
	}

	if len(stored) > 0 {
		m.mu.Lock()
		m.queue = append(stored, m.queue...)
		m.mu.Unlock()
		m.logger.Infof("restored %d undelivered events", len(stored))
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warnf("failed to clear event backstop: %v", err)
	}
}

// Track records one event: stamps context and timestamp, appends it to the
// queue and the session log, notifies subscribers, and triggers an
// asynchronous flush when the queue reaches BatchSize. It is synchronous,
// safe for concurrent use, and never fails.
func (m *Manager) Track(name string, properties shared.Properties, category shared.Category) {
	if category == "" {
		category = shared.CategoryUserAction
	}

	m.mu.Lock()
	event := m.buildEventLocked(name, properties, category)
	m.queue = append(m.queue, event)
	m.session.Events = append(m.session.Events, event)
	shouldFlush := len(m.queue) >= m.config.BatchSize
	m.mu.Unlock()

	m.notify(event)

	if *m.config.EnableDebugMode {
		m.logger.Debug("event tracked", event)
	}

	if shouldFlush {
		go func() {
			_ = m.Flush(m.lifeCtx, false)
		}()
	}
}

// buildEventLocked stamps the event context. Injected keys win over
// caller-supplied ones; timestamps never decrease within the session even if
// the clock steps backwards.
func (m *Manager) buildEventLocked(name string, properties shared.Properties, category shared.Category) shared.Event {
	props := shared.NormalizeProperties(properties)
	if props == nil {
		props = shared.Properties{}
	}
	props["url"] = m.currentURL
	props["userAgent"] = m.session.UserAgent
	viewportWidth, viewportHeight := m.env.Viewport()
	props["viewport"] = map[string]any{"width": viewportWidth, "height": viewportHeight}
	screenWidth, screenHeight := m.env.Screen()
	props["screen"] = map[string]any{"width": screenWidth, "height": screenHeight}

	timestamp := m.clock.Now().UnixMilli()
	if timestamp < m.lastTimestamp {
		timestamp = m.lastTimestamp
	}
	m.lastTimestamp = timestamp

	return shared.Event{
		ID:         uuid.NewString(),
		Name:       name,
		Properties: props,
		Timestamp:  timestamp,
		SessionID:  m.session.ID,
		UserID:     m.session.UserID,
		Category:   category,
	}
}

func (m *Manager) notify(event shared.Event) {
	m.subMu.Lock()
	subs := make([]subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.subMu.Unlock()

	for _, sub := range subs {
		m.safeNotify(sub.fn, event)
	}
}

func (m *Manager) safeNotify(listener Listener, event shared.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warnf("telemetry listener panicked on %q: %v", event.Name, r)
		}
	}()
	listener(event)
}

// Flush attempts to deliver everything currently queued as one batch.
//
// The queue is captured-and-cleared up front, so concurrent flushes partition
// events disjointly. Non-immediate flushes write the captured batch to the
// backstop before any transmission attempt. When remote tracking is off or no
// transport is configured the batch stays in the backstop only. On delivery
// failure the batch returns to the front of the queue in order; on success
// the backstop is cleared. Immediate flushes skip the backstop write and use
// transport semantics that survive the manager's own teardown.
func (m *Manager) Flush(ctx context.Context, immediate bool) error {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.queue
	m.queue = nil
	sessionSnapshot := m.snapshotSessionLocked()
	m.mu.Unlock()

	persist := m.store != nil && *m.config.EnableLocalStorage
	if persist && !immediate {
		m.persistBatch(ctx, batch)
	}

	if !*m.config.EnableRemoteTracking || m.transport == nil {
		return nil
	}

	payload := &shared.BatchPayload{
		Events:  batch,
		Session: sessionSnapshot,
	}
	if err := m.transport.SendBatch(ctx, payload, immediate); err != nil {
		m.logger.Warnf("failed to deliver %d events: %v", len(batch), err)
		m.requeueFront(batch)
		return fmt.Errorf("send batch: %w", err)
	}

	if persist {
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warnf("failed to clear event backstop: %v", err)
		}
	}

	return nil
}

// persistBatch merge-appends the batch onto the stored slot and truncates to
// the most recent MaxStoredEvents. Store failures are logged and swallowed;
// the batch still rides the in-memory retry path.
func (m *Manager) persistBatch(ctx context.Context, batch []shared.Event) {
	stored, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, eventstore.ErrMalformed) {
			m.logger.Warn("discarding malformed event backstop")
		} else {
			m.logger.Warnf("failed to read event backstop: %v", err)
		}
		stored = nil
	}

	merged := make([]shared.Event, 0, len(stored)+len(batch))
	merged = append(merged, stored...)
	merged = append(merged, batch...)
	merged = eventstore.Cap(merged, m.config.MaxStoredEvents)

	if err := m.store.Save(ctx, merged); err != nil {
		m.logger.Warnf("failed to persist %d events: %v", len(merged), err)
	}
}

func (m *Manager) requeueFront(batch []shared.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := make([]shared.Event, 0, len(batch)+len(m.queue))
	requeued = append(requeued, batch...)
	requeued = append(requeued, m.queue...)
	m.queue = requeued
}

// EndSession stamps the session end time and emits one final session_end
// event carrying duration, page views, and event count. Calls after the
// first are no-ops.
func (m *Manager) EndSession() {
	m.mu.Lock()
	if m.session.EndTime != 0 {
		m.mu.Unlock()
		return
	}

	endTime := m.clock.Now().UnixMilli()
	if endTime < m.lastTimestamp {
		endTime = m.lastTimestamp
	}
	m.session.EndTime = endTime

	duration := m.session.EndTime - m.session.StartTime
	pageViews := m.session.PageViews
	eventCount := len(m.session.Events)
	m.mu.Unlock()

	m.Track("session_end", shared.Properties{
		"duration":   duration,
		"pageViews":  pageViews,
		"eventCount": eventCount,
	}, shared.CategoryEngagement)
}

// Identify attributes the session to a user. Later calls overwrite; events
// tracked from now on carry the new id.
func (m *Manager) Identify(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.UserID = userID
}

// Subscribe registers a listener invoked synchronously on every tracked
// event. The returned function removes it; calling it more than once is
// harmless.
func (m *Manager) Subscribe(listener Listener) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: listener})

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, sub := range m.subscribers {
			if sub.id == id {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Destroy releases the manager: ends the session, forces one immediate
// flush, stops the ticker, detaches signal listeners, and clears
// subscribers. At most one call has effect.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.mu.Unlock()

	m.EndSession()
	_ = m.Flush(context.Background(), true)

	close(m.stopTicker)
	m.lifeCancel()

	for _, unsubscribe := range m.unsubscribes {
		unsubscribe()
	}
	m.unsubscribes = nil

	m.subMu.Lock()
	m.subscribers = nil
	m.subMu.Unlock()

	m.wg.Wait()
}

// Session returns a snapshot copy of the current session.
func (m *Manager) Session() shared.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotSessionLocked()
}

func (m *Manager) snapshotSessionLocked() shared.Session {
	snapshot := *m.session
	snapshot.Events = make([]shared.Event, len(m.session.Events))
	copy(snapshot.Events, m.session.Events)
	return snapshot
}

// Events returns the session's events in insertion order, optionally
// filtered to the given categories.
func (m *Manager) Events(categories ...shared.Category) []shared.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(categories) == 0 {
		out := make([]shared.Event, len(m.session.Events))
		copy(out, m.session.Events)
		return out
	}

	var out []shared.Event
	for _, event := range m.session.Events {
		for _, category := range categories {
			if event.Category == category {
				out = append(out, event)
				break
			}
		}
	}
	return out
}

// Stats summarizes the session's event log.
type Stats struct {
	Total           int
	PageViews       int
	ByCategory      map[shared.Category]int
	SessionDuration time.Duration
}

// Stats computes the current session statistics. Every category appears in
// ByCategory even when its count is zero.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCategory := make(map[shared.Category]int, len(shared.Categories))
	for _, category := range shared.Categories {
		byCategory[category] = 0
	}
	for _, event := range m.session.Events {
		byCategory[event.Category]++
	}

	end := m.session.EndTime
	if end == 0 {
		end = m.clock.Now().UnixMilli()
	}

	return Stats{
		Total:           len(m.session.Events),
		PageViews:       m.session.PageViews,
		ByCategory:      byCategory,
		SessionDuration: time.Duration(end-m.session.StartTime) * time.Millisecond,
	}
}

// PendingEvents reports how many events are queued for the next flush.
func (m *Manager) PendingEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Config returns the effective configuration after defaults were applied.
func (m *Manager) Config() Config {
	return m.config
}
