package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/eventstore"
	"streamview/telemetry/internal/services/identity"
	"streamview/telemetry/internal/services/signals"
	"streamview/telemetry/internal/services/vitals"
	"streamview/telemetry/internal/shared"
)

// quietLogger keeps test output free of expected warnings.
func quietLogger() *logger.Logger {
	return logger.NewWithLevel("test", "log", io.Discard)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1700000000000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureTransport records delivered batches and can be told to fail or to
// block until the test releases its gate.
type captureTransport struct {
	gate chan struct{}

	mu         sync.Mutex
	fail       bool
	calls      int
	batches    [][]shared.Event
	sessions   []shared.Session
	immediates []bool
}

func (t *captureTransport) SendBatch(ctx context.Context, payload *shared.BatchPayload, immediate bool) error {
	if t.gate != nil {
		<-t.gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if t.fail {
		return errors.New("collector unreachable")
	}

	batch := make([]shared.Event, len(payload.Events))
	copy(batch, payload.Events)
	t.batches = append(t.batches, batch)
	t.sessions = append(t.sessions, payload.Session)
	t.immediates = append(t.immediates, immediate)
	return nil
}

func (t *captureTransport) setFail(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = fail
}

func (t *captureTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func (t *captureTransport) batchCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches)
}

func (t *captureTransport) allBatches() [][]shared.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]shared.Event, len(t.batches))
	copy(out, t.batches)
	return out
}

// eventNames flattens every delivered batch into one name list.
func (t *captureTransport) eventNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for _, batch := range t.batches {
		for _, event := range batch {
			names = append(names, event.Name)
		}
	}
	return names
}

// offline returns a config that never touches network or disk unless a test
// opts back in.
func offline() Config {
	return Config{
		EnableLocalStorage:        Bool(false),
		EnableRemoteTracking:      Bool(false),
		EnablePerformanceTracking: Bool(false),
		FlushInterval:             time.Hour,
		BatchSize:                 1000,
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(Config{}, WithStore(eventstore.NewMemoryStore()), WithLogger(quietLogger()))
	defer m.Destroy()

	config := m.Config()
	assert.True(t, *config.EnableLocalStorage)
	assert.False(t, *config.EnableRemoteTracking)
	assert.True(t, *config.EnablePerformanceTracking)
	assert.True(t, *config.EnableErrorTracking)
	assert.False(t, *config.EnableDebugMode)
	assert.Equal(t, 10, config.BatchSize)
	assert.Equal(t, 30*time.Second, config.FlushInterval)
	assert.Equal(t, 1000, config.MaxStoredEvents)
	assert.Equal(t, 10*time.Second, config.VitalsTimeout)
}

func TestNewStartsSessionWithOnePageView(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	session := m.Session()
	assert.NotEmpty(t, session.ID)
	assert.NotZero(t, session.StartTime)
	assert.Zero(t, session.EndTime)
	assert.Equal(t, 1, session.PageViews)
	assert.Empty(t, session.Events)
}

func TestNewResolvesIdentity(t *testing.T) {
	m := New(offline(),
		WithLogger(quietLogger()),
		WithIdentity(&identity.StaticResolver{UserID: "user_777"}),
	)
	defer m.Destroy()

	assert.Equal(t, "user_777", m.Session().UserID)

	m.Track("video_play", nil, shared.CategoryVideo)
	assert.Equal(t, "user_777", m.Events()[0].UserID)
}

func TestNewSwallowsIdentityFailure(t *testing.T) {
	m := New(offline(),
		WithLogger(quietLogger()),
		WithIdentity(&identity.StaticResolver{}),
	)
	defer m.Destroy()

	assert.Empty(t, m.Session().UserID)
}

func TestTrackStampsContext(t *testing.T) {
	env := &StaticEnvironment{
		URL:            "https://streamview.example/feed",
		Agent:          "Mozilla/5.0 (test)",
		Ref:            "https://google.example",
		ViewportWidth:  1280,
		ViewportHeight: 720,
		ScreenWidth:    1920,
		ScreenHeight:   1080,
	}
	m := New(offline(), WithLogger(quietLogger()), WithEnvironment(env))
	defer m.Destroy()

	m.Track("click", shared.Properties{"element": "subscribe", "url": "attacker"}, shared.CategoryUserAction)

	event := m.Events()[0]
	assert.Equal(t, "subscribe", event.Properties["element"])
	assert.Equal(t, "https://streamview.example/feed", event.Properties["url"], "injected url wins over caller value")
	assert.Equal(t, "Mozilla/5.0 (test)", event.Properties["userAgent"])
	assert.Equal(t, map[string]any{"width": 1280, "height": 720}, event.Properties["viewport"])
	assert.Equal(t, map[string]any{"width": 1920, "height": 1080}, event.Properties["screen"])
	assert.Equal(t, m.Session().ID, event.SessionID)
	assert.NotEmpty(t, event.ID)
}

func TestTrackDefaultsCategoryToUserAction(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	m.Track("mystery", nil, "")

	assert.Equal(t, shared.CategoryUserAction, m.Events()[0].Category)
}

func TestTimestampsNeverDecrease(t *testing.T) {
	clock := newFakeClock()
	m := New(offline(), WithLogger(quietLogger()), WithClock(clock))
	defer m.Destroy()

	m.Track("first", nil, shared.CategoryUserAction)
	clock.Advance(-2 * time.Second)
	m.Track("second", nil, shared.CategoryUserAction)
	clock.Advance(5 * time.Second)
	m.Track("third", nil, shared.CategoryUserAction)

	events := m.Events()
	assert.Equal(t, events[0].Timestamp, events[1].Timestamp, "clock stepping back must not decrease timestamps")
	assert.Greater(t, events[2].Timestamp, events[1].Timestamp)
}

func TestAutoFlushAtBatchSize(t *testing.T) {
	transport := &captureTransport{}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	config.BatchSize = 3
	m := New(config, WithLogger(quietLogger()), WithTransport(transport))
	defer m.Destroy()

	m.Track("a", nil, shared.CategoryUserAction)
	m.Track("b", nil, shared.CategoryUserAction)
	assert.Equal(t, 0, transport.callCount(), "below the threshold nothing is sent")

	m.Track("c", nil, shared.CategoryUserAction)

	require.Eventually(t, func() bool {
		return transport.batchCount() == 1 && m.PendingEvents() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, transport.callCount(), "exactly one automatic flush")
	assert.Equal(t, []string{"a", "b", "c"}, transport.eventNames())

	m.Track("d", nil, shared.CategoryUserAction)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, transport.callCount(), "next event below threshold does not flush")
}

func TestConcurrentFlushesPartitionDisjointly(t *testing.T) {
	transport := &captureTransport{gate: make(chan struct{})}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport))

	for i := 0; i < 3; i++ {
		m.Track(fmt.Sprintf("first_%d", i), nil, shared.CategoryUserAction)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Flush(context.Background(), false)
	}()

	// First flush has captured the queue and is blocked in SendBatch; the
	// next three events belong to the second flush.
	require.Eventually(t, func() bool { return m.PendingEvents() == 0 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		m.Track(fmt.Sprintf("second_%d", i), nil, shared.CategoryUserAction)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.Flush(context.Background(), false)
	}()

	transport.gate <- struct{}{}
	transport.gate <- struct{}{}
	wg.Wait()

	batches := transport.allBatches()
	require.Len(t, batches, 2)

	seen := map[string]int{}
	for _, batch := range batches {
		assert.Len(t, batch, 3)
		for _, event := range batch {
			seen[event.Name]++
		}
	}
	assert.Len(t, seen, 6, "the two batches are disjoint")
	for name, count := range seen {
		assert.Equal(t, 1, count, "event %s delivered by exactly one batch", name)
	}
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	transport := &captureTransport{}
	store := eventstore.NewMemoryStore()
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	config.EnableLocalStorage = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport), WithStore(store))
	defer m.Destroy()

	require.NoError(t, m.Flush(context.Background(), false))
	assert.Equal(t, 0, transport.callCount())
}

func TestFlushPersistsBeforeSending(t *testing.T) {
	transport := &captureTransport{fail: true}
	store := eventstore.NewMemoryStore()
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	config.EnableLocalStorage = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport), WithStore(store))

	for i := 0; i < 5; i++ {
		m.Track(fmt.Sprintf("evt_%d", i), nil, shared.CategoryUserAction)
	}
	err := m.Flush(context.Background(), false)
	require.Error(t, err)

	stored, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Len(t, stored, 5, "failed delivery leaves the batch in the backstop")
	assert.Equal(t, 5, m.PendingEvents(), "and re-queued in memory")
}

func TestBackstopCapDropsOldest(t *testing.T) {
	store := eventstore.NewMemoryStore()
	config := offline()
	config.EnableLocalStorage = Bool(true)
	config.MaxStoredEvents = 10
	m := New(config, WithLogger(quietLogger()), WithStore(store))
	defer m.Destroy()

	for i := 0; i < 13; i++ {
		m.Track(fmt.Sprintf("evt_%02d", i), nil, shared.CategoryUserAction)
	}
	require.NoError(t, m.Flush(context.Background(), false))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 10)
	assert.Equal(t, "evt_03", stored[0].Name, "oldest events dropped first")
	assert.Equal(t, "evt_12", stored[9].Name)
}

func TestFailedBatchRedeliveredInOrder(t *testing.T) {
	transport := &captureTransport{fail: true}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport))
	defer m.Destroy()

	m.Track("a", nil, shared.CategoryUserAction)
	m.Track("b", nil, shared.CategoryUserAction)
	m.Track("c", nil, shared.CategoryUserAction)
	require.Error(t, m.Flush(context.Background(), false))

	m.Track("d", nil, shared.CategoryUserAction)

	transport.setFail(false)
	require.NoError(t, m.Flush(context.Background(), false))

	assert.Equal(t, []string{"a", "b", "c", "d"}, transport.eventNames(),
		"failed batch precedes later events, in original order")
}

func TestSuccessfulDeliveryClearsBackstop(t *testing.T) {
	transport := &captureTransport{}
	store := eventstore.NewMemoryStore()
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	config.EnableLocalStorage = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport), WithStore(store))
	defer m.Destroy()

	m.Track("a", nil, shared.CategoryUserAction)
	m.Track("b", nil, shared.CategoryUserAction)
	require.NoError(t, m.Flush(context.Background(), false))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 1, transport.batchCount())
}

func TestRemoteDisabledKeepsEventsInBackstopOnly(t *testing.T) {
	transport := &captureTransport{}
	store := eventstore.NewMemoryStore()
	config := offline()
	config.EnableLocalStorage = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport), WithStore(store))
	defer m.Destroy()

	m.Track("a", nil, shared.CategoryUserAction)
	require.NoError(t, m.Flush(context.Background(), false))

	assert.Equal(t, 0, transport.callCount())
	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestListenerPanicIsolation(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	var received []shared.Event
	m.Subscribe(func(event shared.Event) {
		panic("listener bug")
	})
	m.Subscribe(func(event shared.Event) {
		received = append(received, event)
	})

	require.NotPanics(t, func() {
		m.Track("video_play", nil, shared.CategoryVideo)
	})

	require.Len(t, received, 1, "well-behaved listener still runs")
	assert.Equal(t, "video_play", received[0].Name)
	assert.Len(t, m.Events(), 1, "track completed despite the panic")
}

func TestSubscribersNotifiedInRegistrationOrder(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	var order []string
	m.Subscribe(func(event shared.Event) { order = append(order, "first") })
	m.Subscribe(func(event shared.Event) { order = append(order, "second") })

	m.Track("click", nil, shared.CategoryUserAction)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	calls := 0
	unsubscribe := m.Subscribe(func(event shared.Event) { calls++ })

	m.Track("a", nil, shared.CategoryUserAction)
	unsubscribe()
	m.Track("b", nil, shared.CategoryUserAction)

	assert.Equal(t, 1, calls)
}

func TestEventsCategoryFilter(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	m.Track("video_play", nil, shared.CategoryVideo)
	m.Track("click", nil, shared.CategoryUserAction)
	m.Track("video_pause", nil, shared.CategoryVideo)
	m.Track("search", nil, shared.CategoryUserAction)

	videoEvents := m.Events(shared.CategoryVideo)
	require.Len(t, videoEvents, 2)
	assert.Equal(t, "video_play", videoEvents[0].Name)
	assert.Equal(t, "video_pause", videoEvents[1].Name)

	assert.Len(t, m.Events(), 4, "no filter returns everything")
}

func TestStatsExample(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	stats := m.Stats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 1, stats.PageViews)
	require.Len(t, stats.ByCategory, len(shared.Categories), "every category is present")
	for category, count := range stats.ByCategory {
		assert.Zero(t, count, "category %s starts at zero", category)
	}

	m.TrackEngagement("like", nil)

	stats = m.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByCategory[shared.CategoryEngagement])
}

func TestStatsSessionDuration(t *testing.T) {
	clock := newFakeClock()
	m := New(offline(), WithLogger(quietLogger()), WithClock(clock))
	defer m.Destroy()

	clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, m.Stats().SessionDuration)
}

func TestEndToEndBatchSizeTwo(t *testing.T) {
	store := &countingStore{Store: eventstore.NewMemoryStore()}
	m := New(Config{
		EnableRemoteTracking: Bool(false),
		EnableLocalStorage:   Bool(true),
		BatchSize:            2,
		FlushInterval:        time.Hour,
	}, WithLogger(quietLogger()), WithStore(store))
	defer m.Destroy()

	m.Track("a", nil, shared.CategoryUserAction)
	m.Track("b", nil, shared.CategoryUserAction)

	require.Eventually(t, func() bool {
		return m.PendingEvents() == 0
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, 1, store.saveCount(), "exactly one automatic flush")
}

// countingStore counts Save calls to observe flush attempts when no
// transport is configured.
type countingStore struct {
	eventstore.Store

	mu    sync.Mutex
	saves int
}

func (s *countingStore) Save(ctx context.Context, events []shared.Event) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, events)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestRestoresPersistedEventsOnConstruction(t *testing.T) {
	store := eventstore.NewMemoryStore()
	leftover := []shared.Event{
		{ID: "1", Name: "orphan_a", SessionID: "old", Category: shared.CategoryUserAction},
		{ID: "2", Name: "orphan_b", SessionID: "old", Category: shared.CategoryUserAction},
	}
	require.NoError(t, store.Save(context.Background(), leftover))

	config := offline()
	config.EnableLocalStorage = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithStore(store))
	defer m.Destroy()

	assert.Equal(t, 2, m.PendingEvents(), "previous run's events move into the queue")

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored, "the slot is cleared after restore")
}

// malformedStore simulates a backstop holding unparseable content.
type malformedStore struct {
	cleared bool
}

func (s *malformedStore) Load(ctx context.Context) ([]shared.Event, error) {
	return nil, fmt.Errorf("%w: unexpected end of JSON input", eventstore.ErrMalformed)
}

func (s *malformedStore) Save(ctx context.Context, events []shared.Event) error { return nil }

func (s *malformedStore) Clear(ctx context.Context) error {
	s.cleared = true
	return nil
}

func TestMalformedBackstopTreatedAsEmpty(t *testing.T) {
	store := &malformedStore{}
	config := offline()
	config.EnableLocalStorage = Bool(true)

	var m *Manager
	require.NotPanics(t, func() {
		m = New(config, WithLogger(quietLogger()), WithStore(store))
	})
	defer m.Destroy()

	assert.Equal(t, 0, m.PendingEvents())
	assert.True(t, store.cleared, "the slot is cleared even when malformed")
}

func TestEndSessionIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	m := New(offline(), WithLogger(quietLogger()), WithClock(clock))
	defer m.Destroy()

	m.Track("click", nil, shared.CategoryUserAction)

	m.EndSession()
	first := m.Session().EndTime
	require.NotZero(t, first)

	clock.Advance(time.Minute)
	m.EndSession()

	assert.Equal(t, first, m.Session().EndTime, "end time never changes")

	var ends []shared.Event
	for _, event := range m.Events() {
		if event.Name == "session_end" {
			ends = append(ends, event)
		}
	}
	require.Len(t, ends, 1, "session_end emitted exactly once")
	assert.Equal(t, shared.CategoryEngagement, ends[0].Category)
	assert.Equal(t, 1, ends[0].Properties["eventCount"], "count excludes the session_end itself")
}

func TestRouteChangeTracksPageView(t *testing.T) {
	hub := signals.NewHub()
	m := New(offline(), WithLogger(quietLogger()), WithSignals(hub),
		WithEnvironment(&StaticEnvironment{URL: "https://streamview.example/"}))
	defer m.Destroy()

	hub.EmitRouteChange("/watch/dQw4w9WgXcQ")

	session := m.Session()
	assert.Equal(t, 2, session.PageViews)

	events := m.Events(shared.CategoryNavigation)
	require.Len(t, events, 1)
	assert.Equal(t, "page_view", events[0].Name)
	assert.Equal(t, "/watch/dQw4w9WgXcQ", events[0].Properties["page"])
	assert.Equal(t, "/watch/dQw4w9WgXcQ", events[0].Properties["url"], "current url follows navigation")
}

func TestVisibilityHiddenFlushesAsync(t *testing.T) {
	hub := signals.NewHub()
	transport := &captureTransport{}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithSignals(hub), WithTransport(transport))
	defer m.Destroy()

	m.Track("click", nil, shared.CategoryUserAction)
	hub.EmitVisibilityChange(false)

	require.Eventually(t, func() bool {
		return transport.batchCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"click"}, transport.eventNames())
}

func TestBeforeUnloadEndsSessionAndFlushesImmediately(t *testing.T) {
	hub := signals.NewHub()
	transport := &captureTransport{}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithSignals(hub), WithTransport(transport))
	defer m.Destroy()

	m.Track("click", nil, shared.CategoryUserAction)
	hub.EmitBeforeUnload()

	require.NotZero(t, m.Session().EndTime)
	require.Equal(t, 1, transport.batchCount())
	assert.True(t, transport.immediates[0], "unload flush is immediate")
	assert.Equal(t, []string{"click", "session_end"}, transport.eventNames())
}

func TestErrorSignalTracked(t *testing.T) {
	hub := signals.NewHub()
	m := New(offline(), WithLogger(quietLogger()), WithSignals(hub))
	defer m.Destroy()

	hub.EmitError(signals.ErrorInfo{
		Message: "undefined is not a function",
		Source:  "player.js:42",
		Stack:   "at play (player.js:42)",
	})

	events := m.Events(shared.CategoryError)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Name)
	assert.Equal(t, "undefined is not a function", events[0].Properties["message"])
	assert.Equal(t, "player.js:42", events[0].Properties["source"])
}

func TestErrorTrackingDisabled(t *testing.T) {
	hub := signals.NewHub()
	config := offline()
	config.EnableErrorTracking = Bool(false)
	m := New(config, WithLogger(quietLogger()), WithSignals(hub))
	defer m.Destroy()

	hub.EmitError(signals.ErrorInfo{Message: "boom"})

	assert.Empty(t, m.Events(shared.CategoryError))
}

func TestWebVitalsObserved(t *testing.T) {
	// Two metrics report; the rest answer unavailable immediately so the
	// test never waits on the observation timeout.
	source := vitals.NewStaticSource(map[vitals.Metric]float64{
		vitals.LCP: 1200,
		vitals.CLS: 0.05,
	})
	config := offline()
	config.EnablePerformanceTracking = Bool(true)
	config.VitalsTimeout = time.Second
	m := New(config, WithLogger(quietLogger()), WithVitals(source))
	defer m.Destroy()

	require.Eventually(t, func() bool {
		return len(m.Events(shared.CategoryPerformance)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	byMetric := map[string]shared.Event{}
	for _, event := range m.Events(shared.CategoryPerformance) {
		assert.Equal(t, "performance_metric", event.Name)
		byMetric[event.Properties["metric"].(string)] = event
	}
	require.Contains(t, byMetric, "LCP")
	require.Contains(t, byMetric, "CLS")
	assert.Equal(t, 1200.0, byMetric["LCP"].Properties["value"])
	assert.Equal(t, "good", byMetric["LCP"].Properties["rating"])
}

func TestPerformanceTrackingDisabled(t *testing.T) {
	source := vitals.NewStaticSource(map[vitals.Metric]float64{vitals.LCP: 1200})
	m := New(offline(), WithLogger(quietLogger()), WithVitals(source))
	defer m.Destroy()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.Events(shared.CategoryPerformance))
}

func TestIdentifyOverwrites(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	m.Track("before", nil, shared.CategoryUserAction)
	m.Identify("user_1")
	m.Track("after", nil, shared.CategoryUserAction)
	m.Identify("user_2")
	m.Track("later", nil, shared.CategoryUserAction)

	events := m.Events()
	assert.Empty(t, events[0].UserID)
	assert.Equal(t, "user_1", events[1].UserID)
	assert.Equal(t, "user_2", events[2].UserID)
	assert.Equal(t, "user_2", m.Session().UserID)
}

func TestDestroyFlushesPendingImmediately(t *testing.T) {
	transport := &captureTransport{}
	config := offline()
	config.EnableRemoteTracking = Bool(true)
	m := New(config, WithLogger(quietLogger()), WithTransport(transport))

	m.Track("click", nil, shared.CategoryUserAction)
	m.Destroy()

	require.Equal(t, 1, transport.batchCount())
	assert.True(t, transport.immediates[0])
	assert.Equal(t, []string{"click", "session_end"}, transport.eventNames())
	assert.NotZero(t, m.Session().EndTime)

	// Second destroy is a no-op.
	m.Destroy()
	assert.Equal(t, 1, transport.batchCount())
}

func TestDestroyDetachesSignalListeners(t *testing.T) {
	hub := signals.NewHub()
	m := New(offline(), WithLogger(quietLogger()), WithSignals(hub))

	m.Destroy()
	before := len(m.Events())

	hub.EmitRouteChange("/after-destroy")
	hub.EmitError(signals.ErrorInfo{Message: "late"})

	assert.Len(t, m.Events(), before, "detached listeners record nothing")
}

func TestSessionSnapshotIsACopy(t *testing.T) {
	m := New(offline(), WithLogger(quietLogger()))
	defer m.Destroy()

	m.Track("click", nil, shared.CategoryUserAction)

	snapshot := m.Session()
	snapshot.Events[0].Name = "tampered"
	snapshot.PageViews = 99

	assert.Equal(t, "click", m.Events()[0].Name)
	assert.Equal(t, 1, m.Session().PageViews)
}
