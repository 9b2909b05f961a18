// Package posthogsink forwards delivered telemetry batches to PostHog. It
// implements collector.Transport, so a manager can point at PostHog instead
// of (or behind) the first-party collector.
package posthogsink

import (
	"context"
	"fmt"
	"sync"

	"github.com/posthog/posthog-go"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/collector"
	"streamview/telemetry/internal/shared"
)

// Config holds the PostHog connection settings.
type Config struct {
	// ProjectKey is the PostHog project API key. Empty means the sink runs
	// degraded: sends succeed without tracking anything.
	ProjectKey string

	// Host is the PostHog instance endpoint.
	Host string
}

// DefaultConfig targets PostHog cloud.
func DefaultConfig() *Config {
	return &Config{
		Host: "https://app.posthog.com",
	}
}

// Sink enqueues each delivered event as a PostHog capture. The PostHog client
// batches internally; Close flushes whatever is still buffered.
type Sink struct {
	client posthog.Client
	logger *logger.Logger

	mu             sync.Mutex
	lastIdentified string
}

var _ collector.Transport = (*Sink)(nil)

// New creates a Sink. A missing project key degrades gracefully instead of
// failing, matching the rule that telemetry never breaks its host.
func New(config *Config, log *logger.Logger) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.New("posthogsink")
	}

	if config.ProjectKey == "" {
		log.Info("no PostHog project key, so forwarded events won't track")
		return &Sink{client: nil, logger: log}, nil
	}

	client, err := posthog.NewWithConfig(
		config.ProjectKey,
		posthog.Config{
			Endpoint: config.Host,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &Sink{client: client, logger: log}, nil
}

// SendBatch enqueues every event in the payload. The enqueue is asynchronous
// on the PostHog client's side, so the immediate flag cannot strengthen
// delivery here; unload-time durability comes from the manager's backstop.
func (s *Sink) SendBatch(ctx context.Context, payload *shared.BatchPayload, immediate bool) error {
	if s.client == nil {
		return nil
	}

	s.identifySession(payload.Session)

	for _, event := range payload.Events {
		if err := s.client.Enqueue(captureFor(event)); err != nil {
			return fmt.Errorf("failed to enqueue event %s: %w", event.ID, err)
		}
	}

	s.logger.Debug("forwarded batch to PostHog", map[string]interface{}{
		"events":    len(payload.Events),
		"sessionId": payload.Session.ID,
	})
	return nil
}

// identifySession sends one Identify per newly attributed user so PostHog
// links the session's captures to a person.
func (s *Sink) identifySession(session shared.Session) {
	if session.UserID == "" {
		return
	}

	s.mu.Lock()
	already := s.lastIdentified == session.UserID
	if !already {
		s.lastIdentified = session.UserID
	}
	s.mu.Unlock()
	if already {
		return
	}

	err := s.client.Enqueue(posthog.Identify{
		DistinctId: session.UserID,
		Properties: posthog.Properties{
			"sessionId": session.ID,
			"userAgent": session.UserAgent,
			"referrer":  session.Referrer,
		},
	})
	if err != nil {
		s.logger.Warnf("failed to identify user %s: %v", session.UserID, err)
	}
}

// captureFor converts one telemetry event into a PostHog capture. Anonymous
// events use the session id as the distinct id.
func captureFor(event shared.Event) posthog.Capture {
	distinctID := event.UserID
	if distinctID == "" {
		distinctID = event.SessionID
	}

	properties := make(map[string]interface{}, len(event.Properties)+3)
	for k, v := range event.Properties {
		properties[k] = v
	}
	properties["category"] = string(event.Category)
	properties["sessionId"] = event.SessionID
	properties["eventTimestamp"] = event.Timestamp

	return posthog.Capture{
		DistinctId: distinctID,
		Event:      event.Name,
		Properties: properties,
	}
}

// Close flushes pending captures.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
