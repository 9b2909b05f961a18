// Package vitals exposes Core Web Vitals measurements to the telemetry
// pipeline. The host runtime (a browser bridge, a synthetic probe, a test)
// produces the numbers; this package only defines how observers wait for
// them.
package vitals

import (
	"context"
	"errors"
	"sync"
)

// Metric names a Core Web Vitals metric.
type Metric string

const (
	LCP  Metric = "LCP"
	CLS  Metric = "CLS"
	INP  Metric = "INP"
	FCP  Metric = "FCP"
	TTFB Metric = "TTFB"
)

// Metrics returns every supported metric in stable order.
func Metrics() []Metric {
	return []Metric{LCP, CLS, INP, FCP, TTFB}
}

// ErrUnavailable reports that a source has no measurement for the requested
// metric and never will.
var ErrUnavailable = errors.New("vitals: metric unavailable")

// Measurement is a single observed value. Timing metrics carry milliseconds,
// CLS carries its unitless score.
type Measurement struct {
	Metric Metric
	Value  float64
}

// ratingThresholds holds the good/poor breakpoints per metric. Values between
// the two rate "needs-improvement".
var ratingThresholds = map[Metric][2]float64{
	LCP:  {2500, 4000},
	CLS:  {0.1, 0.25},
	INP:  {200, 500},
	FCP:  {1800, 3000},
	TTFB: {800, 1800},
}

// Rating buckets the measurement as "good", "needs-improvement", or "poor"
// using the published Core Web Vitals thresholds. Unknown metrics rate
// "good".
func (m Measurement) Rating() string {
	thresholds, ok := ratingThresholds[m.Metric]
	if !ok {
		return "good"
	}
	switch {
	case m.Value <= thresholds[0]:
		return "good"
	case m.Value <= thresholds[1]:
		return "needs-improvement"
	default:
		return "poor"
	}
}

// Source produces one-shot metric observations. Observe blocks until the host
// reports the metric or ctx expires.
type Source interface {
	Observe(ctx context.Context, metric Metric) (Measurement, error)
}

// StaticSource serves fixed measurements. Metrics without a configured value
// return ErrUnavailable immediately.
type StaticSource struct {
	values map[Metric]float64
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a source answering from the given values.
func NewStaticSource(values map[Metric]float64) *StaticSource {
	copied := make(map[Metric]float64, len(values))
	for metric, value := range values {
		copied[metric] = value
	}
	return &StaticSource{values: copied}
}

func (s *StaticSource) Observe(ctx context.Context, metric Metric) (Measurement, error) {
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}
	value, ok := s.values[metric]
	if !ok {
		return Measurement{}, ErrUnavailable
	}
	return Measurement{Metric: metric, Value: value}, nil
}

// ChannelSource lets a host push measurements as they become final. Observers
// waiting on a metric are released by the first Report for it; later
// observers get the recorded value immediately.
type ChannelSource struct {
	mu       sync.Mutex
	recorded map[Metric]Measurement
	waiters  map[Metric][]chan Measurement
}

var _ Source = (*ChannelSource)(nil)

// NewChannelSource creates an empty ChannelSource.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{
		recorded: make(map[Metric]Measurement),
		waiters:  make(map[Metric][]chan Measurement),
	}
}

// Report records a final measurement and releases every observer waiting on
// its metric.
func (s *ChannelSource) Report(m Measurement) {
	s.mu.Lock()
	s.recorded[m.Metric] = m
	waiting := s.waiters[m.Metric]
	delete(s.waiters, m.Metric)
	s.mu.Unlock()

	for _, ch := range waiting {
		ch <- m
	}
}

func (s *ChannelSource) Observe(ctx context.Context, metric Metric) (Measurement, error) {
	s.mu.Lock()
	if m, ok := s.recorded[metric]; ok {
		s.mu.Unlock()
		return m, nil
	}
	ch := make(chan Measurement, 1)
	s.waiters[metric] = append(s.waiters[metric], ch)
	s.mu.Unlock()

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return Measurement{}, ctx.Err()
	}
}
