package telemetry

import (
	"os"
	"strconv"
	"time"
)

// Config controls one Manager instance. Boolean fields are pointers so an
// explicit false survives merging with defaults; use Bool to build them.
// Unset fields take the documented defaults.
type Config struct {
	// APIEndpoint is the collector URL batches are POSTed to. Empty disables
	// the default HTTP transport.
	APIEndpoint string

	// APIKey is sent as a bearer credential when non-empty.
	APIKey string

	// EnableLocalStorage persists undelivered events to the durable backstop
	// between flushes. Default true.
	EnableLocalStorage *bool

	// EnableRemoteTracking sends batches to the collector. Default false, so
	// development builds never leak events off the machine.
	EnableRemoteTracking *bool

	// EnablePerformanceTracking starts the web-vitals observers. Default true.
	EnablePerformanceTracking *bool

	// EnableErrorTracking subscribes to host error signals. Default true.
	EnableErrorTracking *bool

	// EnableDebugMode mirrors every tracked event to the debug log. Default
	// false.
	EnableDebugMode *bool

	// BatchSize is the queue length that triggers an automatic flush.
	// Default 10.
	BatchSize int

	// FlushInterval is the periodic flush cadence. Default 30s.
	FlushInterval time.Duration

	// MaxStoredEvents caps the durable backstop; oldest events drop first.
	// Default 1000.
	MaxStoredEvents int

	// VitalsTimeout bounds each web-vitals observation. Default 10s.
	VitalsTimeout time.Duration
}

// Bool returns a pointer to v, for building Config literals.
func Bool(v bool) *bool {
	return &v
}

// DefaultConfig returns the documented defaults with every field populated.
func DefaultConfig() Config {
	return Config{
		EnableLocalStorage:        Bool(true),
		EnableRemoteTracking:      Bool(false),
		EnablePerformanceTracking: Bool(true),
		EnableErrorTracking:       Bool(true),
		EnableDebugMode:           Bool(false),
		BatchSize:                 10,
		FlushInterval:             30 * time.Second,
		MaxStoredEvents:           1000,
		VitalsTimeout:             10 * time.Second,
	}
}

// withDefaults fills every unset field from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.EnableLocalStorage == nil {
		c.EnableLocalStorage = defaults.EnableLocalStorage
	}
	if c.EnableRemoteTracking == nil {
		c.EnableRemoteTracking = defaults.EnableRemoteTracking
	}
	if c.EnablePerformanceTracking == nil {
		c.EnablePerformanceTracking = defaults.EnablePerformanceTracking
	}
	if c.EnableErrorTracking == nil {
		c.EnableErrorTracking = defaults.EnableErrorTracking
	}
	if c.EnableDebugMode == nil {
		c.EnableDebugMode = defaults.EnableDebugMode
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaults.FlushInterval
	}
	if c.MaxStoredEvents <= 0 {
		c.MaxStoredEvents = defaults.MaxStoredEvents
	}
	if c.VitalsTimeout <= 0 {
		c.VitalsTimeout = defaults.VitalsTimeout
	}

	return c
}

// LoadConfig reads the TELEMETRY_* environment variables into a Config.
// Absent variables leave the corresponding feature at its default rather
// than erroring.
func LoadConfig() Config {
	config := Config{
		APIEndpoint: os.Getenv("TELEMETRY_API_ENDPOINT"),
		APIKey:      os.Getenv("TELEMETRY_API_KEY"),
	}

	if raw := os.Getenv("TELEMETRY_REMOTE_TRACKING"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			config.EnableRemoteTracking = Bool(v)
		}
	}
	if raw := os.Getenv("TELEMETRY_DEBUG"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			config.EnableDebugMode = Bool(v)
		}
	}

	return config
}
