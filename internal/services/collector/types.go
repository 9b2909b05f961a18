package collector

import (
	"net/http"
	"time"
)

// HTTPClient allows injecting a mock transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the slice of the pipeline logger the client needs.
type Logger interface {
	Debug(message string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Client uploads batched telemetry events to a collector endpoint.
type Client struct {
	endpoint         string
	apiKey           string
	httpClient       HTTPClient
	immediateTimeout time.Duration
	logger           Logger
}
