package main

import (
	"os"

	"streamview/telemetry/internal/logger"
)

func main() {
	// Use TELEMETRY_LOG_LEVEL environment variable to control output.
	log := logger.New("example")

	// A debug-level logger so every line below actually prints.
	verbose := logger.NewWithLevel("example", "debug", os.Stdout)

	// All logging levels.
	log.Log("This is a log message")
	log.Error("This is an error message ", "error_code=500")
	log.Warn("This is a warning message ", "warning_type=deprecation")
	log.Info("This is an info message ", "request_id=abc123")
	verbose.Debug("This is a debug message", map[string]interface{}{
		"session_id": "sess_456",
		"action":     "track",
	})

	// Go-style printf convenience methods.
	log.Infof("Flush delivered %d events in %dms", 10, 42)
	log.Errorf("Delivery failed: %v", "timeout")
}
