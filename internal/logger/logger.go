// Package logger provides the leveled logger used across the telemetry
// pipeline. Telemetry must never crash its host, so every component reports
// failures through this logger instead of returning them to tracking calls.
//
// Levels are ordered log < error < warn < info < debug; a logger emits a
// record only when its configured level is at or above the record's level.
// The TELEMETRY_LOG_LEVEL environment variable overrides the configured
// level, which keeps debug output reachable in deployed binaries.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// LogLevel identifies one of the supported logging levels.
type LogLevel string

const (
	LogLevelLog   LogLevel = "log"
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// logLevels orders the levels; a level's index is its verbosity rank.
var logLevels = []LogLevel{LogLevelLog, LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug}

// Logger writes timestamped, named log lines to a single output writer.
type Logger struct {
	name   string
	level  int
	output io.Writer
}

// New creates a Logger with the "info" default level, writing to stdout.
func New(name string) *Logger {
	return NewWithLevel(name, string(LogLevelInfo), os.Stdout)
}

// NewWithLevel creates a Logger with an explicit level and output writer.
// TELEMETRY_LOG_LEVEL, when set, takes precedence over levelStr. Unknown
// level names fall back to "info".
func NewWithLevel(name string, levelStr string, output io.Writer) *Logger {
	if envLevel := os.Getenv("TELEMETRY_LOG_LEVEL"); envLevel != "" {
		levelStr = envLevel
	}

	levelIndex := -1
	for i, l := range logLevels {
		if string(l) == levelStr {
			levelIndex = i
			break
		}
	}
	if levelIndex == -1 {
		levelIndex = 3 // info
	}

	return &Logger{
		name:   name,
		level:  levelIndex,
		output: output,
	}
}

// formattedDateTime renders the wall clock as HH:MM:SS.mmm.
func formattedDateTime() string {
	now := time.Now()
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond()/1000000)
}

func (l *Logger) emit(minLevel int, args ...interface{}) {
	if l.level < minLevel {
		return
	}

	var message string
	switch len(args) {
	case 0:
		message = ""
	case 1:
		message = fmt.Sprintf("%v", args[0])
	default:
		message = fmt.Sprint(args...)
	}
	fmt.Fprintf(l.output, "[%s] [%s] %s\n", formattedDateTime(), l.name, message)
}

// Log writes at the "log" level, which is never filtered out.
func (l *Logger) Log(args ...interface{}) { l.emit(0, args...) }

// Error writes at the "error" level.
func (l *Logger) Error(args ...interface{}) { l.emit(1, args...) }

// Warn writes at the "warn" level.
func (l *Logger) Warn(args ...interface{}) { l.emit(2, args...) }

// Info writes at the "info" level.
func (l *Logger) Info(args ...interface{}) { l.emit(3, args...) }

// Debug writes a structured JSON record at the "debug" level. The manager's
// debug mode mirrors every tracked event through here, so the output stays
// machine-parseable.
func (l *Logger) Debug(message string, args ...interface{}) {
	if l.level < 4 {
		return
	}

	structuredLog := map[string]interface{}{
		"timestamp": time.Now(),
		"name":      l.name,
		"message":   message,
	}
	if len(args) > 0 {
		if len(args) == 1 {
			structuredLog["args"] = args[0]
		} else {
			structuredLog["args"] = args
		}
	}

	jsonBytes, err := json.Marshal(structuredLog)
	if err != nil {
		fmt.Fprintf(l.output, "[%s] [%s] DEBUG: %s (JSON marshal error: %v)\n",
			formattedDateTime(), l.name, message, err)
		return
	}
	fmt.Fprintln(l.output, string(jsonBytes))
}

// GetName returns the logger's name.
func (l *Logger) GetName() string {
	return l.name
}

// Logf provides printf-style logging at the log level.
func (l *Logger) Logf(format string, args ...interface{}) {
	l.Log(fmt.Sprintf(format, args...))
}

// Errorf provides printf-style logging at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Warnf provides printf-style logging at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Infof provides printf-style logging at the info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Debugf provides printf-style logging at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}
