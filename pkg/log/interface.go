// Package log is the structured logging layer of scigo-tune. Searches, the
// experiment runner and the CLI log through the slog-shaped Logger interface;
// the backend is rs/zerolog, pretty for terminals or JSON lines
// (see SetupFormat). Library warnings are routed through the same logger.
//
// Example usage:
//
//	logger := log.GetLogger().With(
//	    log.ModelNameKey, "GridSearchCV",
//	    log.ComponentKey, "model_selection",
//	)
//	logger.Info("Search started",
//	    log.CandidatesKey, 12,
//	    log.SplitsKey, 5,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. For Error, an error value
// passed as the first field is attached as the record's error, including its
// stack trace when it carries one.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	//
	// Example:
	//   logger.Error("Candidate fit failed",
	//       err,
	//       log.CandidateKey, 3,
	//       log.SplitKey, 1,
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	// Use it to skip building expensive fields.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
