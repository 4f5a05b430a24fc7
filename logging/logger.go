// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a StructuredLogger with contextual helpers
// (component, run) and domain specific logging helpers for tool calls, model
// calls and collaboration patterns.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name; unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for ReactMesh.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a StructuredLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// StructuredLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. With* methods return copies, so a base logger can
// be shared by concurrent runs.
type StructuredLogger struct {
	logger *slog.Logger
}

// NewLogger builds a StructuredLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With(slog.String("component", cfg.Component))
	}

	return &StructuredLogger{logger: logger}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a logger that attaches the key/value pairs to every entry.
func (l *StructuredLogger) With(args ...any) *StructuredLogger {
	return &StructuredLogger{logger: l.logger.With(args...)}
}

// WithComponent sets the logical component (agent, coordinator, tool, ...).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	return l.With(slog.String("component", c))
}

// WithRun attaches the run and agent identifiers.
func (l *StructuredLogger) WithRun(runID, agent string) *StructuredLogger {
	return l.With(slog.String("run_id", runID), slog.String("agent", agent))
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *StructuredLogger) outcome(msg string, success bool, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	level := slog.LevelInfo
	if !success {
		level = slog.LevelError
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogToolCall records execution details for a tool invocation.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	l.outcome("tool.call.completed", success, err, slog.String("tool", tool), slog.Duration("duration", dur))
}

// LogModelCall records model call latency, token usage and success.
func (l *StructuredLogger) LogModelCall(model string, attempt int, tokens int64, dur time.Duration, success bool, err error) {
	l.outcome("agent.model.call", success, err,
		slog.String("model", model),
		slog.Int("attempt", attempt),
		slog.Int64("token_count", tokens),
		slog.Duration("duration", dur),
	)
}

// LogPatternExecution records aggregate metrics of a collaboration pattern run.
func (l *StructuredLogger) LogPatternExecution(pattern string, agents int, dur time.Duration, success bool, err error) {
	l.outcome("coordinator.pattern.completed", success, err,
		slog.String("pattern", pattern),
		slog.Int("agent_count", agents),
		slog.Duration("duration", dur),
	)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
