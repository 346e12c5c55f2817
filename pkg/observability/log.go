// Package observability provides the structured logging and metrics
// surface shared by every component in the pipeline: a Logger
// interface with a slog-backed production implementation, and a
// Metrics struct wrapping the OpenTelemetry instruments each
// component records against.
package observability

import (
	"log/slog"
	"os"
)

// Logger is the narrow logging interface every component depends on,
// so tests can swap in NoOpLogger without dragging in slog.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Useful as a zero-value default and
// in tests that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger builds a Logger backed by slog's JSON handler writing
// to stderr, tagged with the given component name.
func NewSlogLogger(component string) *SlogLogger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &SlogLogger{l: slog.New(h).With("component", component)}
}

// WrapSlog adapts an already-configured *slog.Logger.
func WrapSlog(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// With returns a logger that attaches the given key/value pairs to
// every subsequent record, for per-meeting or per-session scoping.
func (s *SlogLogger) With(args ...interface{}) *SlogLogger {
	return &SlogLogger{l: s.l.With(args...)}
}
