package transport

import (
	"github.com/signgrid/signgrid-core/internal/session"
)

// Logger defines the logging interface used by transport adapters.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SessionBuilder constructs a session over a freshly established link.
// The engine supplies one so transports stay ignorant of verification,
// registration and telemetry wiring.
type SessionBuilder func(link session.Link) *session.Session
