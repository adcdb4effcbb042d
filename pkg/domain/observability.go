package domain

import (
	"context"
	"time"
)

// Logger is the minimal structured logging contract accepted by services.
// Key-value pairs follow the message, slog style.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// MetricsRecorder observes the outcome and duration of named operations.
// Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}
