package core

import "time"

// Option customizes a Service at construction time.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger       Logger
	metrics      MetricsRecorder
	clock        func() time.Time
	historyLimit int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:       noopLogger{},
		clock:        time.Now,
		historyLimit: defaultHistoryLimit,
	}
}

// WithLogger installs a structured logger; the default discards everything.
func WithLogger(l Logger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder installs a metrics sink for operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithClock overrides the wall clock, used for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithHistoryLimit bounds the snapshot cache; zero disables caching.
func WithHistoryLimit(limit int) Option {
	return func(o *serviceOptions) {
		if limit >= 0 {
			o.historyLimit = limit
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
