package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal structured logger used by the resolver and proxy.
// Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type logrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger adapts a logrus logger. A nil logger uses logrus.StandardLogger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return logrusLogger{log: l}
}

func (l logrusLogger) entry(args []any) *logrus.Entry {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields["arg"] = args[i]
		}
	}
	return l.log.WithFields(fields)
}

func (l logrusLogger) Debug(msg string, args ...any) { l.entry(args).Debug(msg) }
func (l logrusLogger) Info(msg string, args ...any)  { l.entry(args).Info(msg) }
func (l logrusLogger) Warn(msg string, args ...any)  { l.entry(args).Warn(msg) }
func (l logrusLogger) Error(msg string, args ...any) { l.entry(args).Error(msg) }

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder receives one observation per proxy operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// SaveStatsObserver is implemented by recorders that also track save counts.
type SaveStatsObserver interface {
	ObserveSaveStats(ctx context.Context, stats SaveStats)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan ends a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around proxy operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// Option configures a Resolver or Proxy.
type Option func(*options)

type options struct {
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

func defaultOptions() options {
	return options{
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the logger. Nil keeps the default.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics recorder. Nil keeps the default.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer. Nil keeps the default.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock sets the clock used for durations. Nil keeps the default.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
