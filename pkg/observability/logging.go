// Package observability carries the structured logger, Prometheus metrics,
// and OpenTelemetry tracing used across the orchestrator.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured logger for orchestrator components.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to stderr.
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerTo(os.Stderr, component, level)
}

// NewLoggerTo creates a JSON logger writing to w.
func NewLoggerTo(w io.Writer, component string, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "gpsr"),
	)
	return &Logger{Logger: logger}
}

// Discard returns a logger that drops everything. Used by tests and as the
// default when no logger is supplied.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns a logger carrying the trace and span IDs of ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return &Logger{
		Logger: l.Logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		),
	}
}

// WithBehavior returns a logger tagged with a behavior name.
func (l *Logger) WithBehavior(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("behavior", name))}
}

// WithState returns a logger tagged with a machine state.
func (l *Logger) WithState(state string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("state", state))}
}

// WithRun returns a logger tagged with a mission run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run_id", runID))}
}

// StateEntered logs a state transition.
func (l *Logger) StateEntered(machine, from, to string) {
	l.Debug("state entered",
		slog.String("machine", machine),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// BehaviorFinished logs the terminal status of a behavior.
func (l *Logger) BehaviorFinished(name, status string, elapsed time.Duration) {
	l.Info("behavior finished",
		slog.String("behavior", name),
		slog.String("status", status),
		slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000),
	)
}

// CommandTimedOut logs a command that exceeded its deadline.
func (l *Logger) CommandTimedOut(kind string, timeout time.Duration) {
	l.Warn("command timed out",
		slog.String("kind", kind),
		slog.Duration("timeout", timeout),
	)
}

// AttemptsExhausted logs a bounded retry that gave up.
func (l *Logger) AttemptsExhausted(step string, attempts int) {
	l.Warn("attempts exhausted",
		slog.String("step", step),
		slog.Int("attempts", attempts),
	)
}

// UnknownPrimitive logs an action that has no matching behavior.
func (l *Logger) UnknownPrimitive(name string, args []string) {
	l.Warn("unknown primitive skipped",
		slog.String("primitive", name),
		slog.Any("args", args),
	)
}

// ParseFailed logs a command the language bridge could not turn into actions.
func (l *Logger) ParseFailed(utterance string, err error) {
	l.Warn("command not parsed",
		slog.String("utterance", utterance),
		slog.String("error", err.Error()),
	)
}
