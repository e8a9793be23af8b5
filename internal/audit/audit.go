package audit

import (
	"context"
	"log/slog"
	"strconv"
)

// Event types.
const (
	TypeOutcome     = "outcome"
	TypeLeak        = "leak_detected"
	TypeRateLimited = "rate_limited"
	TypeDeleteProbe = "delete_probe"
)

// Event represents an audit entry for one terminal request outcome.
type Event struct {
	// Type describes the event kind.
	Type string
	// Intent is the intent kind or operation name.
	Intent string
	// CorrelationID links related events.
	CorrelationID string
	// CallerID is the declared caller.
	CallerID int64
	// Role is the resolved role, empty when identity resolution failed.
	Role string
	// State is the terminal pipeline state.
	State string
	// Reason is the reason code for blocks.
	Reason string
	// Category is the failure category.
	Category string
	// Source names the surface that received the request.
	Source string
}

// Fields returns the event as flat string values.
func (e Event) Fields() map[string]any {
	return map[string]any{
		"type":           e.Type,
		"intent":         e.Intent,
		"correlation_id": e.CorrelationID,
		"caller_id":      strconv.FormatInt(e.CallerID, 10),
		"role":           e.Role,
		"state":          e.State,
		"reason":         e.Reason,
		"category":       e.Category,
		"source":         e.Source,
	}
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event.
func (l *StdLogger) Record(ctx context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	level := slog.LevelInfo
	if event.Type == TypeLeak {
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, "audit",
		"type", event.Type,
		"intent", event.Intent,
		"correlation_id", event.CorrelationID,
		"caller_id", event.CallerID,
		"role", event.Role,
		"state", event.State,
		"reason", event.Reason,
		"category", event.Category,
		"source", event.Source,
	)
}

// Multi fans an event out to several loggers.
type Multi []Logger

// Record implements Logger.
func (m Multi) Record(ctx context.Context, event Event) {
	for _, l := range m {
		if l != nil {
			l.Record(ctx, event)
		}
	}
}
