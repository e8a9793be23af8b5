package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream appends audit events to a Redis stream.
type Stream struct {
	// Client is the Redis connection.
	Client redis.Cmdable
	// Name is the stream key.
	Name string
	// MaxLen trims the stream approximately; zero keeps everything.
	MaxLen int64
	// Timeout bounds one append.
	Timeout time.Duration
	// Logger reports append failures.
	Logger *slog.Logger
}

// NewStream returns a Stream with defaults applied.
func NewStream(client redis.Cmdable, name string, maxLen int64, logger *slog.Logger) *Stream {
	if name == "" {
		name = "grades:audit"
	}
	return &Stream{Client: client, Name: name, MaxLen: maxLen, Timeout: 2 * time.Second, Logger: logger}
}

// Record implements Logger. Failures are logged and never reach the caller.
func (s *Stream) Record(ctx context.Context, event Event) {
	if s == nil || s.Client == nil {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.Name,
		Values: event.Fields(),
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.Client.XAdd(ctx, args).Err(); err != nil && s.Logger != nil {
		s.Logger.Warn("audit stream append failed", "stream", s.Name, "correlation_id", event.CorrelationID, "error", err)
	}
}
