package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStreamRecord(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewStream(client, "grades:audit:test", 100, nil)
	s.Record(context.Background(), Event{Type: TypeOutcome, Intent: "query_grades", CorrelationID: "c-1", CallerID: 3, Role: "student", State: "blocked", Reason: "CROSS_STUDENT_ACCESS"})
	s.Record(context.Background(), Event{Type: TypeLeak, CorrelationID: "c-2", CallerID: 3})

	entries, err := client.XRange(context.Background(), "grades:audit:test", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	first := entries[0].Values
	if first["reason"] != "CROSS_STUDENT_ACCESS" || first["caller_id"] != "3" || first["state"] != "blocked" {
		t.Fatalf("unexpected entry %v", first)
	}
}

func TestStreamFailureIsSwallowed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	var buf bytes.Buffer
	s := NewStream(client, "", 0, slog.New(slog.NewJSONHandler(&buf, nil)))
	s.Record(context.Background(), Event{Type: TypeOutcome, CorrelationID: "c-3"})
	if !bytes.Contains(buf.Bytes(), []byte("audit stream append failed")) {
		t.Fatalf("expected warning, got %s", buf.String())
	}
}

func TestMultiAndStdLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	Multi{New(logger), nil}.Record(context.Background(), Event{Type: TypeLeak, CorrelationID: "c-9", CallerID: 4})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["level"] != "ERROR" || line["correlation_id"] != "c-9" {
		t.Fatalf("unexpected log line %v", line)
	}
}
