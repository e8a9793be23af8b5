package limits

import (
	"strings"
	"testing"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

func TestAdmitPerCaller(t *testing.T) {
	s := New(Policy{RatePerMinute: 2}, nil)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if !s.Admit(1).Allowed || !s.Admit(1).Allowed {
		t.Fatalf("burst of two should be admitted")
	}
	third := s.Admit(1)
	if third.Allowed || third.RetryAfter <= 0 {
		t.Fatalf("third call = %+v", third)
	}
	if !s.Admit(2).Allowed {
		t.Fatalf("other caller must have its own bucket")
	}

	now = now.Add(31 * time.Second)
	if !s.Admit(1).Allowed {
		t.Fatalf("token should refill after half a minute")
	}
}

func TestAdmitDisabled(t *testing.T) {
	s := New(Policy{}, nil)
	for i := 0; i < 100; i++ {
		if !s.Admit(1).Allowed {
			t.Fatalf("disabled limiter refused call %d", i)
		}
	}
	var nilStore *Store
	if !nilStore.Admit(1).Allowed {
		t.Fatalf("nil store must admit")
	}
}

func TestCheckText(t *testing.T) {
	b, err := templates.Load("en")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	s := New(Policy{MaxTextLength: 5}, b)
	if !s.CheckText("média").Allowed {
		t.Fatalf("five characters must pass")
	}
	d := s.CheckText("médias")
	if d.Allowed || !strings.Contains(d.Reason, "5") {
		t.Fatalf("decision = %+v", d)
	}
}
