// Package limits admits requests per caller before they reach the pipeline.
package limits

import (
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

// Policy configures admission.
type Policy struct {
	// RatePerMinute limits calls per caller per minute; zero disables the limit.
	RatePerMinute int
	// Burst is the bucket size; defaults to RatePerMinute.
	Burst int
	// MaxTextLength caps free-text messages in characters; zero disables the check.
	MaxTextLength int
}

// Decision is an admission result.
type Decision struct {
	// Allowed indicates admission.
	Allowed bool
	// Reason is a localized message for refusals.
	Reason string
	// RetryAfter is how long the caller should wait.
	RetryAfter time.Duration
}

// Store keeps one token bucket per caller.
type Store struct {
	mu       sync.Mutex
	byCaller map[int64]*rate.Limiter
	policy   Policy
	renderer templates.Renderer
	now      func() time.Time
}

// New creates a Store.
func New(policy Policy, renderer templates.Renderer) *Store {
	if policy.Burst <= 0 {
		policy.Burst = policy.RatePerMinute
	}
	return &Store{
		byCaller: make(map[int64]*rate.Limiter),
		policy:   policy,
		renderer: renderer,
		now:      time.Now,
	}
}

// Policy returns the active policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// Admit consumes one token for callerID.
func (s *Store) Admit(callerID int64) Decision {
	if s == nil || s.policy.RatePerMinute <= 0 {
		return Decision{Allowed: true}
	}

	s.mu.Lock()
	limiter := s.byCaller[callerID]
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.policy.RatePerMinute)), s.policy.Burst)
		s.byCaller[callerID] = limiter
	}
	s.mu.Unlock()

	now := s.now()
	res := limiter.ReserveN(now, 1)
	if !res.OK() {
		return Decision{Allowed: false, Reason: s.render("limits.rate", map[string]any{"RetryAfter": time.Minute}, "rate limit exceeded"), RetryAfter: time.Minute}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		delay = delay.Round(time.Second)
		if delay < time.Second {
			delay = time.Second
		}
		return Decision{Allowed: false, Reason: s.render("limits.rate", map[string]any{"RetryAfter": delay}, "rate limit exceeded"), RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

// CheckText rejects free text longer than the policy allows.
func (s *Store) CheckText(text string) Decision {
	if s == nil || s.policy.MaxTextLength <= 0 {
		return Decision{Allowed: true}
	}
	if n := utf8.RuneCountInString(text); n > s.policy.MaxTextLength {
		return Decision{Allowed: false, Reason: s.render("limits.text_length", map[string]any{"Max": s.policy.MaxTextLength}, "message is longer than "+strconv.Itoa(s.policy.MaxTextLength)+" characters")}
	}
	return Decision{Allowed: true}
}

func (s *Store) render(key string, data map[string]any, fallback string) string {
	if s.renderer == nil {
		return fallback
	}
	rendered, err := s.renderer.Render(key, data)
	if err != nil {
		return fallback
	}
	return rendered
}
