package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/constants"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/protocol"
)

const (
	headerCallerID      = "X-Caller-ID"
	headerCorrelationID = "X-Correlation-ID"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	correlationKey
)

var errNoCaller = errors.New("caller id is required")

// callerFrom extracts the declared caller id. The role is never read from the request.
func (s *Server) callerFrom(r *http.Request) (int64, error) {
	if s.opts.JWTSecret != "" {
		return s.callerFromToken(r.Header.Get("Authorization"))
	}
	raw := strings.TrimSpace(r.Header.Get(headerCallerID))
	if raw == "" {
		return 0, errNoCaller
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", headerCallerID)
	}
	return id, nil
}

func (s *Server) callerFromToken(header string) (int64, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, errNoCaller
	}
	tok, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("token has no subject")
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, errors.New("token subject must be a user id")
	}
	return id, nil
}

// identify stores the caller id and correlation id in the request context.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := correlationOf(r)
		w.Header().Set(headerCorrelationID, correlationID)
		callerID, err := s.callerFrom(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, protocol.ToolResponse{
				Status:        protocol.StatusError,
				Category:      string(domain.CategoryUnknownIdentity),
				Message:       err.Error(),
				CorrelationID: correlationID,
			})
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, callerID)
		ctx = context.WithValue(ctx, correlationKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// admit applies the per-caller rate limit.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := callerID(r.Context())
		d := s.opts.Limits.Admit(callerID)
		if !d.Allowed {
			correlationID := correlation(r.Context())
			if s.opts.Audit != nil {
				s.opts.Audit.Record(r.Context(), audit.Event{
					Type:          audit.TypeRateLimited,
					Intent:        r.Method + " " + r.URL.Path,
					CorrelationID: correlationID,
					CallerID:      callerID,
					Reason:        string(domain.ReasonRateLimited),
					Source:        constants.SourceAPI,
				})
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			writeJSON(w, http.StatusTooManyRequests, protocol.Denied(domain.ReasonRateLimited, d.Reason, correlationID))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func correlationOf(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerCorrelationID)); id != "" {
		return id
	}
	return uuid.NewString()
}

func callerID(ctx context.Context) int64 {
	id, _ := ctx.Value(callerKey).(int64)
	return id
}

func correlation(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}
