package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

// fail maps a stage error to a terminal outcome, logs and audits it.
// Store error details never reach the outcome.
func (r *run) fail(ctx context.Context, err error) Outcome {
	var (
		block    *domain.GuardrailBlock
		denied   *domain.AuthorizationError
		leak     *domain.LeakDetectedError
		unknown  *domain.UnknownIdentityError
		invalid  *domain.ValidationError
		outRange *domain.InvalidRangeError
		notFound *domain.NotFoundError
	)

	var out Outcome
	switch {
	case errors.As(err, &block):
		out = r.outcome(StateBlocked)
		out.Reason = block.Reason
		out.Fields = block.Fields
		out.Message = templates.Text(r.p.messages, "block."+string(block.Reason), map[string]any{"Fields": block.Fields})
	case errors.As(err, &denied):
		out = r.outcome(StateBlocked)
		out.Reason = denied.Reason
		out.Message = templates.Text(r.p.messages, "block."+string(denied.Reason), nil)
	case errors.As(err, &leak):
		out = r.outcome(StateBlocked)
		out.Reason = domain.ReasonLeakDetected
		out.Message = templates.Text(r.p.messages, "block."+string(domain.ReasonLeakDetected), nil)
	case errors.As(err, &unknown):
		out = r.failed(domain.CategoryUnknownIdentity, nil)
	case errors.As(err, &invalid):
		out = r.failed(domain.CategoryValidation, map[string]any{"Field": invalid.Field, "Reason": invalid.Reason})
		out.Field = invalid.Field
	case errors.As(err, &outRange):
		out = r.failed(domain.CategoryInvalidRange, map[string]any{"Field": outRange.Field, "Min": outRange.Min, "Max": outRange.Max})
		out.Field = outRange.Field
	case errors.As(err, &notFound):
		out = r.failed(domain.CategoryNotFound, map[string]any{"Entity": notFound.Entity, "ID": notFound.ID})
	default:
		out = r.failed(domain.CategoryStore, nil)
	}

	r.log(ctx, out, err)
	r.record(ctx, out)
	return out
}

func (r *run) failed(category domain.Category, data map[string]any) Outcome {
	out := r.outcome(StateFailed)
	out.Category = category
	out.Message = templates.Text(r.p.messages, "failure."+string(category), data)
	return out
}

func (r *run) log(ctx context.Context, out Outcome, err error) {
	level := slog.LevelWarn
	switch {
	case out.Reason == domain.ReasonLeakDetected, out.Category == domain.CategoryStore:
		level = slog.LevelError
	case out.State == StateBlocked:
		level = slog.LevelInfo
	}
	attrs := []any{
		"correlation_id", out.CorrelationID,
		"caller_id", r.req.CallerID,
		"intent", string(out.Intent),
		"state", string(out.State),
	}
	if out.Reason != "" {
		attrs = append(attrs, "reason", string(out.Reason))
	}
	if out.Category != "" {
		attrs = append(attrs, "category", string(out.Category))
	}
	if out.State == StateFailed || out.Reason == domain.ReasonLeakDetected {
		attrs = append(attrs, "error", err.Error())
	}
	msg := "request " + string(out.State)
	if out.Reason == domain.ReasonLeakDetected {
		msg = "result leak detected"
	}
	r.p.logger.Log(ctx, level, msg, attrs...)
}
