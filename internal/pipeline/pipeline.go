// Package pipeline runs one request through identity resolution, guardrails,
// validation, authorized execution and result screening.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/guardrail"
	"github.com/codex-k8s/grades-mcp-server/internal/identity"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
	"github.com/codex-k8s/grades-mcp-server/internal/tools"
	"github.com/codex-k8s/grades-mcp-server/internal/translator"
	"github.com/codex-k8s/grades-mcp-server/internal/validate"
)

// Resolver loads the caller identity.
type Resolver interface {
	Resolve(ctx context.Context, callerID int64) (domain.Identity, error)
}

// Executor dispatches validated intents.
type Executor interface {
	Dispatch(ctx context.Context, req tools.Request) (domain.Result, error)
}

// Request is a direct call with a structured intent.
type Request struct {
	// CallerID is the declared requester id; the role is always loaded from the store.
	CallerID int64
	// Intent is the structured, untrusted intent.
	Intent intent.Intent
	// CorrelationID is generated when empty.
	CorrelationID string
	// Source names the surface, e.g. "mcp" or "api".
	Source string
}

// Config wires the pipeline collaborators.
type Config struct {
	Resolver   Resolver
	Validator  *validate.Validator
	Executor   Executor
	Translator translator.Translator
	Messages   templates.Renderer
	Audit      audit.Logger
	Logger     *slog.Logger
}

// Pipeline sequences the request stages.
type Pipeline struct {
	resolver   Resolver
	validator  *validate.Validator
	executor   Executor
	translator translator.Translator
	messages   templates.Renderer
	audit      audit.Logger
	logger     *slog.Logger
}

// New returns a Pipeline. Resolver and Executor are required.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("pipeline: executor is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New(validate.DefaultBounds)
	}
	if cfg.Translator == nil {
		cfg.Translator = translator.Rules{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		resolver:   cfg.Resolver,
		validator:  cfg.Validator,
		executor:   cfg.Executor,
		translator: cfg.Translator,
		messages:   cfg.Messages,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
	}, nil
}

// NewForStore wires the identity resolver and the default tool handlers over s.
func NewForStore(s store.Store, cfg Config) (*Pipeline, error) {
	if s == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New(validate.DefaultBounds)
	}
	exec, err := tools.NewDefault(tools.Deps{Store: s, Validator: cfg.Validator})
	if err != nil {
		return nil, err
	}
	cfg.Resolver = identity.NewResolver(s)
	cfg.Executor = exec
	return New(cfg)
}

// run carries the per-request state between stages.
type run struct {
	p        *Pipeline
	req      Request
	ident    domain.Identity
	resolved bool
	kind     intent.Kind
	trace    []State
}

// Handle runs a direct call.
func (p *Pipeline) Handle(ctx context.Context, req Request) Outcome {
	r := p.start(req)
	if out, ok := r.loadIdentity(ctx); !ok {
		return out
	}
	return r.screen(ctx, req.Intent)
}

// HandleText resolves the caller, translates text and runs the same stages.
func (p *Pipeline) HandleText(ctx context.Context, callerID int64, text, correlationID string) Outcome {
	r := p.start(Request{CallerID: callerID, CorrelationID: correlationID, Source: "text"})
	if out, ok := r.loadIdentity(ctx); !ok {
		return out
	}
	in, err := p.translator.Translate(ctx, text)
	if err != nil {
		p.logger.Warn("translation failed", "correlation_id", r.req.CorrelationID, "error", err)
		in = intent.Fallback{Text: text}
	}
	if fb, ok := in.(intent.Fallback); ok && fb.Text == "" {
		in = intent.Fallback{Text: text}
	}
	return r.screen(ctx, in)
}

func (p *Pipeline) start(req Request) *run {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	return &run{p: p, req: req, kind: intent.KindOf(req.Intent)}
}

func (r *run) enter(s State) {
	r.trace = append(r.trace, s)
}

func (r *run) loadIdentity(ctx context.Context) (Outcome, bool) {
	r.enter(StateLoadIdentity)
	ident, err := r.p.resolver.Resolve(ctx, r.req.CallerID)
	if err != nil {
		return r.fail(ctx, err), false
	}
	r.ident = ident
	r.resolved = true
	return Outcome{}, true
}

func (r *run) screen(ctx context.Context, in intent.Intent) Outcome {
	r.kind = intent.KindOf(in)

	r.enter(StatePreGuard)
	if v := guardrail.ScreenIntent(r.ident, in); !v.Pass {
		return r.fail(ctx, v.Err())
	}
	if r.kind == intent.KindFallback {
		return r.fallback(ctx)
	}

	r.enter(StateValidate)
	validated, err := r.p.validator.Validate(in)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.kind = validated.Kind()
	if r.kind == intent.KindFallback {
		return r.fallback(ctx)
	}

	r.enter(StateExecute)
	res, err := r.p.executor.Dispatch(ctx, tools.Request{
		Requester:     r.ident,
		Intent:        validated,
		CorrelationID: r.req.CorrelationID,
	})
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StatePostGuard)
	res, err = guardrail.ScreenResult(r.ident, res)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(StateRespond)
	out := r.outcome(StateCompleted)
	out.Result = res
	out.Message = templates.Text(r.p.messages, "done."+string(r.kind), res)
	r.record(ctx, out)
	return out
}

func (r *run) fallback(ctx context.Context) Outcome {
	r.enter(StateRespond)
	out := r.outcome(StateCompleted)
	out.Message = templates.Text(r.p.messages, "fallback.help", nil)
	r.record(ctx, out)
	return out
}

func (r *run) outcome(state State) Outcome {
	r.enter(state)
	return Outcome{
		State:         state,
		Intent:        r.kind,
		CorrelationID: r.req.CorrelationID,
		Trace:         append([]State(nil), r.trace...),
	}
}

func (r *run) record(ctx context.Context, out Outcome) {
	if r.p.audit == nil {
		return
	}
	event := audit.Event{
		Type:          audit.TypeOutcome,
		Intent:        string(out.Intent),
		CorrelationID: out.CorrelationID,
		CallerID:      r.req.CallerID,
		State:         string(out.State),
		Reason:        string(out.Reason),
		Category:      string(out.Category),
		Source:        r.req.Source,
	}
	if r.resolved {
		event.Role = string(r.ident.Role)
	}
	if out.Reason == domain.ReasonLeakDetected {
		event.Type = audit.TypeLeak
	}
	r.p.audit.Record(ctx, event)
}
