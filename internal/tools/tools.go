// Package tools holds the registry of grade operations and their handlers.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/timeutil"
	"github.com/codex-k8s/grades-mcp-server/internal/validate"
)

// Request contains dispatch inputs.
type Request struct {
	// Requester is the resolved caller.
	Requester domain.Identity
	// Intent is the validated intent.
	Intent validate.Validated
	// CorrelationID links related log lines.
	CorrelationID string
}

// Handler runs one operation. Each handler authorizes the request itself before touching the store.
type Handler interface {
	// Operation returns the registry key.
	Operation() authz.Operation
	// Handle runs the operation.
	Handle(ctx context.Context, req Request) (domain.Result, error)
}

// Required lists the operations every dispatcher must serve.
var Required = []authz.Operation{
	authz.OpAddGrade,
	authz.OpUpdateGrade,
	authz.OpQueryGrades,
	authz.OpSummary,
	authz.OpClassReport,
}

// Dispatcher maps operations to handlers.
type Dispatcher struct {
	handlers map[authz.Operation]Handler
}

// NewDispatcher builds a registry. It fails on delete-type, duplicate or missing operations.
func NewDispatcher(handlers ...Handler) (*Dispatcher, error) {
	registry := make(map[authz.Operation]Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("nil handler")
		}
		op := h.Operation()
		if authz.IsDeleteOperation(op) {
			return nil, fmt.Errorf("operation %s is destructive and cannot be registered", op)
		}
		if _, exists := registry[op]; exists {
			return nil, fmt.Errorf("operation %s registered twice", op)
		}
		registry[op] = h
	}
	for _, op := range Required {
		if _, ok := registry[op]; !ok {
			return nil, fmt.Errorf("operation %s has no handler", op)
		}
	}
	return &Dispatcher{handlers: registry}, nil
}

// Deps are the collaborators of the default handlers.
type Deps struct {
	// Store is the grade store.
	Store store.Store
	// Validator re-checks grade values at execution time.
	Validator *validate.Validator
	// Now returns the current time; defaults to timeutil.UTCNow.
	Now func() time.Time
}

// NewDefault builds a dispatcher with the standard handlers.
func NewDefault(deps Deps) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Validator == nil {
		deps.Validator = validate.New(validate.DefaultBounds)
	}
	if deps.Now == nil {
		deps.Now = timeutil.UTCNow
	}
	return NewDispatcher(
		AddGrade{deps: deps},
		UpdateGrade{deps: deps},
		QueryGrades{deps: deps},
		Summary{deps: deps},
		ClassReport{deps: deps},
	)
}

// Operations returns the registered operation names.
func (d *Dispatcher) Operations() []authz.Operation {
	ops := make([]authz.Operation, 0, len(d.handlers))
	for _, op := range Required {
		if _, ok := d.handlers[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// Dispatch routes the validated intent to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (domain.Result, error) {
	op, ok := OperationFor(req.Intent.Kind())
	if !ok {
		return nil, &domain.AuthorizationError{Reason: domain.ReasonUnknownOperation}
	}
	if authz.IsDeleteOperation(op) {
		return nil, authz.Authorize(req.Requester, op, authz.Target{}).Err()
	}
	h, ok := d.handlers[op]
	if !ok {
		return nil, &domain.AuthorizationError{Reason: domain.ReasonUnknownOperation}
	}
	return h.Handle(ctx, req)
}

// OperationFor maps an intent kind to its operation.
func OperationFor(kind intent.Kind) (authz.Operation, bool) {
	switch kind {
	case intent.KindAddGrade:
		return authz.OpAddGrade, true
	case intent.KindUpdateGrade:
		return authz.OpUpdateGrade, true
	case intent.KindQueryGrades:
		return authz.OpQueryGrades, true
	case intent.KindSummary:
		return authz.OpSummary, true
	case intent.KindClassReport:
		return authz.OpClassReport, true
	case intent.KindBlocked:
		return authz.OpDeleteGrade, true
	default:
		return "", false
	}
}

func storeErr(op string, err error) error {
	return &domain.StoreError{Op: op, Err: err}
}

func wrongIntent(op authz.Operation, in intent.Intent) error {
	return &domain.ValidationError{Field: "intent", Reason: fmt.Sprintf("%s cannot handle %s", op, intent.KindOf(in))}
}
