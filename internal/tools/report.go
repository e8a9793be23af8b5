package tools

import (
	"context"
	"errors"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// ClassReport aggregates grades over the students of a class.
type ClassReport struct {
	deps Deps
}

// Operation implements Handler.
func (ClassReport) Operation() authz.Operation { return authz.OpClassReport }

// Handle implements Handler.
func (h ClassReport) Handle(ctx context.Context, req Request) (domain.Result, error) {
	in, ok := req.Intent.Intent().(intent.ClassReport)
	if !ok {
		return nil, wrongIntent(h.Operation(), req.Intent.Intent())
	}
	decision := authz.Authorize(req.Requester, authz.OpClassReport, authz.Target{ClassID: in.ClassID})
	if !decision.Allowed {
		return nil, decision.Err()
	}
	if in.ClassID == nil {
		return nil, &domain.ValidationError{Field: "class_id", Reason: "is required"}
	}

	exists, err := h.deps.Store.ClassExists(ctx, *in.ClassID)
	if err != nil {
		return nil, storeErr("class exists", err)
	}
	if !exists {
		return nil, &domain.NotFoundError{Entity: "class", ID: *in.ClassID}
	}
	report, err := h.deps.Store.AggregateClassReport(ctx, *in.ClassID, domain.ReportFilter{SubjectID: in.SubjectID, Module: in.Module})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.NotFoundError{Entity: "class", ID: *in.ClassID}
	}
	if err != nil {
		return nil, storeErr("aggregate class report", err)
	}
	return report, nil
}
