package tools

import (
	"context"
	"errors"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// QueryGrades lists grades matching filters.
type QueryGrades struct {
	deps Deps
}

// Operation implements Handler.
func (QueryGrades) Operation() authz.Operation { return authz.OpQueryGrades }

// Handle implements Handler.
func (h QueryGrades) Handle(ctx context.Context, req Request) (domain.Result, error) {
	in, ok := req.Intent.Intent().(intent.QueryGrades)
	if !ok {
		return nil, wrongIntent(h.Operation(), req.Intent.Intent())
	}
	target := in.StudentID
	if target == nil && req.Requester.Role != domain.RoleTeacher {
		self := req.Requester.ID
		target = &self
	}
	decision := authz.Authorize(req.Requester, authz.OpQueryGrades, authz.Target{StudentID: target, ClassID: in.ClassID})
	if !decision.Allowed {
		return nil, decision.Err()
	}

	st := h.deps.Store
	if target != nil && req.Requester.IsTeacher() {
		if err := checkStudent(ctx, st, *target); err != nil {
			return nil, err
		}
	}
	if target != nil && in.ClassID != nil && req.Requester.Role == domain.RoleTeacher {
		enrolled, err := st.IsEnrolled(ctx, *target, *in.ClassID)
		if err != nil {
			return nil, storeErr("is enrolled", err)
		}
		if !enrolled {
			return nil, &domain.ValidationError{Field: "class_id", Reason: "student is not enrolled in class"}
		}
	}

	filter := domain.GradeFilter{StudentID: target, SubjectID: in.SubjectID, ClassID: in.ClassID, Module: in.Module}
	grades, err := st.QueryGrades(ctx, filter)
	if err != nil {
		return nil, storeErr("query grades", err)
	}
	if grades == nil {
		grades = []domain.GradeRecord{}
	}
	return domain.GradeList{Filters: filter, Total: len(grades), Grades: grades}, nil
}

// Summary aggregates one student's grades.
type Summary struct {
	deps Deps
}

// Operation implements Handler.
func (Summary) Operation() authz.Operation { return authz.OpSummary }

// Handle implements Handler.
func (h Summary) Handle(ctx context.Context, req Request) (domain.Result, error) {
	in, ok := req.Intent.Intent().(intent.Summary)
	if !ok {
		return nil, wrongIntent(h.Operation(), req.Intent.Intent())
	}
	target := in.StudentID
	if target == nil && req.Requester.Role != domain.RoleTeacher {
		self := req.Requester.ID
		target = &self
	}
	decision := authz.Authorize(req.Requester, authz.OpSummary, authz.Target{StudentID: target})
	if !decision.Allowed {
		return nil, decision.Err()
	}
	if target == nil {
		return nil, &domain.ValidationError{Field: "student_id", Reason: "is required"}
	}
	if req.Requester.IsTeacher() {
		if err := checkStudent(ctx, h.deps.Store, *target); err != nil {
			return nil, err
		}
	}

	summary, err := h.deps.Store.AggregateSummary(ctx, *target, domain.SummaryFilter{SubjectID: in.SubjectID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.NotFoundError{Entity: "student", ID: *target}
	}
	if err != nil {
		return nil, storeErr("aggregate summary", err)
	}
	return summary, nil
}

func checkStudent(ctx context.Context, st store.Store, id int64) error {
	ident, err := st.GetIdentity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.NotFoundError{Entity: "student", ID: id}
	}
	if err != nil {
		return storeErr("get identity", err)
	}
	if ident.Role != domain.RoleStudent {
		return &domain.NotFoundError{Entity: "student", ID: id}
	}
	return nil
}
