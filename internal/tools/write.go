package tools

import (
	"context"
	"errors"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// AddGrade records a new grade.
type AddGrade struct {
	deps Deps
}

// Operation implements Handler.
func (AddGrade) Operation() authz.Operation { return authz.OpAddGrade }

// Handle implements Handler.
func (h AddGrade) Handle(ctx context.Context, req Request) (domain.Result, error) {
	in, ok := req.Intent.Intent().(intent.AddGrade)
	if !ok {
		return nil, wrongIntent(h.Operation(), req.Intent.Intent())
	}
	decision := authz.Authorize(req.Requester, authz.OpAddGrade, authz.Target{StudentID: in.StudentID, ClassID: in.ClassID})
	if !decision.Allowed {
		return nil, decision.Err()
	}
	if in.StudentID == nil || in.SubjectID == nil || in.ClassID == nil || in.Module == nil || in.Description == nil || in.Value == nil {
		return nil, &domain.ValidationError{Field: "intent", Reason: "incomplete add_grade"}
	}
	if err := h.deps.Validator.CheckValue(*in.Value); err != nil {
		return nil, err
	}

	st := h.deps.Store
	target, err := st.GetIdentity(ctx, *in.StudentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, &domain.ValidationError{Field: "student_id", Reason: "unknown student"}
	case err != nil:
		return nil, storeErr("get identity", err)
	case target.Role != domain.RoleStudent:
		return nil, &domain.ValidationError{Field: "student_id", Reason: "not a student"}
	}
	if ok, err := st.SubjectExists(ctx, *in.SubjectID); err != nil {
		return nil, storeErr("subject exists", err)
	} else if !ok {
		return nil, &domain.ValidationError{Field: "subject_id", Reason: "unknown subject"}
	}
	if ok, err := st.ClassExists(ctx, *in.ClassID); err != nil {
		return nil, storeErr("class exists", err)
	} else if !ok {
		return nil, &domain.ValidationError{Field: "class_id", Reason: "unknown class"}
	}

	now := h.deps.Now().UTC()
	recordedAt := now
	if in.RecordedAt != nil {
		recordedAt = in.RecordedAt.UTC()
	}
	rec, err := st.InsertGrade(ctx, domain.NewGrade{
		StudentID:      *in.StudentID,
		SubjectID:      *in.SubjectID,
		ClassID:        *in.ClassID,
		Module:         *in.Module,
		Description:    *in.Description,
		Value:          *in.Value,
		RecordedAt:     recordedAt,
		LastModifiedBy: req.Requester.ID,
		LastModifiedAt: now,
	})
	if err != nil {
		return nil, storeErr("insert grade", err)
	}
	return domain.GradeResult{Grade: rec}, nil
}

// UpdateGrade changes value, module or description of an existing grade.
type UpdateGrade struct {
	deps Deps
}

// Operation implements Handler.
func (UpdateGrade) Operation() authz.Operation { return authz.OpUpdateGrade }

// Handle implements Handler.
func (h UpdateGrade) Handle(ctx context.Context, req Request) (domain.Result, error) {
	in, ok := req.Intent.Intent().(intent.UpdateGrade)
	if !ok {
		return nil, wrongIntent(h.Operation(), req.Intent.Intent())
	}
	decision := authz.Authorize(req.Requester, authz.OpUpdateGrade, authz.Target{})
	if !decision.Allowed {
		return nil, decision.Err()
	}
	if in.GradeID == nil {
		return nil, &domain.ValidationError{Field: "grade_id", Reason: "is required"}
	}
	patch := domain.GradePatch{Value: in.Value, Module: in.Module, Description: in.Description}
	if patch.Empty() {
		return nil, &domain.ValidationError{Field: "value", Reason: "nothing to update"}
	}
	if patch.Value != nil {
		if err := h.deps.Validator.CheckValue(*patch.Value); err != nil {
			return nil, err
		}
	}

	rec, err := h.deps.Store.UpdateGrade(ctx, *in.GradeID, patch, req.Requester.ID, h.deps.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.NotFoundError{Entity: "grade", ID: *in.GradeID}
	}
	if err != nil {
		return nil, storeErr("update grade", err)
	}
	return domain.GradeResult{Grade: rec}, nil
}
