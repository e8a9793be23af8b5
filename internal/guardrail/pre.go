// Package guardrail screens intents before execution and results before they leave the service.
package guardrail

import (
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// Field names reported in MISSING_FIELDS blocks.
const (
	FieldStudentID   = "student_id"
	FieldSubjectID   = "subject_id"
	FieldClassID     = "class_id"
	FieldModule      = "module"
	FieldDescription = "description"
	FieldValue       = "value"
	FieldGradeID     = "grade_id"
)

// Verdict is the outcome of screening an intent.
type Verdict struct {
	// Pass is true when the intent may continue.
	Pass bool
	// Reason is set when Pass is false.
	Reason domain.ReasonCode
	// Fields lists absent fields for MISSING_FIELDS.
	Fields []string
}

// Err returns the block as an error, or nil for a pass.
func (v Verdict) Err() error {
	if v.Pass {
		return nil
	}
	return &domain.GuardrailBlock{Reason: v.Reason, Fields: v.Fields}
}

func pass() Verdict {
	return Verdict{Pass: true}
}

func block(reason domain.ReasonCode, fields ...string) Verdict {
	return Verdict{Reason: reason, Fields: fields}
}

// ScreenIntent applies the pre-execution rules in order; the first match wins.
func ScreenIntent(ident domain.Identity, in intent.Intent) Verdict {
	if in == nil {
		return pass()
	}
	if _, ok := in.(intent.Blocked); ok {
		return block(domain.ReasonNoDeleteFeature)
	}
	if ident.Role != domain.RoleTeacher && targetsOtherStudent(ident, in) {
		return block(domain.ReasonCrossStudentAccess)
	}
	if missing := missingFields(ident, in); len(missing) > 0 {
		return block(domain.ReasonMissingFields, missing...)
	}
	return pass()
}

// targetsOtherStudent reports whether the intent names any student other than the caller.
// An unresolved name counts as another student.
func targetsOtherStudent(ident domain.Identity, in intent.Intent) bool {
	var id *int64
	var name string
	switch v := in.(type) {
	case intent.AddGrade:
		id, name = v.StudentID, v.StudentName
	case intent.QueryGrades:
		id, name = v.StudentID, v.StudentName
	case intent.Summary:
		id, name = v.StudentID, v.StudentName
	default:
		return false
	}
	if name != "" {
		return true
	}
	return id != nil && *id != ident.ID
}

func missingFields(ident domain.Identity, in intent.Intent) []string {
	var missing []string
	need := func(present bool, field string) {
		if !present {
			missing = append(missing, field)
		}
	}

	switch v := in.(type) {
	case intent.AddGrade:
		need(v.StudentID != nil, FieldStudentID)
		need(v.SubjectID != nil, FieldSubjectID)
		need(v.ClassID != nil, FieldClassID)
		need(v.Module != nil, FieldModule)
		need(v.Description != nil, FieldDescription)
		need(v.Value != nil, FieldValue)
	case intent.UpdateGrade:
		need(v.GradeID != nil, FieldGradeID)
		need(v.Value != nil || v.Module != nil || v.Description != nil, FieldValue)
	case intent.QueryGrades:
		if v.StudentName != "" && v.StudentID == nil {
			need(false, FieldStudentID)
		}
	case intent.Summary:
		if ident.Role == domain.RoleTeacher {
			need(v.StudentID != nil, FieldStudentID)
		}
	case intent.ClassReport:
		need(v.ClassID != nil, FieldClassID)
	}
	return missing
}
