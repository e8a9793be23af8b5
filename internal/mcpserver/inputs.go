package mcpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// Common carries the fields every tool accepts.
type Common struct {
	CallerID       int64
	CorrelationID  string
	ResponseFormat string
}

// AskInput is the natural-language tool input.
type AskInput struct {
	CallerID       int64  `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	Message        string `json:"message" jsonschema:"the question or instruction in Portuguese or English"`
}

// AddGradeInput records a new grade.
type AddGradeInput struct {
	CallerID       int64    `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string   `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string   `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	StudentID      *int64   `json:"student_id,omitempty"`
	SubjectID      *int64   `json:"subject_id,omitempty"`
	ClassID        *int64   `json:"class_id,omitempty"`
	Module         *string  `json:"module,omitempty" jsonschema:"module label, e.g. Módulo 1"`
	Description    *string  `json:"description,omitempty" jsonschema:"evaluation label, e.g. Teste 2"`
	Value          *float64 `json:"value,omitempty" jsonschema:"grade on the configured scale"`
	RecordedAt     string   `json:"recorded_at,omitempty" jsonschema:"RFC 3339 evaluation date; defaults to now"`
}

// UpdateGradeInput changes value, module or description of a grade.
type UpdateGradeInput struct {
	CallerID       int64    `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string   `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string   `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	GradeID        *int64   `json:"grade_id,omitempty"`
	Value          *float64 `json:"value,omitempty"`
	Module         *string  `json:"module,omitempty"`
	Description    *string  `json:"description,omitempty"`
}

// QueryGradesInput filters grades.
type QueryGradesInput struct {
	CallerID       int64   `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string  `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string  `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	StudentID      *int64  `json:"student_id,omitempty" jsonschema:"defaults to the caller for students"`
	SubjectID      *int64  `json:"subject_id,omitempty"`
	ClassID        *int64  `json:"class_id,omitempty"`
	Module         *string `json:"module,omitempty"`
}

// SummaryInput asks for one student's aggregate.
type SummaryInput struct {
	CallerID       int64  `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	StudentID      *int64 `json:"student_id,omitempty" jsonschema:"required for teachers; defaults to the caller for students"`
	SubjectID      *int64 `json:"subject_id,omitempty"`
}

// ClassReportInput asks for a class aggregate.
type ClassReportInput struct {
	CallerID       int64   `json:"caller_id" jsonschema:"id of the user making the request; the role is loaded from the database"`
	CorrelationID  string  `json:"correlation_id,omitempty" jsonschema:"optional id linking logs and audit events"`
	ResponseFormat string  `json:"response_format,omitempty" jsonschema:"json (default) or markdown"`
	ClassID        *int64  `json:"class_id,omitempty"`
	SubjectID      *int64  `json:"subject_id,omitempty"`
	Module         *string `json:"module,omitempty"`
}

func (in AddGradeInput) intent() (intent.Intent, error) {
	add := intent.AddGrade{
		StudentID:   in.StudentID,
		SubjectID:   in.SubjectID,
		ClassID:     in.ClassID,
		Module:      in.Module,
		Description: in.Description,
		Value:       in.Value,
	}
	if strings.TrimSpace(in.RecordedAt) != "" {
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(in.RecordedAt))
		if err != nil {
			return nil, fmt.Errorf("recorded_at must be an RFC 3339 timestamp")
		}
		add.RecordedAt = &at
	}
	return add, nil
}

func (in UpdateGradeInput) intent() (intent.Intent, error) {
	return intent.UpdateGrade{GradeID: in.GradeID, Value: in.Value, Module: in.Module, Description: in.Description}, nil
}

func (in QueryGradesInput) intent() (intent.Intent, error) {
	return intent.QueryGrades{StudentID: in.StudentID, SubjectID: in.SubjectID, ClassID: in.ClassID, Module: in.Module}, nil
}

func (in SummaryInput) intent() (intent.Intent, error) {
	return intent.Summary{StudentID: in.StudentID, SubjectID: in.SubjectID}, nil
}

func (in ClassReportInput) intent() (intent.Intent, error) {
	return intent.ClassReport{ClassID: in.ClassID, SubjectID: in.SubjectID, Module: in.Module}, nil
}

func (in AskInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}

func (in AddGradeInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}

func (in UpdateGradeInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}

func (in QueryGradesInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}

func (in SummaryInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}

func (in ClassReportInput) common() Common {
	return Common{CallerID: in.CallerID, CorrelationID: in.CorrelationID, ResponseFormat: in.ResponseFormat}
}
