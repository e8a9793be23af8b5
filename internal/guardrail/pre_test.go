package guardrail

import (
	"errors"
	"reflect"
	"testing"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

var (
	teacher = domain.Identity{ID: 1, DisplayName: "Prof. Ana Silva", Role: domain.RoleTeacher}
	student = domain.Identity{ID: 3, DisplayName: "João Santos", Role: domain.RoleStudent}
)

func fullAdd() intent.AddGrade {
	return intent.AddGrade{
		StudentID:   intent.Int64(3),
		SubjectID:   intent.Int64(1),
		ClassID:     intent.Int64(1),
		Module:      intent.String("Módulo 1"),
		Description: intent.String("Teste 2"),
		Value:       intent.Float64(18),
	}
}

func TestScreenIntent(t *testing.T) {
	tests := []struct {
		name       string
		ident      domain.Identity
		in         intent.Intent
		wantPass   bool
		wantReason domain.ReasonCode
		wantFields []string
	}{
		{name: "teacher delete", ident: teacher, in: intent.Blocked{Operation: "delete_grade"}, wantReason: domain.ReasonNoDeleteFeature},
		{name: "student delete", ident: student, in: intent.Blocked{Operation: "delete_grade"}, wantReason: domain.ReasonNoDeleteFeature},
		{name: "student queries other", ident: student, in: intent.QueryGrades{StudentID: intent.Int64(5)}, wantReason: domain.ReasonCrossStudentAccess},
		{name: "student summary other", ident: student, in: intent.Summary{StudentID: intent.Int64(4)}, wantReason: domain.ReasonCrossStudentAccess},
		{name: "student names someone", ident: student, in: intent.QueryGrades{StudentName: "Maria"}, wantReason: domain.ReasonCrossStudentAccess},
		{name: "student adds for other", ident: student, in: intent.AddGrade{StudentID: intent.Int64(4)}, wantReason: domain.ReasonCrossStudentAccess},
		{name: "student own query", ident: student, in: intent.QueryGrades{StudentID: intent.Int64(3)}, wantPass: true},
		{name: "student query omitted target", ident: student, in: intent.QueryGrades{}, wantPass: true},
		{name: "student own summary", ident: student, in: intent.Summary{}, wantPass: true},
		{name: "teacher full add", ident: teacher, in: fullAdd(), wantPass: true},
		{
			name:       "teacher add without value",
			ident:      teacher,
			in:         intent.AddGrade{StudentID: intent.Int64(3), SubjectID: intent.Int64(1), ClassID: intent.Int64(1), Module: intent.String("M1"), Description: intent.String("T")},
			wantReason: domain.ReasonMissingFields,
			wantFields: []string{FieldValue},
		},
		{
			name:       "teacher add by name only",
			ident:      teacher,
			in:         intent.AddGrade{StudentName: "João", SubjectID: intent.Int64(1), ClassID: intent.Int64(1), Module: intent.String("M1"), Description: intent.String("T"), Value: intent.Float64(10)},
			wantReason: domain.ReasonMissingFields,
			wantFields: []string{FieldStudentID},
		},
		{name: "teacher query by name", ident: teacher, in: intent.QueryGrades{StudentName: "João"}, wantReason: domain.ReasonMissingFields, wantFields: []string{FieldStudentID}},
		{name: "update without changes", ident: teacher, in: intent.UpdateGrade{GradeID: intent.Int64(2)}, wantReason: domain.ReasonMissingFields, wantFields: []string{FieldValue}},
		{name: "update without id", ident: teacher, in: intent.UpdateGrade{Module: intent.String("M2")}, wantReason: domain.ReasonMissingFields, wantFields: []string{FieldGradeID}},
		{name: "teacher summary without student", ident: teacher, in: intent.Summary{}, wantReason: domain.ReasonMissingFields, wantFields: []string{FieldStudentID}},
		{name: "report without class", ident: teacher, in: intent.ClassReport{ClassName: "10A"}, wantReason: domain.ReasonMissingFields, wantFields: []string{FieldClassID}},
		{name: "teacher report", ident: teacher, in: intent.ClassReport{ClassID: intent.Int64(1)}, wantPass: true},
		{name: "student report passes pre screen", ident: student, in: intent.ClassReport{ClassID: intent.Int64(1)}, wantPass: true},
		{name: "student own add passes pre screen", ident: student, in: fullAdd(), wantPass: true},
		{name: "fallback", ident: student, in: intent.Fallback{Text: "hello"}, wantPass: true},
		{name: "nil", ident: student, in: nil, wantPass: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScreenIntent(tt.ident, tt.in)
			if got.Pass != tt.wantPass {
				t.Fatalf("Pass = %v, want %v (reason %s)", got.Pass, tt.wantPass, got.Reason)
			}
			if tt.wantPass {
				if got.Err() != nil {
					t.Fatalf("Err() = %v on pass", got.Err())
				}
				return
			}
			if got.Reason != tt.wantReason {
				t.Fatalf("Reason = %s, want %s", got.Reason, tt.wantReason)
			}
			if tt.wantFields != nil && !reflect.DeepEqual(got.Fields, tt.wantFields) {
				t.Fatalf("Fields = %v, want %v", got.Fields, tt.wantFields)
			}
			var blockErr *domain.GuardrailBlock
			if !errors.As(got.Err(), &blockErr) || blockErr.Reason != tt.wantReason {
				t.Fatalf("Err() = %v", got.Err())
			}
		})
	}
}

func TestScreenIntentListsAllMissingFields(t *testing.T) {
	got := ScreenIntent(teacher, intent.AddGrade{})
	want := []string{FieldStudentID, FieldSubjectID, FieldClassID, FieldModule, FieldDescription, FieldValue}
	if !reflect.DeepEqual(got.Fields, want) {
		t.Fatalf("Fields = %v, want %v", got.Fields, want)
	}
}

func TestScreenIntentDeleteWinsOverEverything(t *testing.T) {
	for _, ident := range []domain.Identity{teacher, student, {ID: 99, Role: "unknown"}} {
		got := ScreenIntent(ident, intent.Blocked{Operation: "purge"})
		if got.Pass || got.Reason != domain.ReasonNoDeleteFeature {
			t.Fatalf("identity %+v: verdict %+v", ident, got)
		}
	}
}
