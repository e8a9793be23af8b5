package intent

import "time"

// Kind names an intent variant.
type Kind string

// Recognized intent kinds.
const (
	KindAddGrade    Kind = "add_grade"
	KindUpdateGrade Kind = "update_grade"
	KindQueryGrades Kind = "query_grades"
	KindSummary     Kind = "summary"
	KindClassReport Kind = "class_report"
	KindFallback    Kind = "fallback"
	KindBlocked     Kind = "blocked"
)

// Intent is a closed set of request variants. Only this package implements it.
type Intent interface {
	// Kind returns the variant name.
	Kind() Kind
	sealed()
}

// AddGrade asks to record a new grade for a student.
type AddGrade struct {
	StudentID *int64
	// StudentName is an unresolved, untrusted name target from the translator.
	StudentName string
	SubjectID   *int64
	ClassID     *int64
	Module      *string
	Description *string
	Value       *float64
	RecordedAt  *time.Time
}

// UpdateGrade asks to change the mutable fields of an existing grade.
type UpdateGrade struct {
	GradeID     *int64
	Value       *float64
	Module      *string
	Description *string
}

// QueryGrades asks for grades matching optional filters.
type QueryGrades struct {
	StudentID   *int64
	StudentName string
	SubjectID   *int64
	ClassID     *int64
	Module      *string
}

// Summary asks for the aggregate of one student's grades.
type Summary struct {
	StudentID   *int64
	StudentName string
	SubjectID   *int64
}

// ClassReport asks for the aggregate of a class.
type ClassReport struct {
	ClassID *int64
	// ClassName is an unresolved class label such as "10A".
	ClassName string
	SubjectID *int64
	Module    *string
}

// Fallback is a request that was not understood.
type Fallback struct {
	Text string
}

// Blocked is a delete-type or otherwise unsupported mutating request.
type Blocked struct {
	Operation string
}

func (AddGrade) Kind() Kind    { return KindAddGrade }
func (UpdateGrade) Kind() Kind { return KindUpdateGrade }
func (QueryGrades) Kind() Kind { return KindQueryGrades }
func (Summary) Kind() Kind     { return KindSummary }
func (ClassReport) Kind() Kind { return KindClassReport }
func (Fallback) Kind() Kind    { return KindFallback }
func (Blocked) Kind() Kind     { return KindBlocked }

func (AddGrade) sealed()    {}
func (UpdateGrade) sealed() {}
func (QueryGrades) sealed() {}
func (Summary) sealed()     {}
func (ClassReport) sealed() {}
func (Fallback) sealed()    {}
func (Blocked) sealed()     {}

// KindOf returns the kind of in, treating nil as fallback.
func KindOf(in Intent) Kind {
	if in == nil {
		return KindFallback
	}
	return in.Kind()
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
