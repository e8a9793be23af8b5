package domain

import "time"

// Role is the caller role as stored in the trusted user table.
type Role string

// Known roles.
const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// Identity is the resolved caller for one request.
type Identity struct {
	// ID is the user identifier.
	ID int64 `json:"id"`
	// DisplayName is the user's full name.
	DisplayName string `json:"name"`
	// Role is loaded from the store, never from the request.
	Role Role `json:"role"`
}

// IsStudent reports whether the identity has the student role.
func (i Identity) IsStudent() bool {
	return i.Role == RoleStudent
}

// IsTeacher reports whether the identity has the teacher role.
func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

// GradeRecord is a single evaluation as read from the store.
type GradeRecord struct {
	ID             int64     `json:"id"`
	StudentID      int64     `json:"student_id"`
	StudentName    string    `json:"student_name,omitempty"`
	SubjectID      int64     `json:"subject_id"`
	SubjectName    string    `json:"subject_name,omitempty"`
	ClassID        int64     `json:"class_id"`
	ClassName      string    `json:"class_name,omitempty"`
	Module         string    `json:"module"`
	Description    string    `json:"description"`
	Value          float64   `json:"value"`
	RecordedAt     time.Time `json:"recorded_at"`
	LastModifiedBy *int64    `json:"last_modified_by,omitempty"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// NewGrade holds the fields of a grade about to be inserted.
type NewGrade struct {
	StudentID      int64
	SubjectID      int64
	ClassID        int64
	Module         string
	Description    string
	Value          float64
	RecordedAt     time.Time
	LastModifiedBy int64
	LastModifiedAt time.Time
}

// GradePatch lists the mutable fields of a grade. Nil fields are left unchanged.
type GradePatch struct {
	Value       *float64
	Module      *string
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p GradePatch) Empty() bool {
	return p.Value == nil && p.Module == nil && p.Description == nil
}

// GradeFilter narrows a grade select. Nil fields do not filter.
type GradeFilter struct {
	StudentID *int64  `json:"student_id,omitempty"`
	SubjectID *int64  `json:"subject_id,omitempty"`
	ClassID   *int64  `json:"class_id,omitempty"`
	Module    *string `json:"module,omitempty"`
}

// SummaryFilter narrows a student summary.
type SummaryFilter struct {
	SubjectID *int64 `json:"subject_id,omitempty"`
}

// ReportFilter narrows a class report.
type ReportFilter struct {
	SubjectID *int64  `json:"subject_id,omitempty"`
	Module    *string `json:"module,omitempty"`
}

// Enrollment links a student to a class.
type Enrollment struct {
	StudentID int64 `json:"student_id"`
	ClassID   int64 `json:"class_id"`
}
