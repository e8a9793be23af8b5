package store

import (
	"context"
	"errors"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the narrow contract the pipeline needs from the grade database.
// There is no delete method.
type Store interface {
	// GetIdentity returns the user with the given id.
	GetIdentity(ctx context.Context, id int64) (domain.Identity, error)
	// InsertGrade persists a new grade and returns it as stored.
	InsertGrade(ctx context.Context, grade domain.NewGrade) (domain.GradeRecord, error)
	// UpdateGrade applies patch to one grade in a single statement.
	UpdateGrade(ctx context.Context, id int64, patch domain.GradePatch, updatedBy int64, updatedAt time.Time) (domain.GradeRecord, error)
	// QueryGrades selects grades matching filter, newest first.
	QueryGrades(ctx context.Context, filter domain.GradeFilter) ([]domain.GradeRecord, error)
	// AggregateSummary aggregates one student's grades.
	AggregateSummary(ctx context.Context, studentID int64, filter domain.SummaryFilter) (domain.Summary, error)
	// AggregateClassReport aggregates grades per student enrolled in a class.
	AggregateClassReport(ctx context.Context, classID int64, filter domain.ReportFilter) (domain.ClassReport, error)
	// IsEnrolled reports whether the student belongs to the class.
	IsEnrolled(ctx context.Context, studentID, classID int64) (bool, error)
	// SubjectExists reports whether the subject id is known.
	SubjectExists(ctx context.Context, id int64) (bool, error)
	// ClassExists reports whether the class id is known.
	ClassExists(ctx context.Context, id int64) (bool, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Seeder writes reference data. It is used by bootstrap code only, never by the pipeline.
type Seeder interface {
	// CreateUser inserts a user and returns its id.
	CreateUser(ctx context.Context, name string, role domain.Role) (int64, error)
	// CreateSubject inserts a subject and returns its id.
	CreateSubject(ctx context.Context, name string) (int64, error)
	// CreateClass inserts a class and returns its id.
	CreateClass(ctx context.Context, name string) (int64, error)
	// Enroll links a student to a class.
	Enroll(ctx context.Context, studentID, classID int64) error
	// InsertGrade persists a grade.
	InsertGrade(ctx context.Context, grade domain.NewGrade) (domain.GradeRecord, error)
	// Reset removes all reference data before reseeding.
	Reset(ctx context.Context) error
}

// RecentLimit is the number of recent evaluations returned in a summary.
const RecentLimit = 5
