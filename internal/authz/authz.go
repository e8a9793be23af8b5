// Package authz decides whether a requester may run an operation on a target.
// It is evaluated at the point of execution and keeps no state between calls.
package authz

import "github.com/codex-k8s/grades-mcp-server/internal/domain"

// Operation names a dispatchable operation.
type Operation string

// Known operations. OpDeleteGrade exists only so it can be denied.
const (
	OpAddGrade    Operation = "add_grade"
	OpUpdateGrade Operation = "update_grade"
	OpQueryGrades Operation = "query_grades"
	OpSummary     Operation = "grade_summary"
	OpClassReport Operation = "class_report"
	OpDeleteGrade Operation = "delete_grade"
)

// Target is the concrete subject of an operation.
type Target struct {
	StudentID *int64
	ClassID   *int64
}

// Decision is a fresh allow/deny answer.
type Decision struct {
	Allowed bool
	Reason  domain.ReasonCode
}

// Err returns an AuthorizationError for a deny and nil for an allow.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &domain.AuthorizationError{Reason: d.Reason}
}

func allow() Decision {
	return Decision{Allowed: true, Reason: domain.ReasonAllowed}
}

func deny(reason domain.ReasonCode) Decision {
	return Decision{Reason: reason}
}

// Authorize evaluates the rule table. Deny overrides allow; unknown roles and operations deny.
func Authorize(requester domain.Identity, op Operation, target Target) Decision {
	if IsDeleteOperation(op) {
		return deny(domain.ReasonNoDeleteFeature)
	}

	switch requester.Role {
	case domain.RoleTeacher:
		switch op {
		case OpAddGrade, OpUpdateGrade, OpQueryGrades, OpSummary, OpClassReport:
			return allow()
		}
		return deny(domain.ReasonUnknownOperation)

	case domain.RoleStudent:
		switch op {
		case OpAddGrade, OpUpdateGrade:
			return deny(domain.ReasonStudentCannotWrite)
		case OpQueryGrades, OpSummary:
			if target.StudentID != nil && *target.StudentID != requester.ID {
				return deny(domain.ReasonCrossStudentAccess)
			}
			return allow()
		case OpClassReport:
			return deny(domain.ReasonInsufficientRole)
		}
		return deny(domain.ReasonUnknownOperation)
	}
	return deny(domain.ReasonInsufficientRole)
}
