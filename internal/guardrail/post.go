package guardrail

import "github.com/codex-k8s/grades-mcp-server/internal/domain"

// ScreenResult checks that a student sees only their own records.
// Any foreign record blocks the whole result; nothing is filtered out.
// Teachers pass through unchanged. Screening a clean result again returns it unchanged.
func ScreenResult(ident domain.Identity, res domain.Result) (domain.Result, error) {
	if res == nil || ident.Role == domain.RoleTeacher {
		return res, nil
	}

	leak := func(foreign int64) error {
		return &domain.LeakDetectedError{CallerID: ident.ID, ForeignID: foreign, Kind: res.ResultKind()}
	}

	switch r := res.(type) {
	case domain.GradeResult:
		if r.Grade.StudentID != ident.ID {
			return nil, leak(r.Grade.StudentID)
		}
	case domain.GradeList:
		if r.Filters.StudentID != nil && *r.Filters.StudentID != ident.ID {
			return nil, leak(*r.Filters.StudentID)
		}
		for _, g := range r.Grades {
			if g.StudentID != ident.ID {
				return nil, leak(g.StudentID)
			}
		}
	case domain.Summary:
		if r.StudentID != ident.ID {
			return nil, leak(r.StudentID)
		}
		for _, g := range r.Recent {
			if g.StudentID != ident.ID {
				return nil, leak(g.StudentID)
			}
		}
	case domain.ClassReport:
		for _, s := range r.Students {
			if s.StudentID != ident.ID {
				return nil, leak(s.StudentID)
			}
		}
		return nil, leak(0)
	default:
		return nil, leak(0)
	}
	return res, nil
}
