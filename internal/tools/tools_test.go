package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/authz"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/seed"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/store/memstore"
	"github.com/codex-k8s/grades-mcp-server/internal/validate"
)

var (
	teacher  = domain.Identity{ID: 1, DisplayName: "Prof. Maria Silva", Role: domain.RoleTeacher}
	student  = domain.Identity{ID: 3, DisplayName: "Miguel Ferreira", Role: domain.RoleStudent}
	fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
)

// countingStore records store calls by method name.
type countingStore struct {
	store.Store
	mu    sync.Mutex
	calls map[string]int
	fail  error
}

func (c *countingStore) hit(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[name]++
	return c.fail
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) GetIdentity(ctx context.Context, id int64) (domain.Identity, error) {
	if err := c.hit("GetIdentity"); err != nil {
		return domain.Identity{}, err
	}
	return c.Store.GetIdentity(ctx, id)
}

func (c *countingStore) InsertGrade(ctx context.Context, g domain.NewGrade) (domain.GradeRecord, error) {
	if err := c.hit("InsertGrade"); err != nil {
		return domain.GradeRecord{}, err
	}
	return c.Store.InsertGrade(ctx, g)
}

func (c *countingStore) UpdateGrade(ctx context.Context, id int64, p domain.GradePatch, by int64, at time.Time) (domain.GradeRecord, error) {
	if err := c.hit("UpdateGrade"); err != nil {
		return domain.GradeRecord{}, err
	}
	return c.Store.UpdateGrade(ctx, id, p, by, at)
}

func (c *countingStore) QueryGrades(ctx context.Context, f domain.GradeFilter) ([]domain.GradeRecord, error) {
	if err := c.hit("QueryGrades"); err != nil {
		return nil, err
	}
	return c.Store.QueryGrades(ctx, f)
}

func (c *countingStore) AggregateSummary(ctx context.Context, id int64, f domain.SummaryFilter) (domain.Summary, error) {
	if err := c.hit("AggregateSummary"); err != nil {
		return domain.Summary{}, err
	}
	return c.Store.AggregateSummary(ctx, id, f)
}

func (c *countingStore) AggregateClassReport(ctx context.Context, id int64, f domain.ReportFilter) (domain.ClassReport, error) {
	if err := c.hit("AggregateClassReport"); err != nil {
		return domain.ClassReport{}, err
	}
	return c.Store.AggregateClassReport(ctx, id, f)
}

func (c *countingStore) IsEnrolled(ctx context.Context, s, k int64) (bool, error) {
	if err := c.hit("IsEnrolled"); err != nil {
		return false, err
	}
	return c.Store.IsEnrolled(ctx, s, k)
}

func (c *countingStore) SubjectExists(ctx context.Context, id int64) (bool, error) {
	if err := c.hit("SubjectExists"); err != nil {
		return false, err
	}
	return c.Store.SubjectExists(ctx, id)
}

func (c *countingStore) ClassExists(ctx context.Context, id int64) (bool, error) {
	if err := c.hit("ClassExists"); err != nil {
		return false, err
	}
	return c.Store.ClassExists(ctx, id)
}

func newFixture(t *testing.T) (*Dispatcher, *countingStore) {
	t.Helper()
	mem := memstore.New()
	if _, err := seed.Run(context.Background(), mem, seed.Options{Now: fixedNow, RandSeed: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cs := &countingStore{Store: mem}
	d, err := NewDefault(Deps{Store: cs, Validator: validate.New(validate.DefaultBounds), Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	return d, cs
}

func mustValidate(t *testing.T, in intent.Intent) validate.Validated {
	t.Helper()
	v, err := validate.New(validate.DefaultBounds).Validate(in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return v
}

type namedHandler struct {
	op authz.Operation
}

func (h namedHandler) Operation() authz.Operation { return h.op }

func (namedHandler) Handle(context.Context, Request) (domain.Result, error) { return nil, nil }

func TestNewDispatcherRejectsDelete(t *testing.T) {
	handlers := []Handler{}
	for _, op := range Required {
		handlers = append(handlers, namedHandler{op: op})
	}
	if _, err := NewDispatcher(handlers...); err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	for _, op := range []authz.Operation{authz.OpDeleteGrade, "remove_grade", "purge_grades"} {
		_, err := NewDispatcher(append(handlers, namedHandler{op: op})...)
		if err == nil || !strings.Contains(err.Error(), "destructive") {
			t.Fatalf("op %s: err = %v", op, err)
		}
	}
	if _, err := NewDispatcher(handlers[1:]...); err == nil {
		t.Fatalf("expected missing operation error")
	}
	if _, err := NewDispatcher(append(handlers, namedHandler{op: authz.OpSummary})...); err == nil {
		t.Fatalf("expected duplicate operation error")
	}
}

func TestAddGradeByTeacher(t *testing.T) {
	d, cs := newFixture(t)
	res, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.AddGrade{
		StudentID:   intent.Int64(3),
		SubjectID:   intent.Int64(1),
		ClassID:     intent.Int64(1),
		Module:      intent.String("Módulo 1"),
		Description: intent.String("Teste 2"),
		Value:       intent.Float64(18),
	})})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	g := res.(domain.GradeResult).Grade
	if g.StudentID != 3 || g.Value != 18 || g.LastModifiedBy == nil || *g.LastModifiedBy != 1 {
		t.Fatalf("unexpected record %+v", g)
	}
	if !g.RecordedAt.Equal(fixedNow) || !g.LastModifiedAt.Equal(fixedNow) {
		t.Fatalf("timestamps = %v / %v", g.RecordedAt, g.LastModifiedAt)
	}
	if cs.calls["InsertGrade"] != 1 {
		t.Fatalf("insert calls = %d", cs.calls["InsertGrade"])
	}
}

func TestAddGradeReferenceChecks(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*intent.AddGrade)
		wantField string
	}{
		{name: "unknown student", mutate: func(a *intent.AddGrade) { a.StudentID = intent.Int64(99) }, wantField: "student_id"},
		{name: "teacher as student", mutate: func(a *intent.AddGrade) { a.StudentID = intent.Int64(2) }, wantField: "student_id"},
		{name: "unknown subject", mutate: func(a *intent.AddGrade) { a.SubjectID = intent.Int64(42) }, wantField: "subject_id"},
		{name: "unknown class", mutate: func(a *intent.AddGrade) { a.ClassID = intent.Int64(42) }, wantField: "class_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, cs := newFixture(t)
			in := intent.AddGrade{
				StudentID: intent.Int64(3), SubjectID: intent.Int64(1), ClassID: intent.Int64(1),
				Module: intent.String("M1"), Description: intent.String("T1"), Value: intent.Float64(12),
			}
			tt.mutate(&in)
			_, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, in)})
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.wantField {
				t.Fatalf("err = %v, want ValidationError on %s", err, tt.wantField)
			}
			if cs.calls["InsertGrade"] != 0 {
				t.Fatalf("grade inserted despite validation failure")
			}
		})
	}
}

func TestHandlersReauthorize(t *testing.T) {
	d, cs := newFixture(t)
	tests := []struct {
		name string
		in   intent.Intent
		want domain.ReasonCode
	}{
		{name: "student add", in: intent.AddGrade{StudentID: intent.Int64(3), SubjectID: intent.Int64(1), ClassID: intent.Int64(1), Module: intent.String("M"), Description: intent.String("D"), Value: intent.Float64(20)}, want: domain.ReasonStudentCannotWrite},
		{name: "student update", in: intent.UpdateGrade{GradeID: intent.Int64(1), Value: intent.Float64(20)}, want: domain.ReasonStudentCannotWrite},
		{name: "student other query", in: intent.QueryGrades{StudentID: intent.Int64(5)}, want: domain.ReasonCrossStudentAccess},
		{name: "student other summary", in: intent.Summary{StudentID: intent.Int64(4)}, want: domain.ReasonCrossStudentAccess},
		{name: "student report", in: intent.ClassReport{ClassID: intent.Int64(1)}, want: domain.ReasonInsufficientRole},
		{name: "delete", in: intent.Blocked{Operation: "delete_grade"}, want: domain.ReasonNoDeleteFeature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), Request{Requester: student, Intent: mustValidate(t, tt.in)})
			var authErr *domain.AuthorizationError
			if !errors.As(err, &authErr) || authErr.Reason != tt.want {
				t.Fatalf("err = %v, want %s", err, tt.want)
			}
		})
	}
	if cs.total() != 0 {
		t.Fatalf("store touched on denied requests: %v", cs.calls)
	}
}

func TestUpdateGrade(t *testing.T) {
	d, _ := newFixture(t)
	res, err := d.Dispatch(context.Background(), Request{Requester: domain.Identity{ID: 2, Role: domain.RoleTeacher}, Intent: mustValidate(t, intent.UpdateGrade{
		GradeID: intent.Int64(1), Value: intent.Float64(19.5), Description: intent.String("Teste 1 (revisto)"),
	})})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	g := res.(domain.GradeResult).Grade
	if g.Value != 19.5 || g.Description != "Teste 1 (revisto)" || *g.LastModifiedBy != 2 || !g.LastModifiedAt.Equal(fixedNow) {
		t.Fatalf("unexpected record %+v", g)
	}
	if g.StudentID != 3 {
		t.Fatalf("student id changed: %d", g.StudentID)
	}

	_, err = d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.UpdateGrade{GradeID: intent.Int64(9999), Value: intent.Float64(10)})})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "grade" {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestQueryGradesDefaultsToStudent(t *testing.T) {
	d, _ := newFixture(t)
	res, err := d.Dispatch(context.Background(), Request{Requester: student, Intent: mustValidate(t, intent.QueryGrades{})})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	list := res.(domain.GradeList)
	if list.Total == 0 || list.Filters.StudentID == nil || *list.Filters.StudentID != 3 {
		t.Fatalf("unexpected list %+v", list.Filters)
	}
	for _, g := range list.Grades {
		if g.StudentID != 3 {
			t.Fatalf("foreign record %+v", g)
		}
	}
}

func TestQueryGradesEnrollmentCheck(t *testing.T) {
	d, _ := newFixture(t)
	_, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.QueryGrades{StudentID: intent.Int64(3), ClassID: intent.Int64(2)})})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "class_id" {
		t.Fatalf("err = %v, want class_id ValidationError", err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.QueryGrades{StudentID: intent.Int64(3), ClassID: intent.Int64(1)})}); err != nil {
		t.Fatalf("enrolled query: %v", err)
	}
	_, err = d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.QueryGrades{StudentID: intent.Int64(77)})})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestSummaryAndReport(t *testing.T) {
	d, _ := newFixture(t)
	res, err := d.Dispatch(context.Background(), Request{Requester: student, Intent: mustValidate(t, intent.Summary{})})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	sum := res.(domain.Summary)
	if sum.StudentID != 3 || sum.Total != 12 || len(sum.Recent) != 5 || len(sum.BySubject) != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	res, err = d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.ClassReport{ClassID: intent.Int64(1)})})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	report := res.(domain.ClassReport)
	if report.ClassName != "10A" || len(report.Students) != 3 || report.Statistics == nil || report.Statistics.Total != 36 {
		t.Fatalf("unexpected report %+v", report)
	}

	_, err = d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.ClassReport{ClassID: intent.Int64(40)})})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "class" {
		t.Fatalf("err = %v, want class NotFoundError", err)
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	d, cs := newFixture(t)
	cs.fail = errors.New("pq: connection reset")
	_, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.Summary{StudentID: intent.Int64(3)})})
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want StoreError", err)
	}
	if cs.total() != 1 {
		t.Fatalf("store calls = %d, want exactly one attempt", cs.total())
	}
}

func TestFallbackIsNotDispatched(t *testing.T) {
	d, cs := newFixture(t)
	_, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, intent.Fallback{Text: "olá"})})
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) || authErr.Reason != domain.ReasonUnknownOperation {
		t.Fatalf("err = %v", err)
	}
	if cs.total() != 0 {
		t.Fatalf("store touched: %v", cs.calls)
	}
}

func TestTargetMustBeStudent(t *testing.T) {
	d, cs := newFixture(t)
	for _, in := range []intent.Intent{
		intent.Summary{StudentID: intent.Int64(2)},
		intent.QueryGrades{StudentID: intent.Int64(2)},
		intent.Summary{StudentID: intent.Int64(teacher.ID)},
		intent.QueryGrades{StudentID: intent.Int64(teacher.ID)},
	} {
		_, err := d.Dispatch(context.Background(), Request{Requester: teacher, Intent: mustValidate(t, in)})
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) || nf.Entity != "student" {
			t.Fatalf("%T: err = %v, want student NotFoundError", in, err)
		}
	}
	if cs.calls["AggregateSummary"] != 0 || cs.calls["QueryGrades"] != 0 {
		t.Fatalf("store read for a teacher target: %v", cs.calls)
	}
}
