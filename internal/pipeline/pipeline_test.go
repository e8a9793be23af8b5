package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/identity"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/seed"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/store/memstore"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
	"github.com/codex-k8s/grades-mcp-server/internal/tools"
	"github.com/codex-k8s/grades-mcp-server/internal/validate"
)

const (
	teacherID int64 = 1
	studentID int64 = 3
	otherID   int64 = 5
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// spyStore counts every data call except identity lookups.
type spyStore struct {
	store.Store
	mu    sync.Mutex
	calls int
}

func (s *spyStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *spyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStore) InsertGrade(ctx context.Context, g domain.NewGrade) (domain.GradeRecord, error) {
	s.hit()
	return s.Store.InsertGrade(ctx, g)
}

func (s *spyStore) UpdateGrade(ctx context.Context, id int64, p domain.GradePatch, by int64, at time.Time) (domain.GradeRecord, error) {
	s.hit()
	return s.Store.UpdateGrade(ctx, id, p, by, at)
}

func (s *spyStore) QueryGrades(ctx context.Context, f domain.GradeFilter) ([]domain.GradeRecord, error) {
	s.hit()
	return s.Store.QueryGrades(ctx, f)
}

func (s *spyStore) AggregateSummary(ctx context.Context, id int64, f domain.SummaryFilter) (domain.Summary, error) {
	s.hit()
	return s.Store.AggregateSummary(ctx, id, f)
}

func (s *spyStore) AggregateClassReport(ctx context.Context, id int64, f domain.ReportFilter) (domain.ClassReport, error) {
	s.hit()
	return s.Store.AggregateClassReport(ctx, id, f)
}

func (s *spyStore) IsEnrolled(ctx context.Context, a, b int64) (bool, error) {
	s.hit()
	return s.Store.IsEnrolled(ctx, a, b)
}

func (s *spyStore) SubjectExists(ctx context.Context, id int64) (bool, error) {
	s.hit()
	return s.Store.SubjectExists(ctx, id)
}

func (s *spyStore) ClassExists(ctx context.Context, id int64) (bool, error) {
	s.hit()
	return s.Store.ClassExists(ctx, id)
}

// countingExecutor counts Execute invocations.
type countingExecutor struct {
	inner Executor
	calls int
}

func (c *countingExecutor) Dispatch(ctx context.Context, req tools.Request) (domain.Result, error) {
	c.calls++
	return c.inner.Dispatch(ctx, req)
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

type fixture struct {
	p     *Pipeline
	store *spyStore
	exec  *countingExecutor
	audit *recorder
	logs  *bytes.Buffer
}

func newFixture(t *testing.T, lang string) *fixture {
	t.Helper()
	mem := memstore.New()
	if _, err := seed.Run(context.Background(), mem, seed.Options{Now: fixedNow, RandSeed: 3}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	spy := &spyStore{Store: mem}
	val := validate.New(validate.DefaultBounds)
	d, err := tools.NewDefault(tools.Deps{Store: spy, Validator: val, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	msgs, err := templates.Load(lang)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	exec := &countingExecutor{inner: d}
	rec := &recorder{}
	var logs bytes.Buffer
	p, err := New(Config{
		Resolver:  identity.NewResolver(spy),
		Validator: val,
		Executor:  exec,
		Messages:  msgs,
		Audit:     rec,
		Logger:    slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{p: p, store: spy, exec: exec, audit: rec, logs: &logs}
}

func TestScenarioA_StudentQueriesAnotherStudent(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.QueryGrades{StudentID: intent.Int64(otherID)}})
	if !out.Blocked() || out.Reason != domain.ReasonCrossStudentAccess {
		t.Fatalf("outcome = %+v", out)
	}
	if f.exec.calls != 0 || out.Visited(StateExecute) {
		t.Fatalf("execute ran: calls=%d trace=%v", f.exec.calls, out.Trace)
	}
}

func TestScenarioB_TeacherAddsGrade(t *testing.T) {
	f := newFixture(t, "pt")
	out := f.p.Handle(context.Background(), Request{CallerID: teacherID, Intent: intent.AddGrade{
		StudentID:   intent.Int64(studentID),
		SubjectID:   intent.Int64(1),
		ClassID:     intent.Int64(1),
		Module:      intent.String("Módulo 1"),
		Description: intent.String("Teste 2"),
		Value:       intent.Float64(18),
	}})
	if !out.Completed() {
		t.Fatalf("outcome = %+v", out)
	}
	g := out.Result.(domain.GradeResult).Grade
	if g.LastModifiedBy == nil || *g.LastModifiedBy != teacherID || g.Value != 18 {
		t.Fatalf("record = %+v", g)
	}
	if !strings.HasPrefix(out.Message, "Nota ") {
		t.Fatalf("message = %q", out.Message)
	}
	want := []State{StateLoadIdentity, StatePreGuard, StateValidate, StateExecute, StatePostGuard, StateRespond, StateCompleted}
	if strings.Join(stateNames(out.Trace), ",") != strings.Join(stateNames(want), ",") {
		t.Fatalf("trace = %v", out.Trace)
	}
}

func TestScenarioC_StudentQueriesOwnGrades(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.QueryGrades{}})
	if !out.Completed() {
		t.Fatalf("outcome = %+v", out)
	}
	list := out.Result.(domain.GradeList)
	if list.Total == 0 {
		t.Fatalf("expected seeded grades")
	}
	for _, g := range list.Grades {
		if g.StudentID != studentID {
			t.Fatalf("foreign record %+v", g)
		}
	}
}

func TestScenarioD_TeacherClassReport(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.Handle(context.Background(), Request{CallerID: teacherID, Intent: intent.ClassReport{ClassID: intent.Int64(1)}})
	if !out.Completed() {
		t.Fatalf("outcome = %+v", out)
	}
	report := out.Result.(domain.ClassReport)
	ids := map[int64]bool{}
	for _, s := range report.Students {
		ids[s.StudentID] = true
	}
	if len(ids) != 3 || !ids[3] || !ids[4] || !ids[5] {
		t.Fatalf("report students = %v", report.Students)
	}
}

func TestScenarioE_DeleteIsAlwaysBlocked(t *testing.T) {
	for _, caller := range []int64{teacherID, studentID} {
		f := newFixture(t, "en")
		out := f.p.Handle(context.Background(), Request{CallerID: caller, Intent: intent.Blocked{Operation: "delete_grade"}})
		if !out.Blocked() || out.Reason != domain.ReasonNoDeleteFeature {
			t.Fatalf("caller %d: outcome = %+v", caller, out)
		}
		if f.store.count() != 0 || f.exec.calls != 0 {
			t.Fatalf("caller %d: store calls=%d exec calls=%d", caller, f.store.count(), f.exec.calls)
		}
	}
}

func TestScenarioE_DeleteFromText(t *testing.T) {
	f := newFixture(t, "pt")
	out := f.p.HandleText(context.Background(), teacherID, "Apagar a nota 4 do aluno 3", "corr-del")
	if !out.Blocked() || out.Reason != domain.ReasonNoDeleteFeature {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Message != "A eliminação de notas não é permitida no sistema." {
		t.Fatalf("message = %q", out.Message)
	}
	if out.CorrelationID != "corr-del" || f.store.count() != 0 {
		t.Fatalf("correlation=%q store calls=%d", out.CorrelationID, f.store.count())
	}
}

func TestScenarioF_OutOfRangeValue(t *testing.T) {
	f := newFixture(t, "en")
	before, _ := f.store.Store.QueryGrades(context.Background(), domain.GradeFilter{})
	out := f.p.Handle(context.Background(), Request{CallerID: teacherID, Intent: intent.AddGrade{
		StudentID:   intent.Int64(studentID),
		SubjectID:   intent.Int64(1),
		ClassID:     intent.Int64(1),
		Module:      intent.String("Módulo 1"),
		Description: intent.String("Teste 3"),
		Value:       intent.Float64(25),
	}})
	if !out.Failed() || out.Category != domain.CategoryInvalidRange || out.Field != "value" {
		t.Fatalf("outcome = %+v", out)
	}
	after, _ := f.store.Store.QueryGrades(context.Background(), domain.GradeFilter{})
	if len(after) != len(before) {
		t.Fatalf("record persisted: %d -> %d", len(before), len(after))
	}
	if out.Message != "Grade value must be between 0 and 20." {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestStudentWritesNeverComplete(t *testing.T) {
	f := newFixture(t, "en")
	requests := []intent.Intent{
		intent.AddGrade{StudentID: intent.Int64(studentID), SubjectID: intent.Int64(1), ClassID: intent.Int64(1), Module: intent.String("M"), Description: intent.String("D"), Value: intent.Float64(20)},
		intent.AddGrade{StudentID: intent.Int64(otherID), SubjectID: intent.Int64(1), ClassID: intent.Int64(1), Module: intent.String("M"), Description: intent.String("D"), Value: intent.Float64(20)},
		intent.UpdateGrade{GradeID: intent.Int64(1), Value: intent.Float64(20)},
	}
	for _, in := range requests {
		out := f.p.Handle(context.Background(), Request{CallerID: studentID, Intent: in})
		if !out.Blocked() {
			t.Fatalf("%T: outcome = %+v", in, out)
		}
	}
	if f.store.count() != 0 {
		t.Fatalf("store touched by student writes: %d", f.store.count())
	}
}

func TestRoundTripTeacherAddStudentReads(t *testing.T) {
	f := newFixture(t, "en")
	add := f.p.Handle(context.Background(), Request{CallerID: teacherID, Intent: intent.AddGrade{
		StudentID:   intent.Int64(studentID),
		SubjectID:   intent.Int64(2),
		ClassID:     intent.Int64(1),
		Module:      intent.String("Módulo 3"),
		Description: intent.String("Projeto"),
		Value:       intent.Float64(17.25),
	}})
	if !add.Completed() {
		t.Fatalf("add = %+v", add)
	}
	created := add.Result.(domain.GradeResult).Grade

	out := f.p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.QueryGrades{Module: intent.String("Módulo 3")}})
	if !out.Completed() {
		t.Fatalf("query = %+v", out)
	}
	list := out.Result.(domain.GradeList)
	if list.Total != 1 {
		t.Fatalf("total = %d", list.Total)
	}
	got := list.Grades[0]
	if got.ID != created.ID || got.Value != 17.25 || got.Module != "Módulo 3" || got.Description != "Projeto" {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestUnknownIdentity(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.Handle(context.Background(), Request{CallerID: 404, Intent: intent.QueryGrades{}})
	if !out.Failed() || out.Category != domain.CategoryUnknownIdentity {
		t.Fatalf("outcome = %+v", out)
	}
	if len(f.audit.events) != 1 || f.audit.events[0].Role != "" {
		t.Fatalf("audit = %+v", f.audit.events)
	}
}

func TestFallbackSkipsExecute(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.HandleText(context.Background(), studentID, "tell me a joke", "")
	if !out.Completed() || out.Intent != intent.KindFallback {
		t.Fatalf("outcome = %+v", out)
	}
	want := []State{StateLoadIdentity, StatePreGuard, StateRespond, StateCompleted}
	if strings.Join(stateNames(out.Trace), ",") != strings.Join(stateNames(want), ",") {
		t.Fatalf("trace = %v", out.Trace)
	}
	if f.exec.calls != 0 || out.CorrelationID == "" {
		t.Fatalf("exec calls=%d correlation=%q", f.exec.calls, out.CorrelationID)
	}
	if !strings.Contains(out.Message, "Class reports") {
		t.Fatalf("message = %q", out.Message)
	}
}

func TestNamedTargetIsBlockedForStudents(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.HandleText(context.Background(), studentID, "mostra as notas do aluno Pedro Almeida", "")
	if !out.Blocked() || out.Reason != domain.ReasonCrossStudentAccess {
		t.Fatalf("outcome = %+v", out)
	}

	out = f.p.HandleText(context.Background(), teacherID, "mostra as notas do aluno Pedro Almeida", "")
	if !out.Blocked() || out.Reason != domain.ReasonMissingFields || len(out.Fields) != 1 || out.Fields[0] != "student_id" {
		t.Fatalf("teacher outcome = %+v", out)
	}
}

func TestAuthorizationDenyIsBlocked(t *testing.T) {
	f := newFixture(t, "en")
	out := f.p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.ClassReport{ClassID: intent.Int64(1)}})
	if !out.Blocked() || out.Reason != domain.ReasonInsufficientRole {
		t.Fatalf("outcome = %+v", out)
	}
	if !out.Visited(StateExecute) || f.store.count() != 0 {
		t.Fatalf("deny must come from the execution layer without store access: trace=%v calls=%d", out.Trace, f.store.count())
	}
}

type leakyExecutor struct{}

func (leakyExecutor) Dispatch(context.Context, tools.Request) (domain.Result, error) {
	return domain.GradeList{Total: 2, Grades: []domain.GradeRecord{{ID: 1, StudentID: studentID}, {ID: 2, StudentID: otherID}}}, nil
}

func TestLeakDetected(t *testing.T) {
	mem := memstore.New()
	if _, err := seed.Run(context.Background(), mem, seed.Options{Now: fixedNow}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec := &recorder{}
	var logs bytes.Buffer
	p, err := New(Config{
		Resolver: identity.NewResolver(mem),
		Executor: leakyExecutor{},
		Audit:    rec,
		Logger:   slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.QueryGrades{}})
	if !out.Blocked() || out.Reason != domain.ReasonLeakDetected || out.Result != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(rec.events) != 1 || rec.events[0].Type != audit.TypeLeak {
		t.Fatalf("audit = %+v", rec.events)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &line); err != nil {
		t.Fatalf("log line: %v (%s)", err, logs.String())
	}
	if line["level"] != "ERROR" {
		t.Fatalf("leak logged at %v", line["level"])
	}
}

type failingExecutor struct{}

func (failingExecutor) Dispatch(context.Context, tools.Request) (domain.Result, error) {
	return nil, &domain.StoreError{Op: "query grades", Err: errors.New(`pq: password authentication failed for user "grades"`)}
}

func TestStoreErrorDetailIsHidden(t *testing.T) {
	mem := memstore.New()
	if _, err := seed.Run(context.Background(), mem, seed.Options{Now: fixedNow}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := New(Config{Resolver: identity.NewResolver(mem), Executor: failingExecutor{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := p.Handle(context.Background(), Request{CallerID: teacherID, Intent: intent.QueryGrades{}})
	if !out.Failed() || out.Category != domain.CategoryStore {
		t.Fatalf("outcome = %+v", out)
	}
	raw, _ := json.Marshal(out)
	if strings.Contains(string(raw), "password") {
		t.Fatalf("store detail leaked: %s", raw)
	}
}

func stateNames(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func TestNewForStore(t *testing.T) {
	if _, err := NewForStore(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil store")
	}
	mem := memstore.New()
	if _, err := seed.Run(context.Background(), mem, seed.Options{Now: fixedNow, RandSeed: 3}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	p, err := NewForStore(mem, Config{})
	if err != nil {
		t.Fatalf("NewForStore: %v", err)
	}
	out := p.Handle(context.Background(), Request{CallerID: studentID, Intent: intent.Summary{}})
	if !out.Completed() {
		t.Fatalf("outcome = %+v", out)
	}
	if s, ok := out.Result.(domain.Summary); !ok || s.StudentID != studentID {
		t.Fatalf("result = %#v", out.Result)
	}
}

func TestPossessiveTextTargetsAreBlockedForStudents(t *testing.T) {
	phrases := []string{
		"mostra as notas do João",
		"quero ver notas do miguel",
		"média da Ana",
		"grades of John",
		"grades student_id: 5",
	}
	for _, text := range phrases {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t, "pt")
			out := f.p.HandleText(context.Background(), studentID, text, "")
			if !out.Blocked() || out.Reason != domain.ReasonCrossStudentAccess {
				t.Fatalf("outcome = %+v", out)
			}
			if f.exec.calls != 0 || out.Visited(StateExecute) {
				t.Fatalf("execute ran: calls=%d trace=%v", f.exec.calls, out.Trace)
			}
		})
	}

	f := newFixture(t, "en")
	out := f.p.HandleText(context.Background(), studentID, "mostra as minhas notas de matemática", "")
	if !out.Completed() {
		t.Fatalf("own grades outcome = %+v", out)
	}
}
