package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codex-k8s/grades-mcp-server/internal/audit"
	"github.com/codex-k8s/grades-mcp-server/internal/constants"
	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/export"
	"github.com/codex-k8s/grades-mcp-server/internal/intent"
	"github.com/codex-k8s/grades-mcp-server/internal/pipeline"
	"github.com/codex-k8s/grades-mcp-server/internal/protocol"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

const maxBodyBytes = 64 << 10

type chatRequest struct {
	Message string `json:"message"`
}

type addGradeRequest struct {
	StudentID   *int64     `json:"student_id"`
	SubjectID   *int64     `json:"subject_id"`
	ClassID     *int64     `json:"class_id"`
	Module      *string    `json:"module"`
	Description *string    `json:"description"`
	Value       *float64   `json:"value"`
	RecordedAt  *time.Time `json:"recorded_at"`
}

type updateGradeRequest struct {
	Value       *float64 `json:"value"`
	Module      *string  `json:"module"`
	Description *string  `json:"description"`
}

type identityResponse struct {
	ID          int64       `json:"id"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
}

type errorBody struct {
	Status   string `json:"status"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if d := s.opts.Limits.CheckText(req.Message); !d.Allowed {
		writeJSON(w, http.StatusUnprocessableEntity, protocol.Invalid("message", d.Reason, correlation(r.Context())))
		return
	}
	out := s.opts.Pipeline.HandleText(r.Context(), callerID(r.Context()), req.Message, correlation(r.Context()))
	s.respond(w, out, http.StatusOK)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	ident, err := s.opts.Resolver.Resolve(r.Context(), callerID(r.Context()))
	if err != nil {
		var unknown *domain.UnknownIdentityError
		if errors.As(err, &unknown) {
			writeJSON(w, http.StatusUnauthorized, protocol.ToolResponse{
				Status:        protocol.StatusError,
				Category:      string(domain.CategoryUnknownIdentity),
				Message:       templates.Text(s.opts.Messages, "failure."+string(domain.CategoryUnknownIdentity), nil),
				CorrelationID: correlation(r.Context()),
			})
			return
		}
		s.opts.Logger.Error("identity lookup failed", "error", err, "correlation_id", correlation(r.Context()))
		writeJSON(w, http.StatusInternalServerError, protocol.ToolResponse{
			Status:        protocol.StatusError,
			Category:      string(domain.CategoryStore),
			Message:       templates.Text(s.opts.Messages, "failure."+string(domain.CategoryStore), nil),
			CorrelationID: correlation(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{ID: ident.ID, DisplayName: ident.DisplayName, Role: ident.Role})
}

func (s *Server) addGrade(w http.ResponseWriter, r *http.Request) {
	var req addGradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.run(w, r, intent.AddGrade{
		StudentID:   req.StudentID,
		SubjectID:   req.SubjectID,
		ClassID:     req.ClassID,
		Module:      req.Module,
		Description: req.Description,
		Value:       req.Value,
		RecordedAt:  req.RecordedAt,
	}, http.StatusCreated)
}

func (s *Server) updateGrade(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "grade_id")
	if !ok {
		return
	}
	var req updateGradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.run(w, r, intent.UpdateGrade{GradeID: &id, Value: req.Value, Module: req.Module, Description: req.Description}, http.StatusOK)
}

func (s *Server) queryGrades(w http.ResponseWriter, r *http.Request) {
	q := query{values: r.URL.Query()}
	in := intent.QueryGrades{
		StudentID: q.int("student_id"),
		SubjectID: q.int("subject_id"),
		ClassID:   q.int("class_id"),
		Module:    q.str("module"),
	}
	if q.invalid(w, correlation(r.Context())) {
		return
	}
	s.run(w, r, in, http.StatusOK)
}

func (s *Server) ownSummary(w http.ResponseWriter, r *http.Request) {
	q := query{values: r.URL.Query()}
	in := intent.Summary{SubjectID: q.int("subject_id")}
	if q.invalid(w, correlation(r.Context())) {
		return
	}
	s.run(w, r, in, http.StatusOK)
}

func (s *Server) studentSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "student_id")
	if !ok {
		return
	}
	q := query{values: r.URL.Query()}
	in := intent.Summary{StudentID: &id, SubjectID: q.int("subject_id")}
	if q.invalid(w, correlation(r.Context())) {
		return
	}
	s.run(w, r, in, http.StatusOK)
}

func (s *Server) classReport(w http.ResponseWriter, r *http.Request) {
	in, ok := s.reportIntent(w, r)
	if !ok {
		return
	}
	s.run(w, r, in, http.StatusOK)
}

func (s *Server) classReportXLSX(w http.ResponseWriter, r *http.Request) {
	in, ok := s.reportIntent(w, r)
	if !ok {
		return
	}
	out := s.handle(r, in)
	report, isReport := out.Result.(domain.ClassReport)
	if !out.Completed() || !isReport {
		s.respond(w, out, http.StatusOK)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteClassReport(&buf, report, s.opts.Messages); err != nil {
		s.opts.Logger.Error("class report export failed", "error", err, "correlation_id", out.CorrelationID)
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: protocol.StatusError, Message: "export failed"})
		return
	}
	w.Header().Set("Content-Type", export.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// deleteGrade answers every delete request with a fixed refusal. Nothing is dispatched.
func (s *Server) deleteGrade(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationOf(r)
	w.Header().Set(headerCorrelationID, correlationID)
	caller, _ := s.callerFrom(r)
	if s.opts.Audit != nil {
		s.opts.Audit.Record(r.Context(), audit.Event{
			Type:          audit.TypeDeleteProbe,
			Intent:        "delete_grade",
			CorrelationID: correlationID,
			CallerID:      caller,
			State:         string(pipeline.StateBlocked),
			Reason:        string(domain.ReasonNoDeleteFeature),
			Source:        constants.SourceAPI,
		})
	}
	s.opts.Logger.Info("delete request refused", "caller_id", caller, "path", r.URL.Path, "correlation_id", correlationID)
	w.Header().Set("Allow", "GET, POST, PATCH")
	message := templates.Text(s.opts.Messages, "block."+string(domain.ReasonNoDeleteFeature), nil)
	writeJSON(w, http.StatusMethodNotAllowed, protocol.Denied(domain.ReasonNoDeleteFeature, message, correlationID))
}

func (s *Server) reportIntent(w http.ResponseWriter, r *http.Request) (intent.Intent, bool) {
	id, ok := s.pathID(w, r, "class_id")
	if !ok {
		return nil, false
	}
	q := query{values: r.URL.Query()}
	in := intent.ClassReport{ClassID: &id, SubjectID: q.int("subject_id"), Module: q.str("module")}
	if q.invalid(w, correlation(r.Context())) {
		return nil, false
	}
	return in, true
}

func (s *Server) handle(r *http.Request, in intent.Intent) pipeline.Outcome {
	return s.opts.Pipeline.Handle(r.Context(), pipeline.Request{
		CallerID:      callerID(r.Context()),
		Intent:        in,
		CorrelationID: correlation(r.Context()),
		Source:        constants.SourceAPI,
	})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, in intent.Intent, success int) {
	s.respond(w, s.handle(r, in), success)
}

func (s *Server) respond(w http.ResponseWriter, out pipeline.Outcome, success int) {
	writeJSON(w, StatusFor(out, success), protocol.FromOutcome(out))
}

// StatusFor maps a pipeline outcome onto an HTTP status.
func StatusFor(out pipeline.Outcome, success int) int {
	switch {
	case out.Completed():
		return success
	case out.Blocked():
		if out.Reason == domain.ReasonMissingFields {
			return http.StatusUnprocessableEntity
		}
		return http.StatusForbidden
	}
	switch out.Category {
	case domain.CategoryValidation, domain.CategoryInvalidRange:
		return http.StatusUnprocessableEntity
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryUnknownIdentity:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, protocol.Invalid("body", "invalid JSON body: "+err.Error(), correlation(r.Context())))
		return false
	}
	return true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, field string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, protocol.Invalid(field, field+" must be an integer", correlation(r.Context())))
		return 0, false
	}
	return id, true
}

// query parses optional filters and remembers the first malformed one.
type query struct {
	values map[string][]string
	bad    string
}

func (q *query) int(name string) *int64 {
	raw := q.first(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if q.bad == "" {
			q.bad = name
		}
		return nil
	}
	return &v
}

func (q *query) str(name string) *string {
	raw := q.first(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func (q *query) first(name string) string {
	if vals := q.values[name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func (q *query) invalid(w http.ResponseWriter, correlationID string) bool {
	if q.bad == "" {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, protocol.Invalid(q.bad, q.bad+" must be an integer", correlationID))
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
