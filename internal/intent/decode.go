package intent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw is the untyped translator output: {intent, entities, confidence}.
type Raw struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence string         `json:"confidence,omitempty"`
}

var mutatingPrefixes = []string{"delete", "remove", "drop", "purge", "erase", "truncate", "clear", "reset", "destroy", "wipe"}

// entity aliases accepted from translators, keyed by canonical name.
var entityAliases = map[string][]string{
	"student_id":   {"student_id", "aluno_id", "user_id"},
	"student_name": {"student_name", "aluno_name", "aluno"},
	"grade_id":     {"grade_id", "avaliacao_id", "evaluation_id"},
	"subject_id":   {"subject_id", "disciplina_id"},
	"class_id":     {"class_id", "turma_id"},
	"class_name":   {"class_name", "turma_name", "turma"},
	"module":       {"module", "modulo"},
	"description":  {"description", "descricao"},
	"value":        {"value", "valor", "grade"},
	"date":         {"date", "recorded_at"},
}

// Decode converts raw translator output into a typed intent. Unknown kinds become
// Fallback; delete-type and other unsupported mutating kinds become Blocked.
func Decode(raw Raw) Intent {
	kind := normalizeKind(raw.Intent)
	e := entities(raw.Entities)

	switch Kind(kind) {
	case KindAddGrade:
		studentID, studentName := e.target("student_id", "student_name")
		return AddGrade{
			StudentID:   studentID,
			StudentName: studentName,
			SubjectID:   e.int("subject_id"),
			ClassID:     e.int("class_id"),
			Module:      e.str("module"),
			Description: e.str("description"),
			Value:       e.float("value"),
			RecordedAt:  e.time("date"),
		}
	case KindUpdateGrade:
		return UpdateGrade{
			GradeID:     e.int("grade_id"),
			Value:       e.float("value"),
			Module:      e.str("module"),
			Description: e.str("description"),
		}
	case KindQueryGrades:
		studentID, studentName := e.target("student_id", "student_name")
		return QueryGrades{
			StudentID:   studentID,
			StudentName: studentName,
			SubjectID:   e.int("subject_id"),
			ClassID:     e.int("class_id"),
			Module:      e.str("module"),
		}
	case KindSummary:
		studentID, studentName := e.target("student_id", "student_name")
		return Summary{
			StudentID:   studentID,
			StudentName: studentName,
			SubjectID:   e.int("subject_id"),
		}
	case KindClassReport:
		classID, className := e.target("class_id", "class_name")
		return ClassReport{
			ClassID:   classID,
			ClassName: className,
			SubjectID: e.int("subject_id"),
			Module:    e.str("module"),
		}
	case KindBlocked:
		return Blocked{Operation: kind}
	}

	if isMutatingKind(kind) {
		return Blocked{Operation: kind}
	}
	return Fallback{}
}

// DecodeJSON parses a JSON document shaped like Raw and decodes it.
func DecodeJSON(data []byte) (Intent, Raw, error) {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, Raw{}, fmt.Errorf("parse intent json: %w", err)
	}
	return Decode(raw), raw, nil
}

func normalizeKind(value string) string {
	kind := strings.ToLower(strings.TrimSpace(value))
	kind = strings.NewReplacer("-", "_", " ", "_").Replace(kind)
	switch kind {
	case "grade_summary":
		return string(KindSummary)
	case "report", "class_reports":
		return string(KindClassReport)
	}
	return kind
}

func isMutatingKind(kind string) bool {
	for _, prefix := range mutatingPrefixes {
		if strings.HasPrefix(kind, prefix) {
			return true
		}
	}
	return false
}

type entities map[string]any

func (e entities) lookup(name string) (any, bool) {
	for _, alias := range entityAliases[name] {
		if v, ok := e[alias]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

// target reads an id entity that may arrive as a name. Non-numeric ids are kept as
// names so the guardrail can refuse them instead of guessing.
func (e entities) target(idKey, nameKey string) (*int64, string) {
	name := ""
	if v, ok := e.lookup(nameKey); ok {
		name = strings.TrimSpace(fmt.Sprint(v))
	}
	v, ok := e.lookup(idKey)
	if !ok {
		return nil, name
	}
	if id, ok := toInt(v); ok {
		return &id, name
	}
	if name == "" {
		name = strings.TrimSpace(fmt.Sprint(v))
	}
	return nil, name
}

func (e entities) int(name string) *int64 {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	id, ok := toInt(v)
	if !ok {
		return nil
	}
	return &id
}

func (e entities) float(name string) *float64 {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func (e entities) str(name string) *string {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}

func (e entities) time(name string) *time.Time {
	v, ok := e.lookup(name)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return &t
		}
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	}
	return 0, false
}
