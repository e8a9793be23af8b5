package translator

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/codex-k8s/grades-mcp-server/internal/intent"
)

// Rules is a keyword and pattern translator for Portuguese and English text.
type Rules struct{}

var (
	deleteWords  = []string{"apagar", "apaga", "eliminar", "elimina", "remover", "remove", "excluir", "exclui", "deletar", "delete", "erase", "purge", "wipe", "drop"}
	addWords     = []string{"adicionar", "adiciona", "inserir", "lançar", "lancar", "registar", "registrar", "nova nota", "add", "insert", "record"}
	updateWords  = []string{"atualizar", "atualiza", "modificar", "alterar", "altera", "mudar", "corrigir", "update", "change", "modify", "edit"}
	summaryWords = []string{"média", "médias", "media", "resumo", "summary", "average"}
	reportWords  = []string{"relatório", "relatorio", "report"}
	queryWords   = []string{"nota", "notas", "avaliação", "avaliações", "avaliacao", "grades", "grade", "marks"}

	// selfWords refer to the caller; notTargets follow "notas de" without naming a person.
	selfWords  = setOf("minha", "minhas", "meu", "meus", "mim", "eu", "my", "mine", "me", "myself")
	notTargets = setOf(
		"turma", "turmas", "class", "classe", "disciplina", "disciplinas", "subject", "subjects",
		"módulo", "modulo", "module", "teste", "test", "exame", "exam", "trabalho", "projeto", "project",
		"aluno", "aluna", "alunos", "student", "students", "todos", "todas", "all", "everyone",
		"hoje", "today", "ano", "year", "semestre", "semester", "período", "periodo", "term",
		"matemática", "matematica", "português", "portugues", "inglês", "ingles", "história", "historia",
		"ciências", "ciencias", "math", "maths", "mathematics", "portuguese", "english", "history", "science",
	)
)

var (
	reValueKeyword = regexp.MustCompile(`(?:valor|value)\s*(?:de|of|=|:)?\s*(\d{1,3}(?:[.,]\d+)?)`)
	reValueTo      = regexp.MustCompile(`(?:para|to)\s+(\d{1,3}(?:[.,]\d+)?)\b`)
	reValueUnit    = regexp.MustCompile(`(\d{1,3}(?:[.,]\d+)?)\s*(?:valores|pontos|points)\b`)
	reValueGrade   = regexp.MustCompile(`(?:nota|grade)\s+(?:de\s+|of\s+)?(\d{1,3}(?:[.,]\d+)?)(?:\s|$|[,.;!?])`)
	reStudentKey   = regexp.MustCompile(`\b(?:student_id|aluno_id|id_aluno)\s*[:=]\s*(\d+)\b`)
	reStudentID    = regexp.MustCompile(`(?:aluno|aluna|student)\s*(?:id\s*)?#?(\d+)\b`)
	reStudentName  = regexp.MustCompile(`(?i:aluno|aluna|student)\s+(\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)*)`)
	reSubjectID    = regexp.MustCompile(`(?:disciplina|subject)\s*(?:id\s*)?#?(\d+)\b`)
	reClassID      = regexp.MustCompile(`(?:turma|class)\s*(?:id\s*)?#?(\d+)(?:\s|$|[,.;!?])`)
	reClassName    = regexp.MustCompile(`(?:turma|class)\s+(\d+[a-z])\b`)
	reModule       = regexp.MustCompile(`(?:módulo|modulo|capítulo|capitulo|module)\s*(\d+|[ivx]+)\b`)
	reDescription  = regexp.MustCompile(`(?i)\b(teste|test|trabalho|projeto|project|ficha|exame|exam)(?:\s+(\d+|[a-z])\b)?`)
	rePossessive   = regexp.MustCompile(`(?:notas?|m[ée]dias?|avalia[çc](?:ão|ões|ao|oes)|resumo|relat[óo]rio|grades?|marks|averages?|summary|report)\s+(?:do|da|dos|das|de|of|for)\s+(?:o\s+|a\s+|the\s+)?(\p{L}+)`)
	reGradeID      = regexp.MustCompile(`(?:nota|grade|avaliação|avaliacao|evaluation|id)\s*(?:id\s*)?#?(\d+)\b`)
)

// Translate implements Translator.
func (Rules) Translate(_ context.Context, text string) (intent.Intent, error) {
	return intent.Decode(Parse(text)), nil
}

// Parse extracts a raw intent and entities from text.
func Parse(text string) intent.Raw {
	lower := strings.ToLower(text)
	raw := intent.Raw{Intent: classify(lower), Entities: map[string]any{}, Confidence: "low"}
	e := raw.Entities

	if m := reStudentKey.FindStringSubmatch(lower); m != nil {
		e["student_id"] = atoi(m[1])
	} else if m := reStudentID.FindStringSubmatch(lower); m != nil {
		e["student_id"] = atoi(m[1])
	} else if m := reStudentName.FindStringSubmatch(text); m != nil {
		e["student_name"] = m[1]
	} else if name := possessiveTarget(lower); name != "" {
		e["student_name"] = name
	}
	if m := reSubjectID.FindStringSubmatch(lower); m != nil {
		e["subject_id"] = atoi(m[1])
	}
	if m := reClassID.FindStringSubmatch(lower); m != nil {
		e["class_id"] = atoi(m[1])
	} else if m := reClassName.FindStringSubmatch(lower); m != nil {
		e["class_name"] = strings.ToUpper(m[1])
	}
	if m := reModule.FindStringSubmatch(lower); m != nil {
		e["module"] = "Módulo " + strings.ToUpper(m[1])
	}
	if m := reDescription.FindStringSubmatch(text); m != nil {
		desc := capitalize(strings.ToLower(m[1]))
		if m[2] != "" {
			desc += " " + strings.ToUpper(m[2])
		}
		e["description"] = desc
	}
	if raw.Intent == "update_grade" {
		if m := reGradeID.FindStringSubmatch(lower); m != nil {
			e["grade_id"] = atoi(m[1])
		}
	}
	if raw.Intent == "add_grade" || raw.Intent == "update_grade" {
		patterns := []*regexp.Regexp{reValueKeyword, reValueTo, reValueUnit}
		if raw.Intent == "add_grade" {
			patterns = append(patterns, reValueGrade)
		}
		for _, re := range patterns {
			if m := re.FindStringSubmatch(lower); m != nil {
				e["value"] = m[1]
				break
			}
		}
	}
	if len(e) > 0 {
		raw.Confidence = "medium"
	}
	return raw
}

func classify(lower string) string {
	switch {
	case containsAny(lower, deleteWords):
		return "delete_grade"
	case containsAny(lower, addWords):
		return "add_grade"
	case containsAny(lower, updateWords):
		return "update_grade"
	case containsAny(lower, summaryWords):
		return "summary"
	case containsAny(lower, reportWords):
		return "class_report"
	case containsAny(lower, queryWords):
		return "query_grades"
	default:
		return "fallback"
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord matches w at word boundaries so "add" does not match "address".
func containsWord(text, w string) bool {
	for i := 0; ; {
		idx := strings.Index(text[i:], w)
		if idx < 0 {
			return false
		}
		start := i + idx
		end := start + len(w)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		i = start + 1
		if i >= len(text) {
			return false
		}
	}
}

func isBoundary(text string, pos int) bool {
	if pos < 0 || pos >= len(text) {
		return true
	}
	c := text[pos]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80 || c == '_')
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// possessiveTarget returns the person named in "notas do João" or "grades of John".
func possessiveTarget(lower string) string {
	for _, m := range rePossessive.FindAllStringSubmatch(lower, -1) {
		word := m[1]
		if _, ok := selfWords[word]; ok {
			continue
		}
		if _, ok := notTargets[word]; ok {
			continue
		}
		return capitalize(word)
	}
	return ""
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
