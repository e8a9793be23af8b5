package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

func TestWriteClassReport(t *testing.T) {
	avg, lo, hi := 15.25, 12.0, 18.5
	report := domain.ClassReport{
		ClassID:   1,
		ClassName: "10A",
		Students: []domain.StudentReport{
			{StudentID: 4, StudentName: "Ana Costa", Total: 2, Average: &avg, Min: &lo, Max: &hi},
			{StudentID: 3, StudentName: "Miguel Ferreira"},
		},
		Statistics: domain.ComputeStatistics([]float64{12, 18.5}),
	}
	msgs, err := templates.Load("pt")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteClassReport(&buf, report, msgs); err != nil {
		t.Fatalf("WriteClassReport: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := "Relatório 10A"
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if rows[0][1] != "Aluno" || rows[1][1] != "Ana Costa" || rows[1][3] != "15.25" {
		t.Fatalf("rows = %v", rows)
	}
	if len(rows[2]) > 3 && rows[2][3] != "" {
		t.Fatalf("student without grades must have a blank average: %v", rows[2])
	}
	if rows[4][0] != "Estatísticas da turma" || rows[5][0] != "Média" || rows[5][1] != "15.25" {
		t.Fatalf("statistics rows = %v", rows[4:])
	}
	if got := Filename(report); got != "class_report_1.xlsx" {
		t.Fatalf("Filename = %q", got)
	}
}
