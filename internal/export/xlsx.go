// Package export renders reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/templates"
)

// ContentTypeXLSX is the MIME type of the generated workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename returns the download name of a class report.
func Filename(report domain.ClassReport) string {
	return fmt.Sprintf("class_report_%d.xlsx", report.ClassID)
}

// WriteClassReport writes report as a single-sheet workbook to w.
// Per-student rows come first, followed by the class statistics.
func WriteClassReport(w io.Writer, report domain.ClassReport, messages templates.Renderer) error {
	text := func(key, def string) string {
		if v := templates.Text(messages, key, nil); v != key {
			return v
		}
		return def
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := text("export.sheet", "Report") + " " + report.ClassName
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}

	headers := []any{
		text("export.student_id", "Student ID"),
		text("export.student", "Student"),
		text("export.total", "Grades"),
		text("export.average", "Average"),
		text("export.min", "Min"),
		text("export.max", "Max"),
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	row := 2
	for _, s := range report.Students {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{s.StudentID, s.StudentName, s.Total, orBlank(s.Average), orBlank(s.Min), orBlank(s.Max)}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
		row++
	}

	if stats := report.Statistics; stats != nil {
		row++
		title, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetCellValue(sheet, title, text("export.statistics", "Class statistics")); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, title, title, bold); err != nil {
			return err
		}
		lines := []struct {
			key, def string
			value    any
		}{
			{"export.mean", "Mean", stats.Mean},
			{"export.median", "Median", stats.Median},
			{"export.min", "Min", stats.Min},
			{"export.max", "Max", stats.Max},
			{"export.total", "Grades", stats.Total},
		}
		for _, line := range lines {
			row++
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{text(line.key, line.def), line.value}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return fmt.Errorf("statistics: %w", err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "B", "B", 28); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func orBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
