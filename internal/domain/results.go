package domain

import (
	"math"
	"sort"
)

// Result is the typed output of a dispatched operation.
type Result interface {
	// ResultKind names the result shape.
	ResultKind() string
}

// GradeResult wraps a single created or updated grade.
type GradeResult struct {
	Grade GradeRecord `json:"grade"`
}

// ResultKind implements Result.
func (GradeResult) ResultKind() string { return "grade" }

// GradeList is the output of a filtered grade select.
type GradeList struct {
	Filters GradeFilter   `json:"filters"`
	Total   int           `json:"total"`
	Grades  []GradeRecord `json:"grades"`
}

// ResultKind implements Result.
func (GradeList) ResultKind() string { return "grade_list" }

// SubjectAverage is a per-subject aggregate inside a summary.
type SubjectAverage struct {
	SubjectID   int64   `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Average     float64 `json:"average"`
	Total       int     `json:"total"`
}

// Summary aggregates the grades of one student.
type Summary struct {
	StudentID   int64            `json:"student_id"`
	StudentName string           `json:"student_name"`
	Filters     SummaryFilter    `json:"filters"`
	Total       int              `json:"total"`
	Average     *float64         `json:"average"`
	Min         *float64         `json:"min"`
	Max         *float64         `json:"max"`
	BySubject   []SubjectAverage `json:"by_subject,omitempty"`
	Recent      []GradeRecord    `json:"recent"`
}

// ResultKind implements Result.
func (Summary) ResultKind() string { return "summary" }

// StudentReport is one student's line in a class report.
type StudentReport struct {
	StudentID   int64    `json:"student_id"`
	StudentName string   `json:"student_name"`
	Total       int      `json:"total"`
	Average     *float64 `json:"average"`
	Min         *float64 `json:"min"`
	Max         *float64 `json:"max"`
}

// Statistics describes a set of grade values.
type Statistics struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Total  int     `json:"total"`
}

// ClassReport aggregates grades over the students enrolled in a class.
type ClassReport struct {
	ClassID    int64           `json:"class_id"`
	ClassName  string          `json:"class_name"`
	Filters    ReportFilter    `json:"filters"`
	Students   []StudentReport `json:"students"`
	Statistics *Statistics     `json:"statistics"`
}

// ResultKind implements Result.
func (ClassReport) ResultKind() string { return "class_report" }

// ComputeStatistics returns mean, median, min and max of values, or nil when empty.
func ComputeStatistics(values []float64) *Statistics {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return &Statistics{
		Mean:   Round2(sum / float64(n)),
		Median: Round2(median),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Total:  n,
	}
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
