// Package seed loads the demonstration data set.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// Teachers, students, subjects and classes in insertion order.
var (
	Teachers = []string{"Prof. Maria Silva", "Prof. João Santos"}
	Students = []string{"Miguel Ferreira", "Ana Costa", "Pedro Almeida", "Sofia Rodrigues", "João Oliveira", "Beatriz Martins"}
	Subjects = []string{"Matemática", "Português", "Inglês", "História", "Ciências"}
	Classes  = []string{"10A", "10B", "11A"}
)

// classOf assigns student index to class index: three in 10A, two in 10B, one in 11A.
var classOf = []int{0, 0, 0, 1, 1, 2}

var (
	modules      = []string{"Módulo 1", "Módulo 2"}
	descriptions = []string{"Teste 1", "Teste 2"}
)

// Options controls generated grades.
type Options struct {
	// Now anchors recorded dates; grades fall in the 90 days before it.
	Now time.Time
	// RandSeed makes grade values reproducible.
	RandSeed uint64
	// SkipReset keeps existing rows.
	SkipReset bool
}

// Report lists the ids created by Run.
type Report struct {
	TeacherIDs []int64
	StudentIDs []int64
	SubjectIDs []int64
	ClassIDs   []int64
	Grades     int
}

// String formats the report for the seed command.
func (r Report) String() string {
	return fmt.Sprintf("teachers=%v students=%v subjects=%v classes=%v grades=%d",
		r.TeacherIDs, r.StudentIDs, r.SubjectIDs, r.ClassIDs, r.Grades)
}

// Run resets the store and inserts the demonstration data.
func Run(ctx context.Context, s store.Seeder, opts Options) (Report, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	rng := rand.New(rand.NewPCG(opts.RandSeed, opts.RandSeed^0x9e3779b97f4a7c15))

	if !opts.SkipReset {
		if err := s.Reset(ctx); err != nil {
			return Report{}, fmt.Errorf("reset: %w", err)
		}
	}

	var rep Report
	for _, name := range Teachers {
		id, err := s.CreateUser(ctx, name, domain.RoleTeacher)
		if err != nil {
			return Report{}, err
		}
		rep.TeacherIDs = append(rep.TeacherIDs, id)
	}
	for _, name := range Students {
		id, err := s.CreateUser(ctx, name, domain.RoleStudent)
		if err != nil {
			return Report{}, err
		}
		rep.StudentIDs = append(rep.StudentIDs, id)
	}
	for _, name := range Subjects {
		id, err := s.CreateSubject(ctx, name)
		if err != nil {
			return Report{}, err
		}
		rep.SubjectIDs = append(rep.SubjectIDs, id)
	}
	for _, name := range Classes {
		id, err := s.CreateClass(ctx, name)
		if err != nil {
			return Report{}, err
		}
		rep.ClassIDs = append(rep.ClassIDs, id)
	}
	for i, studentID := range rep.StudentIDs {
		if err := s.Enroll(ctx, studentID, rep.ClassIDs[classOf[i]]); err != nil {
			return Report{}, err
		}
	}

	base := opts.Now.AddDate(0, 0, -90)
	for i, studentID := range rep.StudentIDs {
		classID := rep.ClassIDs[classOf[i]]
		for _, subjectID := range rep.SubjectIDs[:3] {
			for _, module := range modules {
				for _, description := range descriptions {
					value := math.Round((10+rng.Float64()*10)*10) / 10
					recorded := base.AddDate(0, 0, 1+rng.IntN(80))
					_, err := s.InsertGrade(ctx, domain.NewGrade{
						StudentID:      studentID,
						SubjectID:      subjectID,
						ClassID:        classID,
						Module:         module,
						Description:    description,
						Value:          value,
						RecordedAt:     recorded,
						LastModifiedBy: rep.TeacherIDs[0],
						LastModifiedAt: recorded,
					})
					if err != nil {
						return Report{}, fmt.Errorf("insert grade: %w", err)
					}
					rep.Grades++
				}
			}
		}
	}
	return rep, nil
}
