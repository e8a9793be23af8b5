// Package memstore is an in-process Store used by tests and the memory driver.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

type user struct {
	id   int64
	name string
	role domain.Role
}

// Store keeps users, subjects, classes, enrollments and grades in maps.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]user
	subjects map[int64]string
	classes  map[int64]string
	enrolled map[int64]map[int64]struct{}
	grades   map[int64]domain.GradeRecord
	nextID   int64
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = make(map[int64]user)
	s.subjects = make(map[int64]string)
	s.classes = make(map[int64]string)
	s.enrolled = make(map[int64]map[int64]struct{})
	s.grades = make(map[int64]domain.GradeRecord)
	s.nextID = 0
}

// Reset implements store.Seeder.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// CreateUser implements store.Seeder.
func (s *Store) CreateUser(_ context.Context, name string, role domain.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.users) + 1)
	s.users[id] = user{id: id, name: name, role: role}
	return id, nil
}

// CreateSubject implements store.Seeder.
func (s *Store) CreateSubject(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.subjects) + 1)
	s.subjects[id] = name
	return id, nil
}

// CreateClass implements store.Seeder.
func (s *Store) CreateClass(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.classes) + 1)
	s.classes[id] = name
	return id, nil
}

// Enroll implements store.Seeder.
func (s *Store) Enroll(_ context.Context, studentID, classID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[studentID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.classes[classID]; !ok {
		return store.ErrNotFound
	}
	if s.enrolled[classID] == nil {
		s.enrolled[classID] = make(map[int64]struct{})
	}
	s.enrolled[classID][studentID] = struct{}{}
	return nil
}

// GetIdentity implements store.Store.
func (s *Store) GetIdentity(_ context.Context, id int64) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.Identity{}, store.ErrNotFound
	}
	return domain.Identity{ID: u.id, DisplayName: u.name, Role: u.role}, nil
}

// InsertGrade implements store.Store.
func (s *Store) InsertGrade(_ context.Context, g domain.NewGrade) (domain.GradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	by := g.LastModifiedBy
	rec := domain.GradeRecord{
		ID:             s.nextID,
		StudentID:      g.StudentID,
		SubjectID:      g.SubjectID,
		ClassID:        g.ClassID,
		Module:         g.Module,
		Description:    g.Description,
		Value:          g.Value,
		RecordedAt:     g.RecordedAt,
		LastModifiedBy: &by,
		LastModifiedAt: g.LastModifiedAt,
	}
	s.grades[rec.ID] = rec
	return s.withNames(rec), nil
}

// UpdateGrade implements store.Store.
func (s *Store) UpdateGrade(_ context.Context, id int64, patch domain.GradePatch, updatedBy int64, updatedAt time.Time) (domain.GradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.grades[id]
	if !ok {
		return domain.GradeRecord{}, store.ErrNotFound
	}
	if patch.Value != nil {
		rec.Value = *patch.Value
	}
	if patch.Module != nil {
		rec.Module = *patch.Module
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	by := updatedBy
	rec.LastModifiedBy = &by
	rec.LastModifiedAt = updatedAt
	s.grades[id] = rec
	return s.withNames(rec), nil
}

// QueryGrades implements store.Store.
func (s *Store) QueryGrades(_ context.Context, f domain.GradeFilter) ([]domain.GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GradeRecord, 0)
	for _, rec := range s.grades {
		if f.StudentID != nil && rec.StudentID != *f.StudentID {
			continue
		}
		if f.SubjectID != nil && rec.SubjectID != *f.SubjectID {
			continue
		}
		if f.ClassID != nil && rec.ClassID != *f.ClassID {
			continue
		}
		if f.Module != nil && rec.Module != *f.Module {
			continue
		}
		out = append(out, s.withNames(rec))
	}
	sortNewestFirst(out)
	return out, nil
}

// AggregateSummary implements store.Store.
func (s *Store) AggregateSummary(ctx context.Context, studentID int64, f domain.SummaryFilter) (domain.Summary, error) {
	ident, err := s.GetIdentity(ctx, studentID)
	if err != nil {
		return domain.Summary{}, err
	}
	grades, err := s.QueryGrades(ctx, domain.GradeFilter{StudentID: &studentID, SubjectID: f.SubjectID})
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		StudentID:   ident.ID,
		StudentName: ident.DisplayName,
		Filters:     f,
		Total:       len(grades),
		Recent:      []domain.GradeRecord{},
	}
	if len(grades) == 0 {
		return summary, nil
	}

	values := make([]float64, 0, len(grades))
	bySubject := map[int64]*domain.SubjectAverage{}
	order := []int64{}
	for _, g := range grades {
		values = append(values, g.Value)
		avg, ok := bySubject[g.SubjectID]
		if !ok {
			avg = &domain.SubjectAverage{SubjectID: g.SubjectID, SubjectName: g.SubjectName}
			bySubject[g.SubjectID] = avg
			order = append(order, g.SubjectID)
		}
		avg.Average += g.Value
		avg.Total++
	}
	stats := domain.ComputeStatistics(values)
	summary.Average = &stats.Mean
	summary.Min = &stats.Min
	summary.Max = &stats.Max
	if f.SubjectID == nil {
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
		for _, id := range order {
			avg := bySubject[id]
			avg.Average = domain.Round2(avg.Average / float64(avg.Total))
			summary.BySubject = append(summary.BySubject, *avg)
		}
	}
	n := min(len(grades), store.RecentLimit)
	summary.Recent = grades[:n]
	return summary, nil
}

// AggregateClassReport implements store.Store.
func (s *Store) AggregateClassReport(_ context.Context, classID int64, f domain.ReportFilter) (domain.ClassReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.classes[classID]
	if !ok {
		return domain.ClassReport{}, store.ErrNotFound
	}

	studentIDs := make([]int64, 0, len(s.enrolled[classID]))
	for id := range s.enrolled[classID] {
		if s.users[id].role == domain.RoleStudent {
			studentIDs = append(studentIDs, id)
		}
	}
	sort.Slice(studentIDs, func(i, j int) bool {
		a, b := s.users[studentIDs[i]], s.users[studentIDs[j]]
		if a.name != b.name {
			return a.name < b.name
		}
		return a.id < b.id
	})

	report := domain.ClassReport{ClassID: classID, ClassName: name, Filters: f, Students: []domain.StudentReport{}}
	var all []float64
	for _, id := range studentIDs {
		var values []float64
		for _, g := range s.grades {
			if g.StudentID != id || g.ClassID != classID {
				continue
			}
			if f.SubjectID != nil && g.SubjectID != *f.SubjectID {
				continue
			}
			if f.Module != nil && g.Module != *f.Module {
				continue
			}
			values = append(values, g.Value)
		}
		line := domain.StudentReport{StudentID: id, StudentName: s.users[id].name, Total: len(values)}
		if stats := domain.ComputeStatistics(values); stats != nil {
			line.Average = &stats.Mean
			line.Min = &stats.Min
			line.Max = &stats.Max
		}
		report.Students = append(report.Students, line)
		all = append(all, values...)
	}
	report.Statistics = domain.ComputeStatistics(all)
	return report, nil
}

// IsEnrolled implements store.Store.
func (s *Store) IsEnrolled(_ context.Context, studentID, classID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enrolled[classID][studentID]
	return ok, nil
}

// SubjectExists implements store.Store.
func (s *Store) SubjectExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subjects[id]
	return ok, nil
}

// ClassExists implements store.Store.
func (s *Store) ClassExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.classes[id]
	return ok, nil
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) withNames(rec domain.GradeRecord) domain.GradeRecord {
	rec.StudentName = s.users[rec.StudentID].name
	rec.SubjectName = s.subjects[rec.SubjectID]
	rec.ClassName = s.classes[rec.ClassID]
	return rec
}

func sortNewestFirst(grades []domain.GradeRecord) {
	sort.SliceStable(grades, func(i, j int) bool {
		if grades[i].RecordedAt.Equal(grades[j].RecordedAt) {
			return grades[i].ID > grades[j].ID
		}
		return grades[i].RecordedAt.After(grades[j].RecordedAt)
	})
}
