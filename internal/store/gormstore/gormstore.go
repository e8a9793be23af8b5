// Package gormstore implements the grade store on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codex-k8s/grades-mcp-server/internal/domain"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
)

// Options tunes the connection pool.
type Options struct {
	// MaxOpenConns caps open connections.
	MaxOpenConns int
	// MaxIdleConns caps idle connections.
	MaxIdleConns int
	// ConnMaxLifetime recycles connections.
	ConnMaxLifetime time.Duration
	// SlowThreshold logs queries slower than this at warn level.
	SlowThreshold time.Duration
}

// Store is a gorm-backed store.Store.
type Store struct {
	db *gorm.DB
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)

// Open connects to PostgreSQL using dsn.
func Open(dsn string, opts Options, log *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = 500 * time.Millisecond
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(slogWriter{log: log}, logger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetIdentity implements store.Store.
func (s *Store) GetIdentity(ctx context.Context, id int64) (domain.Identity, error) {
	var u User
	if err := s.db.WithContext(ctx).Take(&u, "id = ?", id).Error; err != nil {
		return domain.Identity{}, mapErr(err)
	}
	return domain.Identity{ID: u.ID, DisplayName: u.Name, Role: domain.Role(u.Role)}, nil
}

// InsertGrade implements store.Store and store.Seeder.
func (s *Store) InsertGrade(ctx context.Context, g domain.NewGrade) (domain.GradeRecord, error) {
	by := g.LastModifiedBy
	row := Grade{
		StudentID:   g.StudentID,
		SubjectID:   g.SubjectID,
		ClassID:     g.ClassID,
		Module:      g.Module,
		Description: g.Description,
		Value:       g.Value,
		RecordedAt:  g.RecordedAt,
		UpdatedBy:   &by,
		UpdatedAt:   g.LastModifiedAt,
	}
	if err := s.db.WithContext(ctx).Omit("Student", "Subject", "Class", "Updater").Create(&row).Error; err != nil {
		return domain.GradeRecord{}, fmt.Errorf("insert grade: %w", err)
	}
	return s.loadGrade(ctx, row.ID)
}

// UpdateGrade implements store.Store.
func (s *Store) UpdateGrade(ctx context.Context, id int64, patch domain.GradePatch, updatedBy int64, updatedAt time.Time) (domain.GradeRecord, error) {
	updates := map[string]any{
		"updated_by": updatedBy,
		"updated_at": updatedAt,
	}
	if patch.Value != nil {
		updates["value"] = *patch.Value
	}
	if patch.Module != nil {
		updates["module"] = *patch.Module
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	res := s.db.WithContext(ctx).Model(&Grade{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return domain.GradeRecord{}, fmt.Errorf("update grade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.GradeRecord{}, store.ErrNotFound
	}
	return s.loadGrade(ctx, id)
}

// QueryGrades implements store.Store.
func (s *Store) QueryGrades(ctx context.Context, f domain.GradeFilter) ([]domain.GradeRecord, error) {
	q := s.withRelations(ctx)
	if f.StudentID != nil {
		q = q.Where("student_id = ?", *f.StudentID)
	}
	if f.SubjectID != nil {
		q = q.Where("subject_id = ?", *f.SubjectID)
	}
	if f.ClassID != nil {
		q = q.Where("class_id = ?", *f.ClassID)
	}
	if f.Module != nil {
		q = q.Where("module = ?", *f.Module)
	}
	var rows []Grade
	if err := q.Order("recorded_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query grades: %w", err)
	}
	return toRecords(rows), nil
}

// AggregateSummary implements store.Store.
func (s *Store) AggregateSummary(ctx context.Context, studentID int64, f domain.SummaryFilter) (domain.Summary, error) {
	ident, err := s.GetIdentity(ctx, studentID)
	if err != nil {
		return domain.Summary{}, err
	}

	var agg struct {
		Total   int
		Average *float64
		Min     *float64
		Max     *float64
	}
	q := s.db.WithContext(ctx).Model(&Grade{}).
		Select("COUNT(*) AS total, AVG(value) AS average, MIN(value) AS min, MAX(value) AS max").
		Where("student_id = ?", studentID)
	if f.SubjectID != nil {
		q = q.Where("subject_id = ?", *f.SubjectID)
	}
	if err := q.Scan(&agg).Error; err != nil {
		return domain.Summary{}, fmt.Errorf("summary aggregate: %w", err)
	}

	summary := domain.Summary{
		StudentID:   ident.ID,
		StudentName: ident.DisplayName,
		Filters:     f,
		Total:       agg.Total,
		Min:         agg.Min,
		Max:         agg.Max,
		Recent:      []domain.GradeRecord{},
	}
	if agg.Average != nil {
		avg := domain.Round2(*agg.Average)
		summary.Average = &avg
	}
	if agg.Total == 0 {
		return summary, nil
	}

	if f.SubjectID == nil {
		var bySubject []domain.SubjectAverage
		err := s.db.WithContext(ctx).Table("grades").
			Select("grades.subject_id AS subject_id, subjects.name AS subject_name, AVG(grades.value) AS average, COUNT(grades.id) AS total").
			Joins("JOIN subjects ON subjects.id = grades.subject_id").
			Where("grades.student_id = ?", studentID).
			Group("grades.subject_id, subjects.name").
			Order("grades.subject_id").
			Scan(&bySubject).Error
		if err != nil {
			return domain.Summary{}, fmt.Errorf("summary by subject: %w", err)
		}
		for i := range bySubject {
			bySubject[i].Average = domain.Round2(bySubject[i].Average)
		}
		summary.BySubject = bySubject
	}

	recent := s.withRelations(ctx).Where("student_id = ?", studentID)
	if f.SubjectID != nil {
		recent = recent.Where("subject_id = ?", *f.SubjectID)
	}
	var rows []Grade
	if err := recent.Order("recorded_at DESC, id DESC").Limit(store.RecentLimit).Find(&rows).Error; err != nil {
		return domain.Summary{}, fmt.Errorf("summary recent: %w", err)
	}
	summary.Recent = toRecords(rows)
	return summary, nil
}

// AggregateClassReport implements store.Store.
func (s *Store) AggregateClassReport(ctx context.Context, classID int64, f domain.ReportFilter) (domain.ClassReport, error) {
	var class Class
	if err := s.db.WithContext(ctx).Take(&class, "id = ?", classID).Error; err != nil {
		return domain.ClassReport{}, mapErr(err)
	}

	var students []struct {
		ID   int64
		Name string
	}
	err := s.db.WithContext(ctx).Table("users").
		Select("users.id, users.name").
		Joins("JOIN enrollments ON enrollments.user_id = users.id").
		Where("enrollments.class_id = ? AND users.role = ?", classID, string(domain.RoleStudent)).
		Order("users.name, users.id").
		Scan(&students).Error
	if err != nil {
		return domain.ClassReport{}, fmt.Errorf("class students: %w", err)
	}

	var values []struct {
		StudentID int64
		Value     float64
	}
	q := s.db.WithContext(ctx).Model(&Grade{}).
		Select("student_id, value").
		Where("class_id = ?", classID)
	if f.SubjectID != nil {
		q = q.Where("subject_id = ?", *f.SubjectID)
	}
	if f.Module != nil {
		q = q.Where("module = ?", *f.Module)
	}
	if err := q.Scan(&values).Error; err != nil {
		return domain.ClassReport{}, fmt.Errorf("class grades: %w", err)
	}

	byStudent := make(map[int64][]float64, len(students))
	for _, v := range values {
		byStudent[v.StudentID] = append(byStudent[v.StudentID], v.Value)
	}

	report := domain.ClassReport{ClassID: class.ID, ClassName: class.Name, Filters: f, Students: []domain.StudentReport{}}
	var all []float64
	for _, st := range students {
		vals := byStudent[st.ID]
		line := domain.StudentReport{StudentID: st.ID, StudentName: st.Name, Total: len(vals)}
		if stats := domain.ComputeStatistics(vals); stats != nil {
			line.Average = &stats.Mean
			line.Min = &stats.Min
			line.Max = &stats.Max
		}
		report.Students = append(report.Students, line)
		all = append(all, vals...)
	}
	report.Statistics = domain.ComputeStatistics(all)
	return report, nil
}

// IsEnrolled implements store.Store.
func (s *Store) IsEnrolled(ctx context.Context, studentID, classID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Enrollment{}).
		Where("user_id = ? AND class_id = ?", studentID, classID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("enrollment lookup: %w", err)
	}
	return count > 0, nil
}

// SubjectExists implements store.Store.
func (s *Store) SubjectExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &Subject{}, id)
}

// ClassExists implements store.Store.
func (s *Store) ClassExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, &Class{}, id)
}

// CreateUser implements store.Seeder.
func (s *Store) CreateUser(ctx context.Context, name string, role domain.Role) (int64, error) {
	row := User{Name: name, Role: string(role)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return row.ID, nil
}

// CreateSubject implements store.Seeder.
func (s *Store) CreateSubject(ctx context.Context, name string) (int64, error) {
	row := Subject{Name: name}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create subject: %w", err)
	}
	return row.ID, nil
}

// CreateClass implements store.Seeder.
func (s *Store) CreateClass(ctx context.Context, name string) (int64, error) {
	row := Class{Name: name}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create class: %w", err)
	}
	return row.ID, nil
}

// Enroll implements store.Seeder.
func (s *Store) Enroll(ctx context.Context, studentID, classID int64) error {
	row := Enrollment{UserID: studentID, ClassID: classID}
	if err := s.db.WithContext(ctx).Omit("User", "Class").Create(&row).Error; err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

// Reset implements store.Seeder. Identity sequences restart so seeded ids are stable.
func (s *Store) Reset(ctx context.Context) error {
	err := s.db.WithContext(ctx).Exec("TRUNCATE grades, enrollments, users, subjects, classes RESTART IDENTITY CASCADE").Error
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, model any, id int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return count > 0, nil
}

func (s *Store) withRelations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Grade{}).Preload("Student").Preload("Subject").Preload("Class")
}

func (s *Store) loadGrade(ctx context.Context, id int64) (domain.GradeRecord, error) {
	var row Grade
	if err := s.withRelations(ctx).Take(&row, "id = ?", id).Error; err != nil {
		return domain.GradeRecord{}, mapErr(err)
	}
	return toRecord(row), nil
}

func toRecords(rows []Grade) []domain.GradeRecord {
	out := make([]domain.GradeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRecord(row))
	}
	return out
}

func toRecord(row Grade) domain.GradeRecord {
	return domain.GradeRecord{
		ID:             row.ID,
		StudentID:      row.StudentID,
		StudentName:    row.Student.Name,
		SubjectID:      row.SubjectID,
		SubjectName:    row.Subject.Name,
		ClassID:        row.ClassID,
		ClassName:      row.Class.Name,
		Module:         row.Module,
		Description:    row.Description,
		Value:          row.Value,
		RecordedAt:     row.RecordedAt,
		LastModifiedBy: row.UpdatedBy,
		LastModifiedAt: row.UpdatedAt,
	}
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	if w.log == nil {
		return
	}
	w.log.Warn("gorm", "message", fmt.Sprintf(format, args...))
}
