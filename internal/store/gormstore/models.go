package gormstore

import "time"

// User is a student or teacher row.
type User struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:255;not null"`
	Role string `gorm:"size:16;not null;index;check:role IN ('student','teacher')"`
}

// Subject is a course such as "Matemática".
type Subject struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:255;not null;uniqueIndex"`
}

// Class is a group of students such as "10A".
type Class struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:255;not null;uniqueIndex"`
}

// Enrollment links a student to a class.
type Enrollment struct {
	UserID  int64 `gorm:"primaryKey"`
	ClassID int64 `gorm:"primaryKey;index"`
	User    User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Class   Class `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE"`
}

// Grade is one evaluation row.
type Grade struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	StudentID   int64     `gorm:"not null;index"`
	SubjectID   int64     `gorm:"not null;index"`
	ClassID     int64     `gorm:"not null;index"`
	Module      string    `gorm:"size:100;not null"`
	Description string    `gorm:"size:255;not null"`
	Value       float64   `gorm:"not null"`
	RecordedAt  time.Time `gorm:"not null;index"`
	UpdatedBy   *int64
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`

	Student User    `gorm:"foreignKey:StudentID"`
	Subject Subject `gorm:"foreignKey:SubjectID"`
	Class   Class   `gorm:"foreignKey:ClassID"`
	Updater *User   `gorm:"foreignKey:UpdatedBy;constraint:OnDelete:SET NULL"`
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&User{}, &Subject{}, &Class{}, &Enrollment{}, &Grade{}}
}
