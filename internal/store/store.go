package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-attendance-backend/internal/model"
)

// Registration failures. Neither leaves any partial state behind.
var (
	ErrDuplicateStudent = errors.New("student id already registered")
	ErrTooFewTemplates  = errors.New("not enough face templates")
)

// Store defines the interface for all database operations: the student
// registry with its face templates, and the attendance ledger.
type Store interface {
	// Student registry. None of these touch attendance records.
	RegisterStudent(ctx context.Context, id, name string, templates []Template) (model.Student, error)
	RemoveStudent(ctx context.Context, id string) error
	ListStudents(ctx context.Context) ([]model.Student, error)
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	CountStudents(ctx context.Context) (int64, error)
	TemplatesByStudent(ctx context.Context) (map[string][]model.FaceTemplate, error)

	// Attendance ledger.
	MarkPresent(ctx context.Context, studentID, name string, at time.Time) (bool, error)
	MarkedStudentsOn(ctx context.Context, date string) (map[string]struct{}, error)
	RecordsOn(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	RecentRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error)
	AllRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error)
	CountOn(ctx context.Context, date string) (int64, error)

	DB() *gorm.DB
}

// Template is a grayscale raster supplied at registration, before it is
// bound to a student id.
type Template struct {
	Width  int
	Height int
	Pixels []byte
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db           *gorm.DB
	minTemplates int
}

// NewGormStore creates a new GORM-backed store. minTemplates is the
// smallest template set accepted at registration; values below 1 fall
// back to the default of 6.
func NewGormStore(db *gorm.DB, minTemplates int) Store {
	if minTemplates < 1 {
		minTemplates = 6
	}
	return &gormStore{db: db, minTemplates: minTemplates}
}

// DB exposes the underlying handle for read-only API queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// RegisterStudent creates a student and its reference templates in one
// transaction.
func (s *gormStore) RegisterStudent(ctx context.Context, id, name string, templates []Template) (model.Student, error) {
	if id == "" {
		return model.Student{}, errors.New("student id required")
	}
	if name == "" {
		return model.Student{}, errors.New("student name required")
	}
	if len(templates) < s.minTemplates {
		return model.Student{}, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewTemplates, len(templates), s.minTemplates)
	}

	student := model.Student{
		ID:               id,
		Name:             name,
		RegistrationDate: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Student{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateStudent
		}

		if err := tx.Create(&student).Error; err != nil {
			return err
		}

		rows := make([]model.FaceTemplate, 0, len(templates))
		for _, t := range templates {
			rows = append(rows, model.FaceTemplate{
				StudentID: id,
				Width:     t.Width,
				Height:    t.Height,
				Pixels:    t.Pixels,
			})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return model.Student{}, err
	}
	return student, nil
}

// RemoveStudent deletes a student and its templates. It is idempotent and
// deliberately leaves attendance records in place: once written, a record's
// denormalized name is the durable source of truth.
func (s *gormStore) RemoveStudent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("student_id = ?", id).Delete(&model.FaceTemplate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Student{ID: id}).Error
	})
}

// ListStudents returns all students ordered by registration, newest first.
func (s *gormStore) ListStudents(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	err := s.db.WithContext(ctx).Order("registration_date DESC").Find(&students).Error
	return students, err
}

// GetStudent returns a single student, or nil when absent.
func (s *gormStore) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	var student model.Student
	err := s.db.WithContext(ctx).First(&student, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// CountStudents returns the number of registered students.
func (s *gormStore) CountStudents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Student{}).Count(&count).Error
	return count, err
}

// TemplatesByStudent loads every stored template grouped by student id.
func (s *gormStore) TemplatesByStudent(ctx context.Context) (map[string][]model.FaceTemplate, error) {
	var templates []model.FaceTemplate
	if err := s.db.WithContext(ctx).Find(&templates).Error; err != nil {
		return nil, err
	}
	byStudent := make(map[string][]model.FaceTemplate)
	for _, t := range templates {
		byStudent[t.StudentID] = append(byStudent[t.StudentID], t)
	}
	return byStudent, nil
}

// MarkPresent inserts an attendance record unless one already exists for
// (studentID, date). It returns true iff a new row was inserted. The insert
// is a single conditional statement so the per-day uniqueness guarantee
// holds under concurrent callers, never a check followed by an insert.
//
// The student id is not validated against the registry; a record for an
// unknown id is inserted with the supplied name.
func (s *gormStore) MarkPresent(ctx context.Context, studentID, name string, at time.Time) (bool, error) {
	if studentID == "" {
		return false, errors.New("student id required")
	}

	record := model.AttendanceRecord{
		StudentID: studentID,
		Name:      name,
		Date:      at.Format(model.DateLayout),
		Time:      at.Format(model.TimeLayout),
		Status:    "Present",
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert attendance record for %s: %w", studentID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkedStudentsOn returns the set of student ids with a record on the
// given date. It is the seed for a session's already-marked set.
func (s *gormStore) MarkedStudentsOn(ctx context.Context, date string) (map[string]struct{}, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("date = ?", date).
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, err
	}
	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	return marked, nil
}

// RecordsOn returns the records for one date, ascending by time of day.
func (s *gormStore) RecordsOn(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("date = ?", date).
		Order("time ASC").
		Find(&records).Error
	return records, err
}

// RecentRecords returns the most recent records, newest first.
func (s *gormStore) RecentRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Order("date DESC, time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// AllRecords returns up to limit records, newest first.
func (s *gormStore) AllRecords(ctx context.Context, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Order("date DESC, time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CountOn returns the number of records for a date.
func (s *gormStore) CountOn(ctx context.Context, date string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("date = ?", date).
		Count(&count).Error
	return count, err
}
