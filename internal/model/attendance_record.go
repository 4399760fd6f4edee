package model

// DateLayout and TimeLayout are the storage formats for attendance
// timestamps. Dates are calendar days in local time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// AttendanceRecord is one durable attendance row. The composite unique
// index on (student_id, date) is the per-day uniqueness invariant; it is
// enforced by the database so the guarantee holds even when the table is
// shared with other writers.
//
// StudentID is a soft reference: deleting a student leaves its records in
// place, with Name as the durable display value.
type AttendanceRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID string `gorm:"size:64;not null;uniqueIndex:idx_attendance_student_date" json:"student_id"`
	Name      string `gorm:"size:256;not null" json:"name"`
	Date      string `gorm:"size:10;not null;uniqueIndex:idx_attendance_student_date" json:"date"`
	Time      string `gorm:"size:8;not null" json:"time"`
	Status    string `gorm:"size:32;not null;default:Present" json:"status"`
}
