package models

import "time"

// TeacherReportStatus tracks handling of a report. Transitions only move forward.
type TeacherReportStatus string

const (
	TeacherReportOpen         TeacherReportStatus = "OPEN"
	TeacherReportAcknowledged TeacherReportStatus = "ACKNOWLEDGED"
	TeacherReportResolved     TeacherReportStatus = "RESOLVED"
)

var teacherReportOrder = map[TeacherReportStatus]int{
	TeacherReportOpen:         0,
	TeacherReportAcknowledged: 1,
	TeacherReportResolved:     2,
}

// Valid reports whether s is a known status.
func (s TeacherReportStatus) Valid() bool {
	_, ok := teacherReportOrder[s]
	return ok
}

// CanMoveTo reports whether next is strictly after s.
func (s TeacherReportStatus) CanMoveTo(next TeacherReportStatus) bool {
	from, ok := teacherReportOrder[s]
	if !ok {
		return false
	}
	to, ok := teacherReportOrder[next]
	return ok && to > from
}

// TeacherReport is a free-form observation a teacher files about a student.
type TeacherReport struct {
	ID        string              `db:"id" json:"id"`
	TeacherID string              `db:"teacher_id" json:"teacher_id"`
	StudentID string              `db:"student_id" json:"student_id"`
	ClassID   *string             `db:"class_id" json:"class_id,omitempty"`
	Category  string              `db:"category" json:"category"`
	Title     string              `db:"title" json:"title"`
	Body      string              `db:"body" json:"body"`
	Status    TeacherReportStatus `db:"status" json:"status"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}

// TeacherReportFilter narrows report listings.
type TeacherReportFilter struct {
	TeacherID string
	StudentID string
	Status    TeacherReportStatus
	Page      int
	PageSize  int
}
