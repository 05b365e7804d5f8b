package models

import "time"

// AppealStatus is the lifecycle state of an appeal.
type AppealStatus string

const (
	AppealPending  AppealStatus = "PENDING"
	AppealApproved AppealStatus = "APPROVED"
	AppealRejected AppealStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s AppealStatus) Valid() bool {
	switch s {
	case AppealPending, AppealApproved, AppealRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status change is allowed.
func (s AppealStatus) Terminal() bool {
	return s == AppealApproved || s == AppealRejected
}

// Appeal is a student's request to reconsider one ledger entry.
type Appeal struct {
	ID            string       `db:"id" json:"id"`
	PointLogID    string       `db:"point_log_id" json:"point_log_id"`
	StudentID     string       `db:"student_id" json:"student_id"`
	Reason        string       `db:"reason" json:"reason"`
	Status        AppealStatus `db:"status" json:"status"`
	SubmittedAt   time.Time    `db:"submitted_at" json:"submitted_at"`
	ReviewedBy    *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes   *string      `db:"review_notes" json:"review_notes,omitempty"`
	AcademicYear  string       `db:"academic_year" json:"academic_year,omitempty"`
	ReversalLogID *string      `db:"reversal_log_id" json:"reversal_log_id,omitempty"`
}

// AppealFilter narrows appeal listings.
type AppealFilter struct {
	StudentID    string
	Status       AppealStatus
	AcademicYear string
	Page         int
	PageSize     int
}
