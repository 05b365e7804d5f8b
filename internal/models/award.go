package models

import "time"

// Award is an externally granted recognition, outside the point ledger.
type Award struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Title        string    `db:"title" json:"title"`
	Tier         BadgeTier `db:"tier" json:"tier"`
	Points       int       `db:"points" json:"points"`
	AcademicYear string    `db:"academic_year" json:"academic_year,omitempty"`
	AwardedAt    time.Time `db:"awarded_at" json:"awarded_at"`
}
