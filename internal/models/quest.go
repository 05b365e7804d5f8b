package models

import "time"

// Quest is a supervised task that awards points once a reviewer approves a submission.
type Quest struct {
	ID             string     `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	Points         int        `db:"points" json:"points"`
	RequiredPoints int        `db:"required_points" json:"required_points"`
	BadgeTier      *BadgeTier `db:"badge_tier" json:"badge_tier,omitempty"`
	SlotsAvailable *int       `db:"slots_available" json:"slots_available,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AcademicYear   *string    `db:"academic_year" json:"academic_year,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	SupervisorID   string     `db:"supervisor_id" json:"supervisor_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// AcceptsJoins reports whether the quest is active and unexpired at now.
func (q Quest) AcceptsJoins(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	return q.ExpiresAt == nil || q.ExpiresAt.After(now)
}

// QuestFilter narrows quest listings.
type QuestFilter struct {
	Active       *bool
	AcademicYear string
	SupervisorID string
	Page         int
	PageSize     int
}

// ParticipantStatus is a position in the quest progress state machine.
type ParticipantStatus string

const (
	ParticipantInProgress         ParticipantStatus = "IN_PROGRESS"
	ParticipantSubmittedForReview ParticipantStatus = "SUBMITTED_FOR_REVIEW"
	ParticipantCompleted          ParticipantStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantInProgress, ParticipantSubmittedForReview, ParticipantCompleted:
		return true
	default:
		return false
	}
}

// QuestParticipant tracks one student's progress through one quest.
type QuestParticipant struct {
	ID          string            `db:"id" json:"id"`
	QuestID     string            `db:"quest_id" json:"quest_id"`
	StudentID   string            `db:"student_id" json:"student_id"`
	Status      ParticipantStatus `db:"status" json:"status"`
	JoinedAt    time.Time         `db:"joined_at" json:"joined_at"`
	SubmittedAt *time.Time        `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	ReviewedBy  *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes *string           `db:"review_notes" json:"review_notes,omitempty"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// StudentQuest is a participant row joined with its quest headline.
type StudentQuest struct {
	QuestParticipant
	QuestTitle  string `db:"quest_title" json:"quest_title"`
	QuestPoints int    `db:"quest_points" json:"quest_points"`
}
