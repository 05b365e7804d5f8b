package models

import "time"

// SummaryBadge is a badge shown on a student summary, from the ledger or from an award.
type SummaryBadge struct {
	Source    string    `json:"source"`
	Tier      BadgeTier `json:"tier"`
	Title     string    `json:"title,omitempty"`
	AwardedAt time.Time `json:"awarded_at"`
}

const (
	BadgeSourceLedger = "ledger"
	BadgeSourceAward  = "award"
)

// StudentSummary is the read model for one student's standing.
type StudentSummary struct {
	StudentID        string         `json:"student_id"`
	AcademicYear     string         `json:"academic_year,omitempty"`
	TotalPoints      int            `json:"total_points"`
	Percentage       float64        `json:"percentage"`
	RecentLogs       []LedgerEntry  `json:"recent_logs"`
	PointsByCategory map[string]int `json:"points_by_category"`
	Badges           []SummaryBadge `json:"badges"`
	LogCount         int            `json:"log_count"`
}

// LeaderboardScope selects the population ranked by a leaderboard.
type LeaderboardScope struct {
	AcademicYear string
	ClassID      string
}

// LeaderboardRow is the per-student aggregate read from storage before scoring.
type LeaderboardRow struct {
	StudentID       string     `db:"student_id"`
	FullName        string     `db:"full_name"`
	ClassID         *string    `db:"class_id"`
	RawPoints       int        `db:"raw_points"`
	BadgeCount      int        `db:"badge_count"`
	LastViolationAt *time.Time `db:"last_violation_at"`
	FirstEntryAt    *time.Time `db:"first_entry_at"`
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	StudentID   string  `json:"student_id"`
	FullName    string  `json:"full_name"`
	ClassID     *string `json:"class_id,omitempty"`
	TotalPoints int     `json:"total_points"`
	BadgeCount  int     `json:"badge_count"`
	AwardPoints int     `json:"award_points"`
	Streak      int     `json:"streak"`
}

// LedgerStats are year-wide ledger sums.
type LedgerStats struct {
	RewardPoints    int `db:"reward_points" json:"reward_points"`
	ViolationPoints int `db:"violation_points" json:"violation_points"`
	EntryCount      int `db:"entry_count" json:"entry_count"`
}

// DashboardSummary is the school-wide merit rollup.
type DashboardSummary struct {
	AcademicYear   string             `json:"academic_year,omitempty"`
	Stats          LedgerStats        `json:"stats"`
	ActiveQuests   int                `json:"active_quests"`
	PendingReviews int                `json:"pending_reviews"`
	PendingAppeals int                `json:"pending_appeals"`
	TopStudents    []LeaderboardEntry `json:"top_students"`
	Categories     []CategoryTotal    `json:"categories"`
	GeneratedAt    time.Time          `json:"generated_at"`
}
