package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerKindReward         LedgerKind = "REWARD"
	LedgerKindViolation      LedgerKind = "VIOLATION"
	LedgerKindQuest          LedgerKind = "QUEST"
	LedgerKindAppealReversal LedgerKind = "APPEAL_REVERSAL"
	LedgerKindOverride       LedgerKind = "OVERRIDE"
)

// Valid reports whether k is a known kind.
func (k LedgerKind) Valid() bool {
	switch k {
	case LedgerKindReward, LedgerKindViolation, LedgerKindQuest, LedgerKindAppealReversal, LedgerKindOverride:
		return true
	default:
		return false
	}
}

// AcceptsPoints reports whether the signed amount is consistent with the kind.
// Rewards and quest awards are never negative, violations are never positive,
// reversals and overrides carry whatever sign they need.
func (k LedgerKind) AcceptsPoints(points int) bool {
	switch k {
	case LedgerKindReward, LedgerKindQuest:
		return points >= 0
	case LedgerKindViolation:
		return points <= 0
	case LedgerKindAppealReversal, LedgerKindOverride:
		return true
	default:
		return false
	}
}

// BadgeTier ranks a badge.
type BadgeTier string

const (
	BadgeTierBronze BadgeTier = "bronze"
	BadgeTierSilver BadgeTier = "silver"
	BadgeTierGold   BadgeTier = "gold"
)

// Valid reports whether t is a known tier.
func (t BadgeTier) Valid() bool {
	switch t {
	case BadgeTierBronze, BadgeTierSilver, BadgeTierGold:
		return true
	default:
		return false
	}
}

// Badge is the optional sub-record attached to a ledger entry, stored as JSONB.
type Badge struct {
	Tier  BadgeTier `json:"tier"`
	Title string    `json:"title,omitempty"`
}

// Value implements driver.Valuer.
func (b Badge) Value() (driver.Value, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (b *Badge) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = Badge{}
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("badge: unsupported scan type %T", src)
	}
}

// LedgerEntry is one immutable row of the point ledger.
type LedgerEntry struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Points       int        `db:"points" json:"points"`
	Kind         LedgerKind `db:"kind" json:"kind"`
	Category     string     `db:"category" json:"category"`
	Description  string     `db:"description" json:"description"`
	AddedBy      string     `db:"added_by" json:"added_by"`
	Badge        *Badge     `db:"badge" json:"badge,omitempty"`
	AcademicYear string     `db:"academic_year" json:"academic_year,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"timestamp"`
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	StudentID    string
	Kinds        []LedgerKind
	Category     string
	AcademicYear string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

// CategoryTotal is the signed point sum for one category.
type CategoryTotal struct {
	Category string `db:"category" json:"category"`
	Points   int    `db:"points" json:"points"`
}
