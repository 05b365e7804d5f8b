package models

// PresetType is the declared nature of a behaviour preset.
type PresetType string

const (
	PresetReward    PresetType = "reward"
	PresetViolation PresetType = "violation"
	PresetMedal     PresetType = "medal"
)

// LedgerKind maps the preset type onto the ledger kind it produces.
func (t PresetType) LedgerKind() (LedgerKind, bool) {
	switch t {
	case PresetReward, PresetMedal:
		return LedgerKindReward, true
	case PresetViolation:
		return LedgerKindViolation, true
	default:
		return "", false
	}
}

// BehaviorPreset is a named, reusable point action.
type BehaviorPreset struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Type        PresetType `db:"type" json:"type"`
	Points      int        `db:"points" json:"points"`
	Category    string     `db:"category" json:"category"`
	Description string     `db:"description" json:"description"`
	BadgeTier   *BadgeTier `db:"badge_tier" json:"badge_tier,omitempty"`
}
