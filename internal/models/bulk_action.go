package models

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ErrBulkActionShape is returned when a bulk action mixes or omits both payload forms.
var ErrBulkActionShape = errors.New("provide either points with category and description, or preset_id")

// BulkAction is applied to every active member of a class. Exactly one of the
// points form {points, category, description} or the preset form {preset_id} is allowed.
type BulkAction struct {
	Points       *int    `json:"points"`
	Category     *string `json:"category"`
	Description  *string `json:"description"`
	PresetID     *string `json:"preset_id"`
	AcademicYear string  `json:"academic_year"`
}

// UsesPreset reports whether the action references a preset.
func (a *BulkAction) UsesPreset() bool {
	return a.PresetID != nil
}

// Validate checks the payload shape.
func (a *BulkAction) Validate() error {
	pointsForm := a.Points != nil || a.Category != nil || a.Description != nil
	if pointsForm == a.UsesPreset() {
		return ErrBulkActionShape
	}
	if a.UsesPreset() {
		return validation.ValidateStruct(
			a,
			validation.Field(&a.PresetID, validation.Required, validation.Length(1, 64)),
			validation.Field(&a.AcademicYear, validation.Length(0, 20)),
		)
	}
	return validation.ValidateStruct(
		a,
		validation.Field(&a.Points, validation.NotNil, validation.Min(-1000), validation.Max(1000)),
		validation.Field(&a.Category, validation.Required, validation.Length(1, 100)),
		validation.Field(&a.Description, validation.Length(0, 1000)),
		validation.Field(&a.AcademicYear, validation.Length(0, 20)),
	)
}

// BulkActionResult reports how many ledger rows a bulk action wrote.
type BulkActionResult struct {
	ClassID string `json:"class_id"`
	Created int    `json:"created"`
}
