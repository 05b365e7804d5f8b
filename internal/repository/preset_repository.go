package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// PresetRepository reads behaviour presets used by bulk actions.
type PresetRepository struct {
	db *sqlx.DB
}

// NewPresetRepository constructs the repository.
func NewPresetRepository(db *sqlx.DB) *PresetRepository {
	return &PresetRepository{db: db}
}

// FindByID fetches one preset.
func (r *PresetRepository) FindByID(ctx context.Context, id string) (*models.BehaviorPreset, error) {
	const query = `SELECT id, name, type, points, category, description, badge_tier FROM behavior_presets WHERE id = $1`
	var preset models.BehaviorPreset
	if err := r.db.GetContext(ctx, &preset, query, id); err != nil {
		return nil, err
	}
	return &preset, nil
}

// List returns all presets grouped by type.
func (r *PresetRepository) List(ctx context.Context) ([]models.BehaviorPreset, error) {
	const query = `SELECT id, name, type, points, category, description, badge_tier FROM behavior_presets ORDER BY type, name`
	var presets []models.BehaviorPreset
	if err := r.db.SelectContext(ctx, &presets, query); err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return presets, nil
}
