package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const questColumns = `id, title, description, points, required_points, badge_tier, slots_available, expires_at, academic_year, is_active, supervisor_id, created_at, updated_at`

// QuestRepository manages quest definitions.
type QuestRepository struct {
	db *sqlx.DB
}

// NewQuestRepository constructs the repository.
func NewQuestRepository(db *sqlx.DB) *QuestRepository {
	return &QuestRepository{db: db}
}

// Create inserts a quest.
func (r *QuestRepository) Create(ctx context.Context, quest *models.Quest) error {
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	quest.CreatedAt = now
	quest.UpdatedAt = now
	const query = `INSERT INTO quests (id, title, description, points, required_points, badge_tier, slots_available, expires_at, academic_year, is_active, supervisor_id, created_at, updated_at)
VALUES (:id, :title, :description, :points, :required_points, :badge_tier, :slots_available, :expires_at, :academic_year, :is_active, :supervisor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quest); err != nil {
		return fmt.Errorf("create quest: %w", err)
	}
	return nil
}

// Update overwrites the editable columns of a quest.
func (r *QuestRepository) Update(ctx context.Context, quest *models.Quest) error {
	quest.UpdatedAt = time.Now().UTC()
	const query = `UPDATE quests SET title = :title, description = :description, points = :points, required_points = :required_points,
badge_tier = :badge_tier, slots_available = :slots_available, expires_at = :expires_at, academic_year = :academic_year,
is_active = :is_active, supervisor_id = :supervisor_id, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, quest)
	if err != nil {
		return fmt.Errorf("update quest: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID fetches a quest.
func (r *QuestRepository) GetByID(ctx context.Context, id string) (*models.Quest, error) {
	var quest models.Quest
	query := fmt.Sprintf("SELECT %s FROM quests WHERE id = $1", questColumns)
	if err := r.db.GetContext(ctx, &quest, query, id); err != nil {
		return nil, err
	}
	return &quest, nil
}

// List returns quests matching the filter, newest first.
func (r *QuestRepository) List(ctx context.Context, filter models.QuestFilter) ([]models.Quest, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		where = append(where, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		where = append(where, fmt.Sprintf("supervisor_id = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM quests WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", questColumns, whereClause, limit, offset)
	var quests []models.Quest
	if err := r.db.SelectContext(ctx, &quests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list quests: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM quests WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count quests: %w", err)
	}
	return quests, total, nil
}

// Delete removes a quest; participants cascade at the database level.
func (r *QuestRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM quests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete quest: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quest rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountOpen counts active quests that have not expired at now.
func (r *QuestRepository) CountOpen(ctx context.Context, academicYear string, now time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM quests WHERE is_active = TRUE AND (expires_at IS NULL OR expires_at > $1)"
	args := []interface{}{now}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count open quests: %w", err)
	}
	return count, nil
}
