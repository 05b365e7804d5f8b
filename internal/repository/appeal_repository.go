package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/database"
)

const appealColumns = `id, point_log_id, student_id, reason, status, submitted_at, reviewed_by, reviewed_at, review_notes, academic_year, reversal_log_id`

// AppealRepository persists point appeals.
type AppealRepository struct {
	db *sqlx.DB
}

// NewAppealRepository constructs the repository.
func NewAppealRepository(db *sqlx.DB) *AppealRepository {
	return &AppealRepository{db: db}
}

// Create inserts a PENDING appeal. A partial unique index keeps at most one pending or approved
// appeal per point log; hitting it yields ErrDuplicateAppeal.
func (r *AppealRepository) Create(ctx context.Context, appeal *models.Appeal) error {
	if appeal.ID == "" {
		appeal.ID = uuid.NewString()
	}
	if appeal.SubmittedAt.IsZero() {
		appeal.SubmittedAt = time.Now().UTC()
	}
	appeal.Status = models.AppealPending
	const query = `INSERT INTO point_appeals (id, point_log_id, student_id, reason, status, submitted_at, academic_year)
VALUES (:id, :point_log_id, :student_id, :reason, :status, :submitted_at, :academic_year)`
	if _, err := r.db.NamedExecContext(ctx, query, appeal); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAppeal
		}
		return fmt.Errorf("create appeal: %w", err)
	}
	return nil
}

// GetByID fetches an appeal.
func (r *AppealRepository) GetByID(ctx context.Context, id string) (*models.Appeal, error) {
	var appeal models.Appeal
	query := fmt.Sprintf("SELECT %s FROM point_appeals WHERE id = $1", appealColumns)
	if err := r.db.GetContext(ctx, &appeal, query, id); err != nil {
		return nil, err
	}
	return &appeal, nil
}

// List returns appeals newest first.
func (r *AppealRepository) List(ctx context.Context, filter models.AppealFilter) ([]models.Appeal, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		where = append(where, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM point_appeals WHERE %s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", appealColumns, whereClause, limit, offset)
	var appeals []models.Appeal
	if err := r.db.SelectContext(ctx, &appeals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appeals: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM point_appeals WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count appeals: %w", err)
	}
	return appeals, total, nil
}

// DecideParams describes the review outcome of a pending appeal.
type DecideParams struct {
	ID          string
	Status      models.AppealStatus
	ReviewedBy  string
	ReviewedAt  time.Time
	ReviewNotes *string
}

// Decide moves a PENDING appeal to a terminal status. When reversal is set it is appended to
// the ledger in the same transaction and linked to the appeal. ErrStaleState means the appeal
// was no longer pending.
func (r *AppealRepository) Decide(ctx context.Context, params DecideParams, reversal *models.LedgerEntry) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var reversalID *string
		if reversal != nil {
			reversal.CreatedAt = params.ReviewedAt
			if err := insertLedgerEntry(ctx, tx, reversal); err != nil {
				return err
			}
			reversalID = &reversal.ID
		}
		const query = `UPDATE point_appeals SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
review_notes = COALESCE(:review_notes, review_notes), reversal_log_id = :reversal_log_id
WHERE id = :id AND status = :pending`
		err := expectOneRow(tx.NamedExecContext(ctx, query, map[string]interface{}{
			"id":              params.ID,
			"status":          params.Status,
			"reviewed_by":     params.ReviewedBy,
			"reviewed_at":     params.ReviewedAt,
			"review_notes":    params.ReviewNotes,
			"reversal_log_id": reversalID,
			"pending":         models.AppealPending,
		}))
		if err != nil && !errors.Is(err, ErrStaleState) {
			return fmt.Errorf("decide appeal: %w", err)
		}
		return err
	})
}

// UpdateNotes replaces the review notes without touching the status.
func (r *AppealRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE point_appeals SET review_notes = $1 WHERE id = $2", notes, id)
	if err != nil {
		return fmt.Errorf("update appeal notes: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountPending counts undecided appeals.
func (r *AppealRepository) CountPending(ctx context.Context, academicYear string) (int, error) {
	query := "SELECT COUNT(*) FROM point_appeals WHERE status = $1"
	args := []interface{}{models.AppealPending}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count pending appeals: %w", err)
	}
	return count, nil
}
