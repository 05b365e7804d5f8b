package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const teacherReportColumns = `id, teacher_id, student_id, class_id, category, title, body, status, created_at, updated_at`

// TeacherReportRepository persists teacher observations.
type TeacherReportRepository struct {
	db *sqlx.DB
}

// NewTeacherReportRepository constructs the repository.
func NewTeacherReportRepository(db *sqlx.DB) *TeacherReportRepository {
	return &TeacherReportRepository{db: db}
}

// Create inserts an OPEN report.
func (r *TeacherReportRepository) Create(ctx context.Context, report *models.TeacherReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.Status = models.TeacherReportOpen
	report.CreatedAt = now
	report.UpdatedAt = now
	const query = `INSERT INTO teacher_reports (id, teacher_id, student_id, class_id, category, title, body, status, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :class_id, :category, :title, :body, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create teacher report: %w", err)
	}
	return nil
}

// GetByID fetches a report.
func (r *TeacherReportRepository) GetByID(ctx context.Context, id string) (*models.TeacherReport, error) {
	var report models.TeacherReport
	query := fmt.Sprintf("SELECT %s FROM teacher_reports WHERE id = $1", teacherReportColumns)
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns reports newest first.
func (r *TeacherReportRepository) List(ctx context.Context, filter models.TeacherReportFilter) ([]models.TeacherReport, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		where = append(where, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM teacher_reports WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", teacherReportColumns, whereClause, limit, offset)
	var reports []models.TeacherReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teacher reports: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM teacher_reports WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count teacher reports: %w", err)
	}
	return reports, total, nil
}

// UpdateStatus moves a report from one status to the next. ErrStaleState means it was no
// longer in from.
func (r *TeacherReportRepository) UpdateStatus(ctx context.Context, id string, from, to models.TeacherReportStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE teacher_reports SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
		to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update teacher report status: %w", err)
	}
	return expectOneRow(res, nil)
}
