package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// AwardRepository reads externally granted awards.
type AwardRepository struct {
	db *sqlx.DB
}

// NewAwardRepository constructs the repository.
func NewAwardRepository(db *sqlx.DB) *AwardRepository {
	return &AwardRepository{db: db}
}

// ListForStudent returns a student's awards, oldest first.
func (r *AwardRepository) ListForStudent(ctx context.Context, studentID, academicYear string) ([]models.Award, error) {
	query := `SELECT id, student_id, title, tier, points, academic_year, awarded_at FROM awards WHERE student_id = $1`
	args := []interface{}{studentID}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY awarded_at"
	var awards []models.Award
	if err := r.db.SelectContext(ctx, &awards, query, args...); err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	return awards, nil
}

// PointsByStudent sums award points per student.
func (r *AwardRepository) PointsByStudent(ctx context.Context, academicYear string) (map[string]int, error) {
	query := "SELECT student_id, COALESCE(SUM(points), 0) AS points FROM awards"
	args := []interface{}{}
	if academicYear != "" {
		query += " WHERE academic_year = $1"
		args = append(args, academicYear)
	}
	query += " GROUP BY student_id"

	var rows []struct {
		StudentID string `db:"student_id"`
		Points    int    `db:"points"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}
	result := make(map[string]int, len(rows))
	for _, row := range rows {
		result[row.StudentID] = row.Points
	}
	return result, nil
}
