package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// StudentRepository reads the student roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, nis, full_name, class_id, archived, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListActiveByClass returns the non-archived members of a class ordered by name.
func (r *StudentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT id, nis, full_name, class_id, archived, created_at, updated_at
FROM students WHERE class_id = $1 AND archived = FALSE ORDER BY full_name`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return students, nil
}
