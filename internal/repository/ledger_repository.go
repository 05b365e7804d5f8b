package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/database"
)

const ledgerColumns = `id, student_id, points, kind, category, description, added_by, badge, academic_year, created_at`

const insertLedgerQuery = `INSERT INTO point_logs (id, student_id, points, kind, category, description, added_by, badge, academic_year, created_at)
VALUES (:id, :student_id, :points, :kind, :category, :description, :added_by, :badge, :academic_year, :created_at)`

// LedgerRepository persists the append-only point ledger.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs a new repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func insertLedgerEntry(ctx context.Context, exec namedExecer, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := exec.NamedExecContext(ctx, insertLedgerQuery, entry); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("insert point log for %s: %w", entry.StudentID, ErrUnknownStudent)
		}
		return fmt.Errorf("insert point log: %w", err)
	}
	return nil
}

// Create appends a single entry.
func (r *LedgerRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, r.db, entry)
}

// BulkCreate appends every entry in one transaction; any failure leaves the ledger untouched.
func (r *LedgerRepository) BulkCreate(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, entry := range entries {
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
			}
			if err := insertLedgerEntry(ctx, tx, entry); err != nil {
				return fmt.Errorf("bulk append for student %s: %w", entry.StudentID, err)
			}
		}
		return nil
	})
}

// GetByID fetches one entry.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM point_logs WHERE id = $1", ledgerColumns)
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an entry permanently.
func (r *LedgerRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM point_logs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete point log: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete point log rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns entries newest first.
func (r *LedgerRepository) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		where = append(where, fmt.Sprintf("academic_year = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		where = append(where, fmt.Sprintf("kind = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM point_logs WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		ledgerColumns, whereClause, limit, offset)
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list point logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM point_logs WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count point logs: %w", err)
	}
	return entries, total, nil
}

func studentScope(studentID, academicYear string) (string, []interface{}) {
	where := "student_id = $1"
	args := []interface{}{studentID}
	if academicYear != "" {
		where += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	return where, args
}

// SumPoints returns the raw signed sum and row count for a student.
func (r *LedgerRepository) SumPoints(ctx context.Context, studentID, academicYear string) (int, int, error) {
	where, args := studentScope(studentID, academicYear)
	query := fmt.Sprintf("SELECT COALESCE(SUM(points), 0), COUNT(*) FROM point_logs WHERE %s", where)
	var sum, count int
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&sum, &count); err != nil {
		return 0, 0, fmt.Errorf("sum point logs: %w", err)
	}
	return sum, count, nil
}

// CategoryTotals returns signed sums per category for a student.
func (r *LedgerRepository) CategoryTotals(ctx context.Context, studentID, academicYear string) ([]models.CategoryTotal, error) {
	where, args := studentScope(studentID, academicYear)
	query := fmt.Sprintf(`SELECT category, COALESCE(SUM(points), 0) AS points FROM point_logs WHERE %s
GROUP BY category ORDER BY category`, where)
	var totals []models.CategoryTotal
	if err := r.db.SelectContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	return totals, nil
}

// Recent returns the latest entries of a student.
func (r *LedgerRepository) Recent(ctx context.Context, studentID, academicYear string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := studentScope(studentID, academicYear)
	query := fmt.Sprintf("SELECT %s FROM point_logs WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d", ledgerColumns, where, limit)
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("recent point logs: %w", err)
	}
	return entries, nil
}

// Badged returns every entry of a student that carries a badge, oldest first.
func (r *LedgerRepository) Badged(ctx context.Context, studentID, academicYear string) ([]models.LedgerEntry, error) {
	where, args := studentScope(studentID, academicYear)
	query := fmt.Sprintf("SELECT %s FROM point_logs WHERE %s AND badge IS NOT NULL ORDER BY created_at", ledgerColumns, where)
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("badged point logs: %w", err)
	}
	return entries, nil
}

// LeaderboardRows aggregates the ledger per non-archived student in scope.
func (r *LedgerRepository) LeaderboardRows(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardRow, error) {
	args := []interface{}{string(models.LedgerKindViolation)}
	join := "p.student_id = s.id"
	if scope.AcademicYear != "" {
		args = append(args, scope.AcademicYear)
		join += fmt.Sprintf(" AND p.academic_year = $%d", len(args))
	}
	where := "s.archived = FALSE"
	if scope.ClassID != "" {
		args = append(args, scope.ClassID)
		where += fmt.Sprintf(" AND s.class_id = $%d", len(args))
	}
	query := fmt.Sprintf(`SELECT s.id AS student_id, s.full_name, s.class_id,
       COALESCE(SUM(p.points), 0) AS raw_points,
       COUNT(p.badge) AS badge_count,
       MAX(p.created_at) FILTER (WHERE p.kind = $1) AS last_violation_at,
       MIN(p.created_at) AS first_entry_at
FROM students s
LEFT JOIN point_logs p ON %s
WHERE %s
GROUP BY s.id, s.full_name, s.class_id`, join, where)

	var rows []models.LeaderboardRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("leaderboard rows: %w", err)
	}
	return rows, nil
}

// LeaderboardRowFor aggregates one student's ledger regardless of roster state. Roster columns
// are empty when the student has no roster row.
func (r *LedgerRepository) LeaderboardRowFor(ctx context.Context, studentID, academicYear string) (*models.LeaderboardRow, error) {
	args := []interface{}{studentID, string(models.LedgerKindViolation)}
	join := "p.student_id = req.id"
	if academicYear != "" {
		args = append(args, academicYear)
		join += " AND p.academic_year = $3"
	}
	query := fmt.Sprintf(`SELECT req.id AS student_id, COALESCE(MAX(s.full_name), '') AS full_name, MAX(s.class_id) AS class_id,
       COALESCE(SUM(p.points), 0) AS raw_points,
       COUNT(p.badge) AS badge_count,
       MAX(p.created_at) FILTER (WHERE p.kind = $2) AS last_violation_at,
       MIN(p.created_at) AS first_entry_at
FROM (SELECT $1::text AS id) req
LEFT JOIN students s ON s.id = req.id
LEFT JOIN point_logs p ON %s
GROUP BY req.id`, join)

	var row models.LeaderboardRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("leaderboard row for %s: %w", studentID, err)
	}
	return &row, nil
}

// Stats sums rewards and violations across the whole ledger for a year.
func (r *LedgerRepository) Stats(ctx context.Context, academicYear string) (*models.LedgerStats, error) {
	query := `SELECT COALESCE(SUM(points) FILTER (WHERE points > 0), 0) AS reward_points,
       COALESCE(SUM(points) FILTER (WHERE points < 0), 0) AS violation_points,
       COUNT(*) AS entry_count
FROM point_logs`
	args := []interface{}{}
	if academicYear != "" {
		query += " WHERE academic_year = $1"
		args = append(args, academicYear)
	}
	var stats models.LedgerStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	return &stats, nil
}

// YearCategoryTotals returns signed sums per category across all students.
func (r *LedgerRepository) YearCategoryTotals(ctx context.Context, academicYear string) ([]models.CategoryTotal, error) {
	query := "SELECT category, COALESCE(SUM(points), 0) AS points FROM point_logs"
	args := []interface{}{}
	if academicYear != "" {
		query += " WHERE academic_year = $1"
		args = append(args, academicYear)
	}
	query += " GROUP BY category ORDER BY points DESC, category"
	var totals []models.CategoryTotal
	if err := r.db.SelectContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("year category totals: %w", err)
	}
	return totals, nil
}
