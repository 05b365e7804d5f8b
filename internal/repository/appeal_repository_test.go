package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

func TestAppealRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppealRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_appeals")).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Appeal{PointLogID: "log-1", StudentID: "stu-1", Reason: "wrong student"})
	assert.ErrorIs(t, err, ErrDuplicateAppeal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppealRepositoryDecideWithReversal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppealRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE point_appeals SET status = ")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reversal := &models.LedgerEntry{StudentID: "stu-1", Points: 10, Kind: models.LedgerKindAppealReversal, Category: "late"}
	err := repo.Decide(context.Background(), DecideParams{ID: "ap-1", Status: models.AppealApproved, ReviewedBy: "admin-1", ReviewedAt: time.Now()}, reversal)
	require.NoError(t, err)
	assert.NotEmpty(t, reversal.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppealRepositoryDecideTerminalRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppealRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE point_appeals SET status = ")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	reversal := &models.LedgerEntry{StudentID: "stu-1", Points: 10, Kind: models.LedgerKindAppealReversal, Category: "late"}
	err := repo.Decide(context.Background(), DecideParams{ID: "ap-1", Status: models.AppealApproved, ReviewedBy: "admin-1", ReviewedAt: time.Now()}, reversal)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppealRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAppealRepository(db)

	rows := sqlmock.NewRows([]string{"id", "point_log_id", "student_id", "reason", "status", "submitted_at", "reviewed_by", "reviewed_at", "review_notes", "academic_year", "reversal_log_id"}).
		AddRow("ap-1", "log-1", "stu-1", "not me", "PENDING", time.Now(), nil, nil, nil, "2025/2026", nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM point_appeals WHERE 1=1 AND status = $1 ORDER BY submitted_at DESC")).
		WithArgs(models.AppealPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM point_appeals WHERE 1=1 AND status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	appeals, total, err := repo.List(context.Background(), models.AppealFilter{Status: models.AppealPending})
	require.NoError(t, err)
	require.Len(t, appeals, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
