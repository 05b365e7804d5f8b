package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

var ledgerRowColumns = []string{"id", "student_id", "points", "kind", "category", "description", "added_by", "badge", "academic_year", "created_at"}

func TestLedgerRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.LedgerEntry{StudentID: "stu-1", Points: 5, Kind: models.LedgerKindReward, Category: "kindness", AddedBy: "t-1"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryCreateUnknownStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pgerrcode.ForeignKeyViolation), Constraint: "point_logs_student_id_fkey"})

	entry := &models.LedgerEntry{StudentID: "ghost", Points: 5, Kind: models.LedgerKindReward, Category: "kindness"}
	err := repo.Create(context.Background(), entry)
	assert.ErrorIs(t, err, ErrUnknownStudent)
	assert.Contains(t, err.Error(), "ghost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryBulkCreateCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []*models.LedgerEntry{
		{StudentID: "stu-1", Points: 3, Kind: models.LedgerKindReward, Category: "cleanup"},
		{StudentID: "stu-2", Points: 3, Kind: models.LedgerKindReward, Category: "cleanup"},
	}
	require.NoError(t, repo.BulkCreate(context.Background(), entries))
	assert.Equal(t, entries[0].CreatedAt, entries[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryBulkCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnError(errors.New("check constraint"))
	mock.ExpectRollback()

	entries := []*models.LedgerEntry{
		{StudentID: "stu-1", Points: -2, Kind: models.LedgerKindViolation, Category: "late"},
		{StudentID: "stu-2", Points: -2, Kind: models.LedgerKindViolation, Category: "late"},
		{StudentID: "stu-3", Points: -2, Kind: models.LedgerKindViolation, Category: "late"},
	}
	err := repo.BulkCreate(context.Background(), entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stu-2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryGetByIDScansBadge(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(ledgerRowColumns).
		AddRow("log-1", "stu-1", 20, "QUEST", "quest", "Science fair", "t-1", []byte(`{"tier":"gold"}`), "2025/2026", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM point_logs WHERE id = $1")).WithArgs("log-1").WillReturnRows(rows)

	entry, err := repo.GetByID(context.Background(), "log-1")
	require.NoError(t, err)
	require.NotNil(t, entry.Badge)
	assert.Equal(t, models.BadgeTierGold, entry.Badge.Tier)
	assert.Equal(t, models.LedgerKindQuest, entry.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	rows := sqlmock.NewRows(ledgerRowColumns).
		AddRow("log-2", "stu-1", -5, "VIOLATION", "late", "", "t-1", nil, "2025/2026", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM point_logs WHERE 1=1 AND student_id = $1 AND academic_year = $2 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", "2025/2026").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM point_logs WHERE 1=1 AND student_id = $1 AND academic_year = $2")).
		WithArgs("stu-1", "2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.List(context.Background(), models.LedgerFilter{StudentID: "stu-1", AcademicYear: "2025/2026", PageSize: 20})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Badge)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM point_logs WHERE id = $1")).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLedgerRepositoryLeaderboardRowForArchivedStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	violation := time.Date(2026, 3, 7, 2, 0, 0, 0, time.UTC)
	first := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM (SELECT $1::text AS id) req")).
		WithArgs("ghost", "VIOLATION", "2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "full_name", "class_id", "raw_points", "badge_count", "last_violation_at", "first_entry_at"}).
			AddRow("ghost", "Gita", nil, 35, 1, violation, first))

	row, err := repo.LeaderboardRowFor(context.Background(), "ghost", "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, "Gita", row.FullName)
	assert.Equal(t, 35, row.RawPoints)
	assert.Equal(t, 1, row.BadgeCount)
	require.NotNil(t, row.LastViolationAt)
	assert.True(t, violation.Equal(*row.LastViolationAt))
	assert.Nil(t, row.ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryLeaderboardRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	violation := time.Now().Add(-72 * time.Hour)
	rows := sqlmock.NewRows([]string{"student_id", "full_name", "class_id", "raw_points", "badge_count", "last_violation_at", "first_entry_at"}).
		AddRow("stu-1", "Ayu", "class-1", 40, 2, violation, violation).
		AddRow("stu-2", "Budi", "class-1", 0, 0, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN point_logs p ON p.student_id = s.id AND p.academic_year = $2")).
		WithArgs("VIOLATION", "2025/2026", "class-1").
		WillReturnRows(rows)

	result, err := repo.LeaderboardRows(context.Background(), models.LeaderboardScope{AcademicYear: "2025/2026", ClassID: "class-1"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.NotNil(t, result[0].LastViolationAt)
	assert.Nil(t, result[1].FirstEntryAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
