package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

var questRowColumns = []string{"id", "title", "description", "points", "required_points", "badge_tier", "slots_available", "expires_at", "academic_year", "is_active", "supervisor_id", "created_at", "updated_at"}

func questRow(slots interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(questRowColumns).
		AddRow("quest-1", "Q1", "", 20, 0, "gold", slots, nil, nil, true, "teacher-1", now, now)
}

func expectJoined(mock sqlmock.Sqlmock, questID, studentID string, joined bool) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM quest_participants WHERE quest_id = $1 AND student_id = $2)")).
		WithArgs(questID, studentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(joined))
}

func TestParticipantRepositoryJoin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM quests WHERE id = $1 FOR UPDATE")).WithArgs("quest-1").WillReturnRows(questRow(2))
	expectJoined(mock, "quest-1", "stu-1", false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM quest_participants WHERE quest_id = $1")).
		WithArgs("quest-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO quest_participants")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var guarded *models.Quest
	p, err := repo.Join(context.Background(), "quest-1", "stu-1", func(q *models.Quest) error {
		guarded = q
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, guarded)
	assert.Equal(t, models.ParticipantInProgress, p.Status)
	assert.Equal(t, "stu-1", p.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryJoinFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("quest-1").WillReturnRows(questRow(1))
	expectJoined(mock, "quest-1", "stu-2", false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM quest_participants")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "quest-1", "stu-2", nil)
	assert.ErrorIs(t, err, ErrQuestFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryJoinAgainOnLastSlotIsDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("quest-1").WillReturnRows(questRow(1))
	expectJoined(mock, "quest-1", "stu-1", true)
	mock.ExpectRollback()

	guardCalled := false
	_, err := repo.Join(context.Background(), "quest-1", "stu-1", func(*models.Quest) error {
		guardCalled = true
		return errors.New("closed")
	})
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
	assert.False(t, guardCalled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryJoinDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("quest-1").WillReturnRows(questRow(nil))
	expectJoined(mock, "quest-1", "stu-1", false)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (quest_id, student_id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "quest-1", "stu-1", nil)
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryJoinGuardRejects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("quest-1").WillReturnRows(questRow(nil))
	expectJoined(mock, "quest-1", "stu-1", false)
	mock.ExpectRollback()

	closed := errors.New("closed")
	_, err := repo.Join(context.Background(), "quest-1", "stu-1", func(*models.Quest) error { return closed })
	assert.ErrorIs(t, err, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryJoinMissingQuest(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Join(context.Background(), "ghost", "stu-1", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestParticipantRepositoryTransitionStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE quest_participants SET status = ")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), TransitionParams{
		QuestID: "quest-1", StudentID: "stu-1",
		From: models.ParticipantInProgress, To: models.ParticipantSubmittedForReview, At: time.Now(),
	})
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepositoryCompleteAwardsOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParticipantRepository(db)
	reviewer := "teacher-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("completed_at = ")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO point_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	award := &models.LedgerEntry{StudentID: "stu-1", Points: 20, Kind: models.LedgerKindQuest, Category: "quest"}
	at := time.Now().UTC()
	err := repo.Complete(context.Background(), TransitionParams{QuestID: "quest-1", StudentID: "stu-1", At: at, ReviewedBy: &reviewer}, award)
	require.NoError(t, err)
	assert.Equal(t, at, award.CreatedAt)
	assert.NotEmpty(t, award.ID)

	// a second reviewer loses the compare-and-swap and writes nothing
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("completed_at = ")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	second := &models.LedgerEntry{StudentID: "stu-1", Points: 20, Kind: models.LedgerKindQuest, Category: "quest"}
	err = repo.Complete(context.Background(), TransitionParams{QuestID: "quest-1", StudentID: "stu-1", At: at, ReviewedBy: &reviewer}, second)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.Empty(t, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
