package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

func TestQuestRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewQuestRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM quests WHERE 1=1 AND is_active = $1 AND academic_year = $2 ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs(true, "2024/2025").
		WillReturnRows(questRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM quests WHERE 1=1 AND is_active = $1 AND academic_year = $2")).
		WithArgs(true, "2024/2025").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	quests, total, err := repo.List(context.Background(), models.QuestFilter{Active: &active, AcademicYear: "2024/2025", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, quests, 1)
	require.NotNil(t, quests[0].SlotsAvailable)
	assert.Equal(t, 3, *quests[0].SlotsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewQuestRepository(db)

	mock.ExpectExec("UPDATE quests SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Quest{ID: "quest-404", Title: "Gone"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestRepositoryCountOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewQuestRepository(db)

	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("(expires_at IS NULL OR expires_at > $1) AND academic_year = $2")).
		WithArgs(now, "2024/2025").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountOpen(context.Background(), "2024/2025", now)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPresetRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPresetRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "type", "points", "category", "description", "badge_tier"}).
		AddRow("preset-1", "Late to class", "violation", 5, "discipline", "", nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_presets WHERE id = $1")).WithArgs("preset-1").WillReturnRows(rows)

	preset, err := repo.FindByID(context.Background(), "preset-1")
	require.NoError(t, err)
	assert.Equal(t, models.PresetViolation, preset.Type)
	assert.Nil(t, preset.BadgeTier)

	mock.ExpectQuery(regexp.QuoteMeta("FROM behavior_presets WHERE id = $1")).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
