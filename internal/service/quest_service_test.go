package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type stubQuestStore struct {
	quests  map[string]models.Quest
	deleted []string
}

func (s *stubQuestStore) Create(_ context.Context, q *models.Quest) error {
	if s.quests == nil {
		s.quests = map[string]models.Quest{}
	}
	q.ID = "quest-1"
	s.quests[q.ID] = *q
	return nil
}

func (s *stubQuestStore) Update(_ context.Context, q *models.Quest) error {
	if _, ok := s.quests[q.ID]; !ok {
		return sql.ErrNoRows
	}
	s.quests[q.ID] = *q
	return nil
}

func (s *stubQuestStore) GetByID(_ context.Context, id string) (*models.Quest, error) {
	q, ok := s.quests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &q, nil
}

func (s *stubQuestStore) List(_ context.Context, filter models.QuestFilter) ([]models.Quest, int, error) {
	out := make([]models.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		out = append(out, q)
	}
	return out, len(out), nil
}

func (s *stubQuestStore) Delete(_ context.Context, id string) error {
	if _, ok := s.quests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.quests, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func TestQuestServiceCreate(t *testing.T) {
	repo := &stubQuestStore{}
	svc := NewQuestService(repo, testAuthorizer(t), nil, nil, nil)
	ctx := context.Background()
	tier := "gold"

	quest, err := svc.Create(ctx, teacherActor, QuestRequest{Title: " Library Helper ", Points: 50, BadgeTier: &tier})
	require.NoError(t, err)
	assert.Equal(t, "Library Helper", quest.Title)
	assert.Equal(t, "teacher-1", quest.SupervisorID)
	assert.True(t, quest.IsActive)
	require.NotNil(t, quest.BadgeTier)
	assert.Equal(t, models.BadgeTierGold, *quest.BadgeTier)

	bad := "diamond"
	_, err = svc.Create(ctx, teacherActor, QuestRequest{Title: "X", BadgeTier: &bad})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, teacherActor, QuestRequest{Title: "X", Points: -1})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, studentActor("stu-1"), QuestRequest{Title: "X"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestQuestServiceUpdateAndDelete(t *testing.T) {
	repo := &stubQuestStore{quests: map[string]models.Quest{
		"q": {ID: "q", Title: "Old", IsActive: true, SupervisorID: "teacher-1"},
	}}
	svc := NewQuestService(repo, testAuthorizer(t), nil, nil, nil)
	ctx := context.Background()

	other := models.Actor{UserID: "teacher-2", Role: models.RoleTeacher}
	_, err := svc.Update(ctx, other, "q", QuestRequest{Title: "New"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(ctx, teacherActor, "q", QuestRequest{Title: "New", IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.False(t, updated.IsActive)

	_, err = svc.Update(ctx, teacherActor, "missing", QuestRequest{Title: "New"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(ctx, adminActor, "q"))
	assert.Equal(t, []string{"q"}, repo.deleted)

	_, pagination, err := svc.List(ctx, QuestListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, pagination.TotalCount)
}
