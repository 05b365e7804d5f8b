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

type stubRoster struct {
	students []models.Student
	calls    int
}

func (s *stubRoster) ListActiveByClass(_ context.Context, _ string) ([]models.Student, error) {
	s.calls++
	return s.students, nil
}

type stubPresets struct {
	presets map[string]models.BehaviorPreset
	calls   int
}

func (s *stubPresets) FindByID(_ context.Context, id string) (*models.BehaviorPreset, error) {
	s.calls++
	p, ok := s.presets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *stubPresets) List(_ context.Context) ([]models.BehaviorPreset, error) {
	out := make([]models.BehaviorPreset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	return out, nil
}

func strPtr(v string) *string { return &v }

func newTestBulkService(t *testing.T, roster *stubRoster, presets *stubPresets) (*BulkActionService, *fakeLedger) {
	ledgerRepo := &fakeLedger{}
	ledger := newTestLedgerService(t, ledgerRepo, nil)
	return NewBulkActionService(roster, presets, ledger, testAuthorizer(t), nil), ledgerRepo
}

func TestBulkActionRejectsBadShapesBeforeReading(t *testing.T) {
	roster := &stubRoster{students: []models.Student{{ID: "stu-1"}}}
	presets := &stubPresets{}
	svc, _ := newTestBulkService(t, roster, presets)

	shapes := []models.BulkAction{
		{},
		{Points: intPtr(5), Category: strPtr("c"), PresetID: strPtr("p")},
		{Category: strPtr("c")},
		{Points: intPtr(5)},
		{Description: strPtr("only description")},
		{PresetID: strPtr("")},
	}
	for _, shape := range shapes {
		_, err := svc.Apply(context.Background(), teacherActor, "class-1", shape)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Zero(t, roster.calls)
	assert.Zero(t, presets.calls)
}

func TestBulkActionPoints(t *testing.T) {
	roster := &stubRoster{students: []models.Student{{ID: "stu-1"}, {ID: "stu-2"}, {ID: "stu-3"}}}
	svc, ledger := newTestBulkService(t, roster, &stubPresets{})

	result, err := svc.Apply(context.Background(), teacherActor, "class-1", models.BulkAction{
		Points: intPtr(-10), Category: strPtr("discipline"), Description: strPtr("late to assembly"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, ledger.bulkCalls)
	for _, e := range ledger.entries {
		assert.Equal(t, models.LedgerKindViolation, e.Kind)
		assert.Equal(t, -10, e.Points)
		assert.Equal(t, "teacher-1", e.AddedBy)
	}
}

func TestBulkActionPresetSignFollowsKind(t *testing.T) {
	silver := models.BadgeTierSilver
	presets := &stubPresets{presets: map[string]models.BehaviorPreset{
		"litter": {ID: "litter", Name: "Littering", Type: models.PresetViolation, Points: 15, Category: "discipline"},
		"medal":  {ID: "medal", Name: "Science Olympiad", Type: models.PresetMedal, Points: 25, Category: "achievement", BadgeTier: &silver},
	}}
	roster := &stubRoster{students: []models.Student{{ID: "stu-1"}}}
	svc, ledger := newTestBulkService(t, roster, presets)
	ctx := context.Background()

	_, err := svc.Apply(ctx, teacherActor, "class-1", models.BulkAction{PresetID: strPtr("litter")})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, teacherActor, "class-1", models.BulkAction{PresetID: strPtr("medal")})
	require.NoError(t, err)

	require.Len(t, ledger.entries, 2)
	assert.Equal(t, models.LedgerKindViolation, ledger.entries[0].Kind)
	assert.Equal(t, -15, ledger.entries[0].Points)
	assert.Equal(t, "Littering", ledger.entries[0].Description)
	assert.Equal(t, models.LedgerKindReward, ledger.entries[1].Kind)
	assert.Equal(t, 25, ledger.entries[1].Points)
	require.NotNil(t, ledger.entries[1].Badge)
	assert.Equal(t, models.BadgeTierSilver, ledger.entries[1].Badge.Tier)

	_, err = svc.Apply(ctx, teacherActor, "class-1", models.BulkAction{PresetID: strPtr("missing")})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBulkActionEmptyRosterAndAuthorization(t *testing.T) {
	svc, ledger := newTestBulkService(t, &stubRoster{}, &stubPresets{})

	result, err := svc.Apply(context.Background(), teacherActor, "class-1", models.BulkAction{Points: intPtr(5), Category: strPtr("c")})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Zero(t, ledger.bulkCalls)

	_, err = svc.Apply(context.Background(), studentActor("stu-1"), "class-1", models.BulkAction{Points: intPtr(5), Category: strPtr("c")})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
