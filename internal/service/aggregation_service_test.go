package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type rosterLedger struct {
	*fakeLedger
	students []models.Student
}

func (f *fakeLedger) Recent(_ context.Context, studentID, year string, limit int) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.matching(studentID, year)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeLedger) Badged(_ context.Context, studentID, year string) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range f.matching(studentID, year) {
		if e.Badge != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) Stats(_ context.Context, year string) (*models.LedgerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.LedgerStats{}
	for _, e := range f.entries {
		if year != "" && e.AcademicYear != year {
			continue
		}
		stats.EntryCount++
		if e.Points > 0 {
			stats.RewardPoints += e.Points
		} else {
			stats.ViolationPoints += e.Points
		}
	}
	return stats, nil
}

func (f *fakeLedger) YearCategoryTotals(_ context.Context, year string) ([]models.CategoryTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	totals := map[string]int{}
	for _, e := range f.entries {
		if year == "" || e.AcademicYear == year {
			totals[e.Category] += e.Points
		}
	}
	out := make([]models.CategoryTotal, 0, len(totals))
	for c, p := range totals {
		out = append(out, models.CategoryTotal{Category: c, Points: p})
	}
	return out, nil
}

func (r *rosterLedger) aggregate(row *models.LeaderboardRow, academicYear string) {
	for _, e := range r.matching(row.StudentID, academicYear) {
		e := e
		row.RawPoints += e.Points
		if e.Badge != nil {
			row.BadgeCount++
		}
		if e.Kind == models.LedgerKindViolation && (row.LastViolationAt == nil || e.CreatedAt.After(*row.LastViolationAt)) {
			row.LastViolationAt = &e.CreatedAt
		}
		if row.FirstEntryAt == nil || e.CreatedAt.Before(*row.FirstEntryAt) {
			row.FirstEntryAt = &e.CreatedAt
		}
	}
}

func (r *rosterLedger) LeaderboardRows(_ context.Context, scope models.LeaderboardScope) ([]models.LeaderboardRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []models.LeaderboardRow
	for _, s := range r.students {
		if s.Archived {
			continue
		}
		if scope.ClassID != "" && (s.ClassID == nil || *s.ClassID != scope.ClassID) {
			continue
		}
		row := models.LeaderboardRow{StudentID: s.ID, FullName: s.FullName, ClassID: s.ClassID}
		r.aggregate(&row, scope.AcademicYear)
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *rosterLedger) LeaderboardRowFor(_ context.Context, studentID, academicYear string) (*models.LeaderboardRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := models.LeaderboardRow{StudentID: studentID}
	for _, s := range r.students {
		if s.ID == studentID {
			row.FullName = s.FullName
			row.ClassID = s.ClassID
		}
	}
	r.aggregate(&row, academicYear)
	return &row, nil
}

type stubAwards struct {
	awards []models.Award
}

func (s *stubAwards) ListForStudent(_ context.Context, studentID, _ string) ([]models.Award, error) {
	var out []models.Award
	for _, a := range s.awards {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAwards) PointsByStudent(_ context.Context, _ string) (map[string]int, error) {
	out := map[string]int{}
	for _, a := range s.awards {
		out[a.StudentID] += a.Points
	}
	return out, nil
}

type stubCounts struct {
	open, reviews, appeals int
}

func (s stubCounts) CountOpen(context.Context, string, time.Time) (int, error) { return s.open, nil }
func (s stubCounts) CountByStatus(context.Context, models.ParticipantStatus, string) (int, error) {
	return s.reviews, nil
}
func (s stubCounts) CountPending(context.Context, string) (int, error) { return s.appeals, nil }

var wib = time.FixedZone("WIB", 7*60*60)

func newTestAggregation(t *testing.T, ledger *rosterLedger, awards *stubAwards, cache *CacheService) *AggregationService {
	counts := stubCounts{open: 2, reviews: 1, appeals: 3}
	params := AggregationServiceParams{
		Ledger:       ledger,
		Quests:       counts,
		Participants: counts,
		Appeals:      counts,
		Authorizer:   testAuthorizer(t),
		Cache:        cache,
		Config:       AggregationServiceConfig{Location: wib, TopStudents: 2},
	}
	if awards != nil {
		params.Awards = awards
	}
	svc := NewAggregationService(params)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 8, 30, 0, 0, wib) }
	return svc
}

func classPtr(id string) *string { return &id }

func seed(l *fakeLedger, studentID string, kind models.LedgerKind, points int, at time.Time) {
	l.entries = append(l.entries, models.LedgerEntry{
		ID: studentID + at.String(), StudentID: studentID, Kind: kind, Points: points, Category: strings.ToLower(string(kind)), CreatedAt: at,
	})
}

func TestStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, wib)
	violation := time.Date(2026, 3, 7, 21, 0, 0, 0, wib)
	first := time.Date(2026, 2, 28, 10, 0, 0, 0, wib)

	assert.Equal(t, 3, Streak(&violation, &first, now, wib))
	assert.Equal(t, 10, Streak(nil, &first, now, wib))
	assert.Equal(t, 0, Streak(nil, nil, now, wib))
}

func TestLeaderboardRanking(t *testing.T) {
	base := &fakeLedger{}
	day := func(d int) time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, wib) }
	seed(base, "ana", models.LedgerKindReward, 60, day(1))
	seed(base, "ana", models.LedgerKindViolation, -10, day(7))
	seed(base, "budi", models.LedgerKindReward, 50, day(2))
	seed(base, "citra", models.LedgerKindReward, 50, day(2))
	seed(base, "citra", models.LedgerKindViolation, -5, day(9))
	seed(base, "citra", models.LedgerKindReward, 5, day(9))
	seed(base, "dewi", models.LedgerKindReward, 400, day(3))

	ledger := &rosterLedger{fakeLedger: base, students: []models.Student{
		{ID: "ana", FullName: "Ana", ClassID: classPtr("x1")},
		{ID: "budi", FullName: "Budi", ClassID: classPtr("x1")},
		{ID: "citra", FullName: "Citra", ClassID: classPtr("x2")},
		{ID: "dewi", FullName: "Dewi", ClassID: classPtr("x2")},
		{ID: "eko", FullName: "Eko", ClassID: classPtr("x1")},
		{ID: "fajar", FullName: "Fajar", ClassID: classPtr("x1"), Archived: true},
	}}
	awards := &stubAwards{awards: []models.Award{{StudentID: "budi", Points: 7, Tier: models.BadgeTierBronze}}}
	svc := newTestAggregation(t, ledger, awards, nil)

	board, hit, err := svc.Leaderboard(context.Background(), models.LeaderboardScope{})
	require.NoError(t, err)
	assert.False(t, hit)

	ids := make([]string, len(board))
	for i, e := range board {
		ids[i] = e.StudentID
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"dewi", "budi", "ana", "citra", "eko"}, ids)
	assert.Equal(t, 100, board[0].TotalPoints)
	assert.Equal(t, 8, board[1].Streak)
	assert.Equal(t, 7, board[1].AwardPoints)
	assert.Equal(t, 50, board[2].TotalPoints)
	assert.Equal(t, 3, board[2].Streak)
	assert.Equal(t, 1, board[3].Streak)
	assert.Equal(t, 0, board[4].Streak)
	assert.Equal(t, 0, board[4].TotalPoints)
}

func TestClassLeaderboardKeepsRequester(t *testing.T) {
	base := &fakeLedger{}
	seed(base, "ana", models.LedgerKindReward, 20, time.Date(2026, 3, 1, 9, 0, 0, 0, wib))
	seed(base, "citra", models.LedgerKindReward, 90, time.Date(2026, 3, 1, 9, 0, 0, 0, wib))
	seed(base, "ghost", models.LedgerKindReward, 40, time.Date(2026, 3, 1, 9, 0, 0, 0, wib))
	base.entries[len(base.entries)-1].Badge = &models.Badge{Tier: models.BadgeTierSilver, Title: "Helper"}
	seed(base, "ghost", models.LedgerKindViolation, -5, time.Date(2026, 3, 7, 9, 0, 0, 0, wib))
	ledger := &rosterLedger{fakeLedger: base, students: []models.Student{
		{ID: "ana", FullName: "Ana", ClassID: classPtr("x1")},
		{ID: "citra", FullName: "Citra", ClassID: classPtr("x2")},
	}}
	awards := &stubAwards{awards: []models.Award{{ID: "aw-1", StudentID: "ghost", Title: "Olympiad", Points: 7}}}
	svc := newTestAggregation(t, ledger, awards, nil)
	ctx := context.Background()

	moved := models.Actor{UserID: "u-c", Role: models.RoleStudent, StudentID: "citra", ClassID: "x1"}
	board, _, err := svc.ClassLeaderboard(ctx, moved, "", "")
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "citra", board[0].StudentID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "ana", board[1].StudentID)

	ghost := models.Actor{UserID: "u-g", Role: models.RoleStudent, StudentID: "ghost", ClassID: "x1"}
	board, _, err = svc.ClassLeaderboard(ctx, ghost, "x1", "")
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "ghost", board[0].StudentID)
	assert.Equal(t, 35, board[0].TotalPoints)
	assert.Equal(t, 3, board[0].Streak)
	assert.Equal(t, 1, board[0].BadgeCount)
	assert.Equal(t, 7, board[0].AwardPoints)
	assert.Equal(t, 1, board[0].Rank)

	_, _, err = svc.ClassLeaderboard(ctx, teacherActor, "", "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestQuestApprovalFlowsIntoSummary(t *testing.T) {
	base := &fakeLedger{}
	ledger := &rosterLedger{fakeLedger: base}
	cacheRepo := &stubCacheRepo{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	gold := models.BadgeTierGold
	board := newFakeQuestBoard(base, models.Quest{ID: "Q1", Title: "Q1", Points: 50, BadgeTier: &gold, IsActive: true, SupervisorID: "teacher-1"})

	participation := newTestParticipation(t, board)
	participation.cache = cache
	agg := newTestAggregation(t, ledger, &stubAwards{}, cache)
	ctx := context.Background()
	a := studentActor("A")

	seed(base, "A", models.LedgerKindReward, 30, time.Date(2026, 3, 1, 9, 0, 0, 0, wib))
	before, hit, err := agg.StudentSummary(ctx, a, "A", "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 30, before.TotalPoints)

	_, hit, err = agg.StudentSummary(ctx, a, "A", "")
	require.NoError(t, err)
	assert.True(t, hit)

	_, err = participation.Join(ctx, a, "Q1", "A")
	require.NoError(t, err)
	_, err = participation.Submit(ctx, a, "Q1", "A")
	require.NoError(t, err)
	row, err := participation.Review(ctx, teacherActor, "Q1", "A", ReviewRequest{Approve: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCompleted, row.Status)

	after, hit, err := agg.StudentSummary(ctx, a, "A", "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 80, after.TotalPoints)
	assert.Equal(t, 80.0, after.Percentage)
	assert.Equal(t, 2, after.LogCount)
	assert.Equal(t, 50, after.PointsByCategory[QuestCategory])
	require.Len(t, after.Badges, 1)
	assert.Equal(t, models.BadgeTierGold, after.Badges[0].Tier)
	assert.Equal(t, models.BadgeSourceLedger, after.Badges[0].Source)
	require.NotEmpty(t, after.RecentLogs)
	assert.Equal(t, models.LedgerKindQuest, after.RecentLogs[0].Kind)

	seed(base, "A", models.LedgerKindReward, 40, time.Date(2026, 3, 2, 9, 0, 0, 0, wib))
	invalidateLedgerViews(ctx, cache, nil, &models.LedgerEntry{StudentID: "A"})
	capped, _, err := agg.StudentSummary(ctx, a, "A", "")
	require.NoError(t, err)
	assert.Equal(t, 100, capped.TotalPoints)

	_, _, err = agg.StudentSummary(ctx, studentActor("B"), "A", "")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSummaryMergesAwards(t *testing.T) {
	base := &fakeLedger{}
	seed(base, "A", models.LedgerKindReward, 10, time.Date(2026, 3, 5, 9, 0, 0, 0, wib))
	base.entries[0].Badge = &models.Badge{Tier: models.BadgeTierSilver, Title: "Helper"}
	awards := &stubAwards{awards: []models.Award{{StudentID: "A", Title: "Olympiad", Tier: models.BadgeTierGold, AwardedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, wib)}}}
	svc := newTestAggregation(t, &rosterLedger{fakeLedger: base}, awards, nil)

	summary, _, err := svc.StudentSummary(context.Background(), teacherActor, "A", "")
	require.NoError(t, err)
	require.Len(t, summary.Badges, 2)
	assert.Equal(t, models.BadgeSourceAward, summary.Badges[0].Source)
	assert.Equal(t, models.BadgeSourceLedger, summary.Badges[1].Source)
}

func TestDashboardAndExports(t *testing.T) {
	base := &fakeLedger{}
	seed(base, "ana", models.LedgerKindReward, 30, time.Date(2026, 3, 1, 9, 0, 0, 0, wib))
	seed(base, "budi", models.LedgerKindViolation, -10, time.Date(2026, 3, 2, 9, 0, 0, 0, wib))
	seed(base, "citra", models.LedgerKindReward, 10, time.Date(2026, 3, 3, 9, 0, 0, 0, wib))
	ledger := &rosterLedger{fakeLedger: base, students: []models.Student{
		{ID: "ana", FullName: "Ana"}, {ID: "budi", FullName: "Budi"}, {ID: "citra", FullName: "Citra"},
	}}
	svc := newTestAggregation(t, ledger, nil, nil)
	ctx := context.Background()

	dash, _, err := svc.Dashboard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 40, dash.Stats.RewardPoints)
	assert.Equal(t, -10, dash.Stats.ViolationPoints)
	assert.Equal(t, 3, dash.Stats.EntryCount)
	assert.Equal(t, 2, dash.ActiveQuests)
	assert.Equal(t, 1, dash.PendingReviews)
	assert.Equal(t, 3, dash.PendingAppeals)
	require.Len(t, dash.TopStudents, 2)
	assert.Equal(t, "ana", dash.TopStudents[0].StudentID)

	csv, err := svc.LeaderboardCSV(ctx, models.LeaderboardScope{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "rank,student_id,full_name,class_id,total_points,badge_count,award_points,streak", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,ana,Ana,,30"))

	pdf, err := svc.SummaryPDF(ctx, teacherActor, "ana", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
}
