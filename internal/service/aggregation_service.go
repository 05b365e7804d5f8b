package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/export"
	"github.com/noah-isme/sma-merit-api/pkg/timeutil"
)

type ledgerAggregates interface {
	SumPoints(ctx context.Context, studentID, academicYear string) (int, int, error)
	CategoryTotals(ctx context.Context, studentID, academicYear string) ([]models.CategoryTotal, error)
	Recent(ctx context.Context, studentID, academicYear string, limit int) ([]models.LedgerEntry, error)
	Badged(ctx context.Context, studentID, academicYear string) ([]models.LedgerEntry, error)
	LeaderboardRows(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardRow, error)
	LeaderboardRowFor(ctx context.Context, studentID, academicYear string) (*models.LeaderboardRow, error)
	Stats(ctx context.Context, academicYear string) (*models.LedgerStats, error)
	YearCategoryTotals(ctx context.Context, academicYear string) ([]models.CategoryTotal, error)
}

type awardReader interface {
	ListForStudent(ctx context.Context, studentID, academicYear string) ([]models.Award, error)
	PointsByStudent(ctx context.Context, academicYear string) (map[string]int, error)
}

type openQuestCounter interface {
	CountOpen(ctx context.Context, academicYear string, now time.Time) (int, error)
}

type participantCounter interface {
	CountByStatus(ctx context.Context, status models.ParticipantStatus, academicYear string) (int, error)
}

type pendingAppealCounter interface {
	CountPending(ctx context.Context, academicYear string) (int, error)
}

// AggregationServiceConfig tunes read models.
type AggregationServiceConfig struct {
	MaxPoints      int
	RecentPageSize int
	TopStudents    int
	Location       *time.Location
	SummaryTTL     time.Duration
	BoardTTL       time.Duration
	DashboardTTL   time.Duration
	ExportTitle    string
}

// AggregationServiceParams groups constructor dependencies.
type AggregationServiceParams struct {
	Ledger       ledgerAggregates
	Awards       awardReader
	Quests       openQuestCounter
	Participants participantCounter
	Appeals      pendingAppealCounter
	Authorizer   *Authorizer
	Cache        *CacheService
	Logger       *zap.Logger
	Config       AggregationServiceConfig
}

// AggregationService derives scores, summaries and leaderboards from the ledger.
type AggregationService struct {
	ledger       ledgerAggregates
	awards       awardReader
	quests       openQuestCounter
	participants participantCounter
	appeals      pendingAppealCounter
	authz        *Authorizer
	cache        *CacheService
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	logger       *zap.Logger
	now          func() time.Time
	cfg          AggregationServiceConfig
}

// NewAggregationService constructs the service with defaults applied.
func NewAggregationService(params AggregationServiceParams) *AggregationService {
	cfg := params.Config
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.RecentPageSize <= 0 {
		cfg.RecentPageSize = 10
	}
	if cfg.TopStudents <= 0 {
		cfg.TopStudents = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ExportTitle == "" {
		cfg.ExportTitle = "Merit Points"
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregationService{
		ledger:       params.Ledger,
		awards:       params.Awards,
		quests:       params.Quests,
		participants: params.Participants,
		appeals:      params.Appeals,
		authz:        params.Authorizer,
		cache:        params.Cache,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		logger:       logger,
		now:          time.Now,
		cfg:          cfg,
	}
}

// StudentSummary returns the student's standing and indicates whether it came from cache.
func (s *AggregationService) StudentSummary(ctx context.Context, actor models.Actor, studentID, academicYear string) (*models.StudentSummary, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if err := s.authz.ensureStudentAccess(actor, studentID, CapLedgerViewAny); err != nil {
		return nil, false, err
	}
	key := summaryCacheKey(studentID, academicYear)
	var cached models.StudentSummary
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	summary, err := s.composeSummary(ctx, studentID, academicYear)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, key, summary, s.cfg.SummaryTTL)
	return summary, false, nil
}

func (s *AggregationService) composeSummary(ctx context.Context, studentID, academicYear string) (*models.StudentSummary, error) {
	var (
		raw, count int
		categories []models.CategoryTotal
		recent     []models.LedgerEntry
		badged     []models.LedgerEntry
		awards     []models.Award
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, count, err = s.ledger.SumPoints(gctx, studentID, academicYear)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.ledger.CategoryTotals(gctx, studentID, academicYear)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.ledger.Recent(gctx, studentID, academicYear, s.cfg.RecentPageSize)
		return err
	})
	g.Go(func() error {
		var err error
		badged, err = s.ledger.Badged(gctx, studentID, academicYear)
		return err
	})
	if s.awards != nil {
		g.Go(func() error {
			var err error
			awards, err = s.awards.ListForStudent(gctx, studentID, academicYear)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to compose student summary")
	}

	total := ClampScore(raw, s.cfg.MaxPoints)
	summary := &models.StudentSummary{
		StudentID:        studentID,
		AcademicYear:     academicYear,
		TotalPoints:      total,
		Percentage:       ScorePercentage(total, s.cfg.MaxPoints),
		RecentLogs:       recent,
		PointsByCategory: make(map[string]int, len(categories)),
		Badges:           make([]models.SummaryBadge, 0, len(badged)+len(awards)),
		LogCount:         count,
	}
	if summary.RecentLogs == nil {
		summary.RecentLogs = []models.LedgerEntry{}
	}
	for _, c := range categories {
		summary.PointsByCategory[c.Category] += c.Points
	}
	for _, e := range badged {
		if e.Badge == nil {
			continue
		}
		summary.Badges = append(summary.Badges, models.SummaryBadge{Source: models.BadgeSourceLedger, Tier: e.Badge.Tier, Title: e.Badge.Title, AwardedAt: e.CreatedAt})
	}
	for _, a := range awards {
		summary.Badges = append(summary.Badges, models.SummaryBadge{Source: models.BadgeSourceAward, Tier: a.Tier, Title: a.Title, AwardedAt: a.AwardedAt})
	}
	sort.SliceStable(summary.Badges, func(i, j int) bool {
		return summary.Badges[i].AwardedAt.Before(summary.Badges[j].AwardedAt)
	})
	return summary, nil
}

// Leaderboard ranks every student in scope.
func (s *AggregationService) Leaderboard(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardEntry, bool, error) {
	key := leaderboardCacheKey(scope)
	var cached []models.LeaderboardEntry
	if hit := s.tryCache(ctx, key, &cached); hit {
		return cached, true, nil
	}

	var (
		rows        []models.LeaderboardRow
		awardPoints map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.ledger.LeaderboardRows(gctx, scope)
		return err
	})
	if s.awards != nil {
		g.Go(func() error {
			var err error
			awardPoints, err = s.awards.PointsByStudent(gctx, scope.AcademicYear)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.Internal(err, "failed to compute leaderboard")
	}

	entries := s.rank(rows, awardPoints)
	s.persistCache(ctx, key, entries, s.cfg.BoardTTL)
	return entries, false, nil
}

func (s *AggregationService) rank(rows []models.LeaderboardRow, awardPoints map[string]int) []models.LeaderboardEntry {
	now := s.now()
	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.leaderboardEntry(row, awardPoints[row.StudentID], now))
	}
	sortLeaderboard(entries)
	return entries
}

func (s *AggregationService) leaderboardEntry(row models.LeaderboardRow, awardPoints int, now time.Time) models.LeaderboardEntry {
	return models.LeaderboardEntry{
		StudentID:   row.StudentID,
		FullName:    row.FullName,
		ClassID:     row.ClassID,
		TotalPoints: ClampScore(row.RawPoints, s.cfg.MaxPoints),
		BadgeCount:  row.BadgeCount,
		AwardPoints: awardPoints,
		Streak:      Streak(row.LastViolationAt, row.FirstEntryAt, now, s.cfg.Location),
	}
}

// Streak counts violation-free days since the last violation, or tenure days since the first
// entry when the student has no violations. Students without entries have no streak.
func Streak(lastViolation, firstEntry *time.Time, now time.Time, loc *time.Location) int {
	switch {
	case lastViolation != nil:
		return timeutil.WholeDaysBetween(*lastViolation, now, loc)
	case firstEntry != nil:
		return timeutil.WholeDaysBetween(*firstEntry, now, loc)
	default:
		return 0
	}
}

func sortLeaderboard(entries []models.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		if a.FullName != b.FullName {
			return a.FullName < b.FullName
		}
		return a.StudentID < b.StudentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// ClassLeaderboard filters the global leaderboard to one class. The requesting student's row is
// always part of the result.
func (s *AggregationService) ClassLeaderboard(ctx context.Context, actor models.Actor, classID, academicYear string) ([]models.LeaderboardEntry, bool, error) {
	if classID == "" {
		classID = actor.ClassID
	}
	if classID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	global, hit, err := s.Leaderboard(ctx, models.LeaderboardScope{AcademicYear: academicYear})
	if err != nil {
		return nil, false, err
	}

	result := make([]models.LeaderboardEntry, 0)
	var own *models.LeaderboardEntry
	for i := range global {
		entry := global[i]
		if entry.StudentID == actor.StudentID && actor.StudentID != "" {
			own = &global[i]
		}
		if entry.ClassID != nil && *entry.ClassID == classID {
			result = append(result, entry)
		}
	}

	if actor.StudentID != "" && !containsStudent(result, actor.StudentID) {
		if own != nil {
			result = append(result, *own)
		} else {
			row, err := s.requesterRow(ctx, actor.StudentID, academicYear)
			if err != nil {
				return nil, false, err
			}
			result = append(result, row)
		}
	}
	sortLeaderboard(result)
	return result, hit, nil
}

// requesterRow scores a student who is missing from the ranked roster, e.g. after archiving.
func (s *AggregationService) requesterRow(ctx context.Context, studentID, academicYear string) (models.LeaderboardEntry, error) {
	var (
		row         *models.LeaderboardRow
		awardPoints map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		row, err = s.ledger.LeaderboardRowFor(gctx, studentID, academicYear)
		return err
	})
	if s.awards != nil {
		g.Go(func() error {
			var err error
			awardPoints, err = s.awards.PointsByStudent(gctx, academicYear)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return models.LeaderboardEntry{}, appErrors.Internal(err, "failed to load requester score")
	}
	return s.leaderboardEntry(*row, awardPoints[studentID], s.now()), nil
}

func containsStudent(entries []models.LeaderboardEntry, studentID string) bool {
	for _, e := range entries {
		if e.StudentID == studentID {
			return true
		}
	}
	return false
}

// Dashboard returns the school-wide rollup for a year.
func (s *AggregationService) Dashboard(ctx context.Context, academicYear string) (*models.DashboardSummary, bool, error) {
	key := dashboardCacheKey(academicYear)
	var cached models.DashboardSummary
	if hit := s.tryCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	now := s.now()
	summary := &models.DashboardSummary{AcademicYear: academicYear, GeneratedAt: now.UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.ledger.Stats(gctx, academicYear)
		if err != nil {
			return err
		}
		summary.Stats = *stats
		return nil
	})
	g.Go(func() error {
		var err error
		summary.Categories, err = s.ledger.YearCategoryTotals(gctx, academicYear)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ActiveQuests, err = s.quests.CountOpen(gctx, academicYear, now)
		return err
	})
	g.Go(func() error {
		var err error
		summary.PendingReviews, err = s.participants.CountByStatus(gctx, models.ParticipantSubmittedForReview, academicYear)
		return err
	})
	g.Go(func() error {
		var err error
		summary.PendingAppeals, err = s.appeals.CountPending(gctx, academicYear)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.Internal(err, "failed to compose dashboard")
	}

	board, _, err := s.Leaderboard(ctx, models.LeaderboardScope{AcademicYear: academicYear})
	if err != nil {
		return nil, false, err
	}
	if len(board) > s.cfg.TopStudents {
		board = board[:s.cfg.TopStudents]
	}
	summary.TopStudents = board
	if summary.Categories == nil {
		summary.Categories = []models.CategoryTotal{}
	}

	s.persistCache(ctx, key, summary, s.cfg.DashboardTTL)
	return summary, false, nil
}

// LeaderboardCSV renders the leaderboard of scope as CSV.
func (s *AggregationService) LeaderboardCSV(ctx context.Context, scope models.LeaderboardScope) ([]byte, error) {
	entries, _, err := s.Leaderboard(ctx, scope)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{Headers: []string{"rank", "student_id", "full_name", "class_id", "total_points", "badge_count", "award_points", "streak"}}
	for _, e := range entries {
		classID := ""
		if e.ClassID != nil {
			classID = *e.ClassID
		}
		data.Append(strconv.Itoa(e.Rank), e.StudentID, e.FullName, classID, strconv.Itoa(e.TotalPoints),
			strconv.Itoa(e.BadgeCount), strconv.Itoa(e.AwardPoints), strconv.Itoa(e.Streak))
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render leaderboard csv")
	}
	return out, nil
}

// SummaryPDF renders a student summary as a PDF document.
func (s *AggregationService) SummaryPDF(ctx context.Context, actor models.Actor, studentID, academicYear string) ([]byte, error) {
	summary, _, err := s.StudentSummary(ctx, actor, studentID, academicYear)
	if err != nil {
		return nil, err
	}
	year := summary.AcademicYear
	if year == "" {
		year = "all years"
	}
	doc := export.Document{
		Title: s.cfg.ExportTitle,
		Fields: []export.Field{
			{Label: "Student", Value: summary.StudentID},
			{Label: "Academic year", Value: year},
			{Label: "Total points", Value: fmt.Sprintf("%d / %d", summary.TotalPoints, s.cfg.MaxPoints)},
			{Label: "Percentage", Value: fmt.Sprintf("%.1f%%", summary.Percentage)},
			{Label: "Entries", Value: strconv.Itoa(summary.LogCount)},
		},
	}

	categories := export.Dataset{Headers: []string{"Category", "Points"}}
	names := make([]string, 0, len(summary.PointsByCategory))
	for name := range summary.PointsByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		categories.Append(name, strconv.Itoa(summary.PointsByCategory[name]))
	}
	doc.Sections = append(doc.Sections, export.Section{Heading: "Points by category", Data: categories})

	recent := export.Dataset{Headers: []string{"Date", "Kind", "Category", "Points"}}
	loc := s.cfg.Location
	for _, e := range summary.RecentLogs {
		recent.Append(e.CreatedAt.In(loc).Format("2006-01-02"), string(e.Kind), e.Category, strconv.Itoa(e.Points))
	}
	doc.Sections = append(doc.Sections, export.Section{Heading: "Recent activity", Data: recent})

	if len(summary.Badges) > 0 {
		badges := export.Dataset{Headers: []string{"Tier", "Title", "Source"}}
		for _, b := range summary.Badges {
			badges.Append(string(b.Tier), b.Title, b.Source)
		}
		doc.Sections = append(doc.Sections, export.Section{Heading: "Badges", Data: badges})
	}

	out, err := s.pdf.Render(doc)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render summary pdf")
	}
	return out, nil
}

func (s *AggregationService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}

func (s *AggregationService) persistCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("aggregation cache write failed", zap.String("key", key), zap.Error(err))
	}
}
