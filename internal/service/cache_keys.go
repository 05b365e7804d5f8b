package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const (
	leaderboardKeyPattern = "merit:leaderboard:*"
	dashboardKeyPattern   = "merit:dashboard:*"
)

func yearSegment(academicYear string) string {
	if academicYear == "" {
		return "all"
	}
	return academicYear
}

func summaryCacheKey(studentID, academicYear string) string {
	return fmt.Sprintf("merit:summary:%s:%s", studentID, yearSegment(academicYear))
}

func leaderboardCacheKey(scope models.LeaderboardScope) string {
	class := scope.ClassID
	if class == "" {
		class = "all"
	}
	return fmt.Sprintf("merit:leaderboard:%s:%s", yearSegment(scope.AcademicYear), class)
}

func dashboardCacheKey(academicYear string) string {
	return fmt.Sprintf("merit:dashboard:%s", yearSegment(academicYear))
}

// invalidateLedgerViews drops every cached view derived from the given entries.
func invalidateLedgerViews(ctx context.Context, cache *CacheService, logger *zap.Logger, entries ...*models.LedgerEntry) {
	if cache == nil || len(entries) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(entries)*2)
	keys := make([]string, 0, len(entries)*2)
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		for _, key := range []string{summaryCacheKey(entry.StudentID, entry.AcademicYear), summaryCacheKey(entry.StudentID, "")} {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	if err := cache.Invalidate(ctx, keys, leaderboardKeyPattern, dashboardKeyPattern); err != nil && logger != nil {
		logger.Warn("ledger cache invalidation failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}
