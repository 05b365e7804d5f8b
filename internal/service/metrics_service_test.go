package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/leaderboard", 200, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordLedgerEntries(
		&models.LedgerEntry{Kind: models.LedgerKindReward},
		&models.LedgerEntry{Kind: models.LedgerKindReward},
		&models.LedgerEntry{Kind: models.LedgerKindQuest},
	)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
	assert.Equal(t, uint64(2), snap.LedgerEntriesByKind["REWARD"])
	assert.Equal(t, uint64(1), snap.LedgerEntriesByKind["QUEST"])

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "merit_ledger_entries_appended_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordQuestReview("approved")
	m.RecordCacheInvalidation()
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())
}
