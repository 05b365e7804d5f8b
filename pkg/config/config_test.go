package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 100, cfg.Ledger.MaxPoints)
	assert.Equal(t, 10, cfg.Ledger.RecentPageSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.BoardTTL)
	assert.Empty(t, cfg.Authorization.ExtraGrants)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CAPABILITY_GRANTS", "TEACHER:quest.review.any, ADMIN:ledger.hard_delete ,")
	v.Set("LEDGER_MAX_POINTS", -1)
	v.Set("SUMMARY_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)
	require.Equal(t, []string{"TEACHER:quest.review.any", "ADMIN:ledger.hard_delete"}, cfg.Authorization.ExtraGrants)
	assert.Equal(t, 100, cfg.Ledger.MaxPoints)
	assert.Equal(t, 2*time.Minute, cfg.Cache.SummaryTTL)
}

func TestLedgerLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, LedgerConfig{}.Location())
	assert.Equal(t, time.UTC, LedgerConfig{Timezone: "Mars/Olympus"}.Location())
}
