package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type stubCacheRepo struct {
	store     map[string][]byte
	deleted   []string
	patterns  []string
	deleteErr error
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, keys ...string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, k := range keys {
		delete(s.store, k)
		s.deleted = append(s.deleted, k)
	}
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range s.store {
		if strings.HasPrefix(k, prefix) {
			delete(s.store, k)
		}
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, "merit:summary:stu-1:all", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "merit:summary:stu-1:all", map[string]int{"total": 7}, 0))
	hit, err = svc.Get(ctx, "merit:summary:stu-1:all", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, out["total"])
}

func TestCacheServiceInvalidateContinuesAfterFailure(t *testing.T) {
	repo := &stubCacheRepo{deleteErr: errors.New("redis down")}
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	err := svc.Invalidate(context.Background(), []string{"merit:summary:stu-1:all"}, "merit:leaderboard:*", "merit:dashboard:*")
	require.Error(t, err)
	assert.Equal(t, []string{"merit:leaderboard:*", "merit:dashboard:*"}, repo.patterns)
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(nil, nil, time.Minute, nil, false)
	assert.False(t, svc.Enabled())
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, svc.Invalidate(context.Background(), []string{"k"}))
}
