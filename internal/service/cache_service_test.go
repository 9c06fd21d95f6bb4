package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/labworks/labsched-api/pkg/errors"
)

type cacheRepoStub struct {
	entries  map[string][]byte
	patterns []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: make(map[string][]byte)}
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = raw
	return nil
}

func (s *cacheRepoStub) Delete(ctx context.Context, key string) error {
	delete(s.entries, key)
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var out []string
	require.False(t, svc.Get(context.Background(), "k", &out))

	svc.Set(context.Background(), "k", []string{"a", "b"})
	require.True(t, svc.Get(context.Background(), "k", &out))
	require.Equal(t, []string{"a", "b"}, out)

	svc.Invalidate(context.Background(), "k")
	require.False(t, svc.Get(context.Background(), "k", &out))
}

func TestCacheServiceInvalidatePattern(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	svc.Set(context.Background(), "sessions:day:2025-09-15", []string{"a"})
	svc.InvalidatePattern(context.Background(), "sessions:day:*")

	require.Equal(t, []string{"sessions:day:*"}, repo.patterns)
	var out []string
	require.False(t, svc.Get(context.Background(), "sessions:day:2025-09-15", &out))
}

func TestCacheServiceDisabledIsNoOp(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	svc.Set(context.Background(), "k", "v")
	svc.InvalidatePattern(context.Background(), "sessions:day:*")
	require.Empty(t, repo.entries)
	require.Empty(t, repo.patterns)

	var nilSvc *CacheService
	require.False(t, nilSvc.Enabled())
	nilSvc.InvalidatePattern(context.Background(), "sessions:day:*")
}

func TestSessionServiceFlushDayViews(t *testing.T) {
	cacheRepo := newCacheRepoStub()
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewSessionService(newSessionRepoStub(), cacheSvc, nil, nil, nil)

	svc.FlushDayViews(context.Background())
	require.Equal(t, []string{"sessions:day:*"}, cacheRepo.patterns)
}
