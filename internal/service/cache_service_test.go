package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/iels-id/learner-api/pkg/errors"
)

type failingCacheRepo struct {
	getErr error
	setErr error
	ttls   []time.Duration
}

func (f *failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return f.getErr
}

func (f *failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.ttls = append(f.ttls, ttl)
	return f.setErr
}

func TestCacheServiceDisabledSkipsRepository(t *testing.T) {
	repo := &failingCacheRepo{}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), false)

	var dest map[string]string
	assert.False(t, svc.Get(context.Background(), "k", &dest))
	svc.Set(context.Background(), "k", "v", 0)
	assert.Empty(t, repo.ttls)
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := &memoryCacheRepo{data: map[string][]byte{}}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)

	var dest map[string]string
	assert.False(t, svc.Get(context.Background(), "k", &dest))

	svc.Set(context.Background(), "k", map[string]string{"a": "b"}, 0)
	require.True(t, svc.Get(context.Background(), "k", &dest))
	assert.Equal(t, "b", dest["a"])
}

func TestCacheServiceBackendErrorsAreMisses(t *testing.T) {
	repo := &failingCacheRepo{getErr: errors.New("connection refused"), setErr: errors.New("connection refused")}
	svc := NewCacheService(repo, nil, 0, nil, true)

	var dest string
	assert.False(t, svc.Get(context.Background(), "k", &dest))
	svc.Set(context.Background(), "k", "v", 0)
	require.Len(t, repo.ttls, 1)
	assert.Equal(t, 10*time.Minute, repo.ttls[0])
}

func TestCacheServiceMissIsQuiet(t *testing.T) {
	repo := &failingCacheRepo{getErr: appErrors.ErrCacheMiss}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)

	var dest string
	assert.False(t, svc.Get(context.Background(), "k", &dest))
}
