package cache

import (
	"context"
	"time"

	"kasbuku/backend/internal/domain"
)

type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.StatsResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.StatsResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.StatsResponse, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.StatsResponse, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
