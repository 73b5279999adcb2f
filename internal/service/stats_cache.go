package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmanager/api/internal/models"
)

const adminStatsKey = "admin:stats"

type AdminStats struct {
	Users       models.UserCounts
	Tasks       models.TaskStats
	RecentUsers []models.User
	GeneratedAt time.Time
}

// StatsCache keeps the last admin dashboard snapshot in redis. With a nil
// client every lookup misses and stores are dropped.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func (c *StatsCache) Get(ctx context.Context) (AdminStats, bool, error) {
	if c == nil || c.client == nil {
		return AdminStats{}, false, nil
	}
	raw, err := c.client.Get(ctx, adminStatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return AdminStats{}, false, nil
	}
	if err != nil {
		return AdminStats{}, false, err
	}

	var stats AdminStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return AdminStats{}, false, err
	}
	return stats, true, nil
}

func (c *StatsCache) Set(ctx context.Context, stats AdminStats) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, adminStatsKey, raw, c.ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, adminStatsKey).Err()
}
