// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"bms-dashboard/internal/model"
)

const (
	// LatestTelemetryPrefix keys the per-device latest metric map.
	LatestTelemetryPrefix = "telemetry:latest:"
	// DashboardStatsKey holds the cached dashboard aggregates.
	DashboardStatsKey = "stats:dashboard"
	// TelemetryTTL bounds staleness of the latest-reading cache.
	TelemetryTTL = 2 * time.Minute
	// StatsTTL keeps dashboard aggregates hot between refetches.
	StatsTTL = 5 * time.Second
)

// Cache is a thin read-through layer over Redis. A nil Cache (or one built
// without a client) is valid: every read misses and every write is a no-op,
// so the system degrades to store-only operation.
type Cache struct {
	client *redis.Client
}

// New connects to Redis. On failure it logs nothing and returns an error;
// callers decide whether a missing cache is fatal.
func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// SetLatestTelemetry stores the freshest metric map for a device.
func (c *Cache) SetLatestTelemetry(ctx context.Context, deviceID string, metrics map[string]float64) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return
	}
	c.client.Set(ctx, LatestTelemetryPrefix+deviceID, data, TelemetryTTL)
}

// LatestTelemetry returns the cached metric map, or nil on a miss.
func (c *Cache) LatestTelemetry(ctx context.Context, deviceID string) map[string]float64 {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, LatestTelemetryPrefix+deviceID).Result()
	if err != nil {
		return nil
	}
	var metrics map[string]float64
	if err := json.Unmarshal([]byte(data), &metrics); err != nil {
		return nil
	}
	return metrics
}

// SetDashboardStats caches the aggregates for StatsTTL.
func (c *Cache) SetDashboardStats(ctx context.Context, stats model.DashboardStats) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	c.client.Set(ctx, DashboardStatsKey, data, StatsTTL)
}

// DashboardStats returns the cached aggregates, or nil on a miss.
func (c *Cache) DashboardStats(ctx context.Context) *model.DashboardStats {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, DashboardStatsKey).Result()
	if err != nil {
		return nil
	}
	var stats model.DashboardStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil
	}
	return &stats
}

// InvalidateDashboardStats drops the cached aggregates. The simulation loop
// calls this once per cycle after writing new telemetry.
func (c *Cache) InvalidateDashboardStats(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, DashboardStatsKey)
}
