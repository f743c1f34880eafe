package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	settingsCachePrefix     = "alert_settings:"
	defaultSettingsCacheTTL = 5 * time.Minute
)

// SettingsCache caches alert settings per tenant.
// Cached values include decrypted channel credentials, so keep the TTL short.
type SettingsCache struct {
	client *Client
	ttl    time.Duration
}

// NewSettingsCache creates a new settings cache
func NewSettingsCache(client *Client, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = defaultSettingsCacheTTL
	}
	return &SettingsCache{client: client, ttl: ttl}
}

// Get returns nil, nil on a cache miss
func (c *SettingsCache) Get(ctx context.Context, tenantID string) (*domain.AlertSettings, error) {
	data, err := c.client.rdb.Get(ctx, settingsCachePrefix+tenantID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settings cache: %w", err)
	}

	var settings domain.AlertSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

func (c *SettingsCache) Set(ctx context.Context, settings *domain.AlertSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return c.client.rdb.Set(ctx, settingsCachePrefix+settings.TenantID, data, c.ttl).Err()
}

func (c *SettingsCache) Invalidate(ctx context.Context, tenantID string) error {
	return c.client.rdb.Del(ctx, settingsCachePrefix+tenantID).Err()
}
