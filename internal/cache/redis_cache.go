package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirkas/backend/internal/domain"
)

type RedisCatalogCache struct {
	client *redis.Client
	key    string
}

// NewRedisCatalogCache stores the catalog under prefix+CatalogKey on a shared
// client. The caller owns the client.
func NewRedisCatalogCache(client *redis.Client, prefix string) *RedisCatalogCache {
	return &RedisCatalogCache{client: client, key: prefix + CatalogKey}
}

func (c *RedisCatalogCache) Get(ctx context.Context) (*domain.StorefrontCatalog, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var catalog domain.StorefrontCatalog
	if err := json.Unmarshal(val, &catalog); err != nil {
		return nil, false, err
	}
	return &catalog, true, nil
}

func (c *RedisCatalogCache) Set(ctx context.Context, value *domain.StorefrontCatalog, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
