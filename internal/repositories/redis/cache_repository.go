package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/repositories"
	"portfolio-analytics/pkg/cache"
)

const resultKeyPrefix = "analysis:"

// RedisCacheRepository implements CacheRepository on Redis. Expiry is left to
// the key TTL.
type RedisCacheRepository struct {
	client *cache.RedisClient
	ttl    time.Duration
}

// NewCacheRepository creates a new Redis cache repository
func NewCacheRepository(client *cache.RedisClient, ttl time.Duration) repositories.CacheRepository {
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisCacheRepository) Name() string {
	return "redis"
}

func (r *RedisCacheRepository) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := r.client.Get(ctx, resultKey(fingerprint), &entry); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, repositories.ErrCacheMiss
		}
		return nil, err
	}
	return &entry, nil
}

func (r *RedisCacheRepository) Set(ctx context.Context, entry *models.CacheEntry) error {
	if err := r.client.Set(ctx, resultKey(entry.Fingerprint), entry, r.ttl); err != nil {
		return fmt.Errorf("failed to store analysis %s: %w", entry.Fingerprint, err)
	}
	return nil
}

func (r *RedisCacheRepository) Delete(ctx context.Context, fingerprint string) error {
	return r.client.Delete(ctx, resultKey(fingerprint))
}

func (r *RedisCacheRepository) Clear(ctx context.Context) (int64, error) {
	keys, err := r.client.Keys(ctx, resultKeyPrefix+"*")
	if err != nil {
		return 0, err
	}
	if err := r.client.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to clear analysis cache: %w", err)
	}
	return int64(len(keys)), nil
}

func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func resultKey(fingerprint string) string {
	return resultKeyPrefix + fingerprint
}
