package memcached

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/repositories"
)

const (
	keyPrefix = "analysis:"

	// memcached reads expirations above 30 days as unix timestamps
	maxRelativeExpiration = 30 * 24 * time.Hour
)

type memcachedCacheRepository struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewCacheRepository creates a cache repository on a memcached cluster
func NewCacheRepository(hosts []string, timeout time.Duration, ttl time.Duration) repositories.CacheRepository {
	client := memcache.New(hosts...)
	client.Timeout = timeout

	return &memcachedCacheRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *memcachedCacheRepository) Name() string {
	return "memcached"
}

func (r *memcachedCacheRepository) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := r.client.Get(keyPrefix + fingerprint)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, repositories.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

func (r *memcachedCacheRepository) Set(ctx context.Context, entry *models.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	item := &memcache.Item{
		Key:        keyPrefix + entry.Fingerprint,
		Value:      data,
		Expiration: r.expiration(),
	}
	if err := r.client.Set(item); err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

func (r *memcachedCacheRepository) Delete(ctx context.Context, fingerprint string) error {
	if err := r.client.Delete(keyPrefix + fingerprint); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

// Clear flushes the whole server; memcached cannot delete by prefix. The
// count is unknown and reported as zero.
func (r *memcachedCacheRepository) Clear(ctx context.Context) (int64, error) {
	if err := r.client.FlushAll(); err != nil {
		return 0, fmt.Errorf("failed to flush memcached: %w", err)
	}
	return 0, nil
}

func (r *memcachedCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping()
}

func (r *memcachedCacheRepository) expiration() int32 {
	switch {
	case r.ttl <= 0:
		return 0
	case r.ttl > maxRelativeExpiration:
		return int32(time.Now().Add(r.ttl).Unix())
	default:
		return int32(r.ttl.Seconds())
	}
}
