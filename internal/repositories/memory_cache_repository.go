package repositories

import (
	"context"
	"sync"
	"time"

	"portfolio-analytics/internal/models"
)

type memoryCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCacheRepository creates an in-process cache store. A ttl of zero
// keeps entries until they are deleted.
func NewMemoryCacheRepository(ttl time.Duration) CacheRepository {
	return &memoryCacheRepository{
		entries: make(map[string]*models.CacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *memoryCacheRepository) Name() string {
	return "memory"
}

func (r *memoryCacheRepository) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, ok := r.entries[fingerprint]
	r.mu.RUnlock()

	if !ok || r.expired(entry) {
		return nil, ErrCacheMiss
	}

	copied := *entry
	return &copied, nil
}

func (r *memoryCacheRepository) Set(ctx context.Context, entry *models.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := *entry
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.entries[entry.Fingerprint] = &copied
	r.mu.Unlock()
	return nil
}

func (r *memoryCacheRepository) Delete(ctx context.Context, fingerprint string) error {
	r.mu.Lock()
	delete(r.entries, fingerprint)
	r.mu.Unlock()
	return nil
}

func (r *memoryCacheRepository) Clear(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := int64(len(r.entries))
	r.entries = make(map[string]*models.CacheEntry)
	return removed, nil
}

func (r *memoryCacheRepository) Ping(ctx context.Context) error {
	return nil
}

// PurgeExpired drops entries created before the cutoff
func (r *memoryCacheRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for fp, entry := range r.entries {
		if entry.CreatedAt.Before(before) {
			delete(r.entries, fp)
			removed++
		}
	}
	return removed, nil
}

func (r *memoryCacheRepository) expired(entry *models.CacheEntry) bool {
	return r.ttl > 0 && r.now().Sub(entry.CreatedAt) > r.ttl
}
