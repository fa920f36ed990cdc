package repositories

import (
	"context"
	"errors"
	"time"

	"portfolio-analytics/internal/models"
)

// ErrCacheMiss is returned when no entry exists for a fingerprint
var ErrCacheMiss = errors.New("cache entry not found")

// ErrLockHeld is returned when another owner holds a distributed lock
var ErrLockHeld = errors.New("lock already held")

// CacheRepository is the persistent backing of the result cache
type CacheRepository interface {
	// Name identifies the backend in logs and metrics
	Name() string

	// Get returns the entry for fingerprint or ErrCacheMiss
	Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error)

	// Set stores or replaces an entry
	Set(ctx context.Context, entry *models.CacheEntry) error

	// Delete removes an entry; a missing entry is not an error
	Delete(ctx context.Context, fingerprint string) error

	// Clear removes every entry and returns how many were removed
	Clear(ctx context.Context) (int64, error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}

// Purger is implemented by backends that do not expire entries on their own
type Purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// LockRepository grants exclusive ownership of a key across processes
type LockRepository interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error)
	ReleaseLock(ctx context.Context, lock *DistributedLock) error
}

type DistributedLock struct {
	Key        string
	Value      string
	TTL        time.Duration
	AcquiredAt time.Time
}
