package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"portfolio-analytics/internal/repositories"
)

const (
	lockPrefix = "lock:analysis:"
	lockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

type lockRepository struct {
	client *goredis.Client
}

func NewLockRepository(client *goredis.Client) repositories.LockRepository {
	return &lockRepository{
		client: client,
	}
}

func (r *lockRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*repositories.DistributedLock, error) {
	lockKey := lockPrefix + key
	lockValue := uuid.New().String()

	acquired, err := r.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return nil, fmt.Errorf("%w: %s", repositories.ErrLockHeld, key)
	}

	return &repositories.DistributedLock{
		Key:        lockKey,
		Value:      lockValue,
		TTL:        ttl,
		AcquiredAt: time.Now(),
	}, nil
}

// ReleaseLock deletes the key only while it still carries our token
func (r *lockRepository) ReleaseLock(ctx context.Context, lock *repositories.DistributedLock) error {
	result, err := r.client.Eval(ctx, lockScript, []string{lock.Key}, lock.Value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not found or already released: %s", lock.Key)
	}

	return nil
}
