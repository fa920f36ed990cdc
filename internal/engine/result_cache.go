package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v2"
	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/models"
	"portfolio-analytics/internal/monitoring"
	"portfolio-analytics/internal/repositories"
	apperrors "portfolio-analytics/pkg/errors"
)

const (
	tierLocal = "local"
	tierStore = "store"

	lockPollInterval = 100 * time.Millisecond
)

// Computation produces the result for a fingerprint on a cache miss
type Computation func(ctx context.Context) (*models.AnalysisResult, error)

type ResultCacheConfig struct {
	LocalTTL     time.Duration
	LocalMaxSize int64
	StoreTimeout time.Duration
	LockTTL      time.Duration
}

// ResultCache serves analysis results by fingerprint from a local tier and
// an optional persistent store, and runs at most one computation per
// fingerprint at a time. Within a process this is a keyed mutex; with a
// LockRepository it also holds across processes sharing the store.
type ResultCache struct {
	local    *ccache.Cache
	store    repositories.CacheRepository
	distLock repositories.LockRepository
	locks    *KeyedLocker
	config   ResultCacheConfig

	// flights hands a fresh result to callers queued on the same
	// fingerprint, so single flight holds even without any cache tier
	flightsMu sync.Mutex
	flights   map[string]*flight
	logger   *logrus.Logger
	metrics  monitoring.Recorder
}

// NewResultCache creates a result cache. store and distLock may be nil.
func NewResultCache(cfg ResultCacheConfig, store repositories.CacheRepository, distLock repositories.LockRepository, logger *logrus.Logger, metrics monitoring.Recorder) *ResultCache {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if metrics == nil {
		metrics = monitoring.NopRecorder{}
	}

	var local *ccache.Cache
	if cfg.LocalMaxSize > 0 && cfg.LocalTTL > 0 {
		local = ccache.New(ccache.Configure().
			MaxSize(cfg.LocalMaxSize).
			ItemsToPrune(uint32(cfg.LocalMaxSize/10 + 1)))
	}

	return &ResultCache{
		local:    local,
		store:    store,
		distLock: distLock,
		locks:    NewKeyedLocker(),
		config:   cfg,
		flights:  make(map[string]*flight),
		logger:   logger,
		metrics:  metrics,
	}
}

// GetOrCompute returns the cached result for fingerprint, or runs compute
// while holding the fingerprint's exclusive section. The bool reports a
// cache hit. Failed computations are returned to the caller and never
// stored, so the next call retries.
func (c *ResultCache) GetOrCompute(ctx context.Context, fingerprint string, compute Computation) (*models.AnalysisResult, bool, error) {
	if result := c.lookup(ctx, fingerprint); result != nil {
		return result, true, nil
	}

	f := c.joinFlight(fingerprint)
	defer c.leaveFlight(fingerprint, f)

	unlock, err := c.locks.Lock(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	// Another caller may have filled the entry while we waited
	if result := f.get(); result != nil {
		return result, true, nil
	}
	if result := c.lookup(ctx, fingerprint); result != nil {
		return result, true, nil
	}

	if c.distLock != nil && c.store != nil {
		result, release, err := c.acquireDistributed(ctx, fingerprint)
		if err != nil {
			return nil, false, err
		}
		defer release()
		if result != nil {
			return result, true, nil
		}
	}

	result, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}

	f.set(result)
	c.save(ctx, fingerprint, result)
	return result, false, nil
}

// flight is shared by every caller of one fingerprint until the last of them
// returns. It only ever holds a successful result.
type flight struct {
	mu     sync.Mutex
	refs   int
	result *models.AnalysisResult
}

func (f *flight) get() *models.AnalysisResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func (f *flight) set(result *models.AnalysisResult) {
	f.mu.Lock()
	f.result = result
	f.mu.Unlock()
}

func (c *ResultCache) joinFlight(fingerprint string) *flight {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f, ok := c.flights[fingerprint]
	if !ok {
		f = &flight{}
		c.flights[fingerprint] = f
	}
	f.refs++
	return f
}

func (c *ResultCache) leaveFlight(fingerprint string, f *flight) {
	c.flightsMu.Lock()
	defer c.flightsMu.Unlock()

	f.refs--
	if f.refs == 0 {
		delete(c.flights, fingerprint)
	}
}

// Invalidate drops one fingerprint from every tier
func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) error {
	if c.local != nil {
		c.local.Delete(fingerprint)
	}
	if c.store == nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	if err := c.store.Delete(storeCtx, fingerprint); err != nil {
		c.metrics.IncrementCacheStoreFailures("delete")
		return apperrors.NewCacheStoreFailure("delete", err)
	}
	return nil
}

// InvalidateAll empties every tier and returns how many persisted entries
// were removed
func (c *ResultCache) InvalidateAll(ctx context.Context) (int64, error) {
	if c.local != nil {
		c.local.Clear()
	}
	if c.store == nil {
		return 0, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	removed, err := c.store.Clear(storeCtx)
	if err != nil {
		c.metrics.IncrementCacheStoreFailures("clear")
		return 0, apperrors.NewCacheStoreFailure("clear", err)
	}
	return removed, nil
}

// Ping reports whether the persistent store is reachable
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Ping(ctx)
}

// StoreName names the persistent backend, "none" without one
func (c *ResultCache) StoreName() string {
	if c.store == nil {
		return "none"
	}
	return c.store.Name()
}

// Stop releases the local tier's background workers
func (c *ResultCache) Stop() {
	if c.local != nil {
		c.local.Stop()
	}
}

func (c *ResultCache) lookup(ctx context.Context, fingerprint string) *models.AnalysisResult {
	if c.local != nil {
		if item := c.local.Get(fingerprint); item != nil && !item.Expired() {
			if result, ok := item.Value().(*models.AnalysisResult); ok {
				c.metrics.RecordCacheOperation(tierLocal, "hit")
				return result
			}
		}
		c.metrics.RecordCacheOperation(tierLocal, "miss")
	}

	result := c.lookupStore(ctx, fingerprint)
	if result != nil && c.local != nil {
		c.local.Set(fingerprint, result, c.config.LocalTTL)
	}
	return result
}

// lookupStore treats every store error as a miss; caching is best effort
func (c *ResultCache) lookupStore(ctx context.Context, fingerprint string) *models.AnalysisResult {
	if c.store == nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	entry, err := c.store.Get(storeCtx, fingerprint)
	if err != nil {
		if errors.Is(err, repositories.ErrCacheMiss) {
			c.metrics.RecordCacheOperation(tierStore, "miss")
			return nil
		}
		c.storeFailure("get", fingerprint, err)
		return nil
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(entry.Payload, &result); err != nil {
		c.storeFailure("decode", fingerprint, err)
		return nil
	}

	c.metrics.RecordCacheOperation(tierStore, "hit")
	return &result
}

func (c *ResultCache) save(ctx context.Context, fingerprint string, result *models.AnalysisResult) {
	if c.local != nil {
		c.local.Set(fingerprint, result, c.config.LocalTTL)
	}
	if c.store == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		c.storeFailure("encode", fingerprint, err)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	entry := &models.CacheEntry{
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.store.Set(storeCtx, entry); err != nil {
		c.storeFailure("set", fingerprint, err)
	}
}

// acquireDistributed waits for the cross-process lock on fingerprint. It
// returns a result instead when another process stores one meanwhile. Lock
// backend failures fall back to computing without the lock.
func (c *ResultCache) acquireDistributed(ctx context.Context, fingerprint string) (*models.AnalysisResult, func(), error) {
	noop := func() {}
	deadline := time.Now().Add(c.config.LockTTL)

	for {
		lock, err := c.distLock.AcquireLock(ctx, fingerprint, c.config.LockTTL)
		if err == nil {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), c.config.StoreTimeout)
				defer cancel()
				if err := c.distLock.ReleaseLock(releaseCtx, lock); err != nil {
					c.logger.WithError(err).WithField("fingerprint", fingerprint).Warn("Failed to release analysis lock")
				}
			}

			// A peer may have stored the result and released the lock
			// between our last lookup and this acquisition
			if result := c.lookupStore(ctx, fingerprint); result != nil {
				release()
				if c.local != nil {
					c.local.Set(fingerprint, result, c.config.LocalTTL)
				}
				return result, noop, nil
			}
			return nil, release, nil
		}

		if !errors.Is(err, repositories.ErrLockHeld) {
			c.storeFailure("lock", fingerprint, err)
			return nil, noop, nil
		}

		if result := c.lookupStore(ctx, fingerprint); result != nil {
			if c.local != nil {
				c.local.Set(fingerprint, result, c.config.LocalTTL)
			}
			return result, noop, nil
		}

		if time.Now().After(deadline) {
			c.logger.WithField("fingerprint", fingerprint).Warn("Analysis lock wait expired, computing anyway")
			return nil, noop, nil
		}

		select {
		case <-ctx.Done():
			return nil, noop, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (c *ResultCache) storeFailure(op, fingerprint string, err error) {
	c.metrics.IncrementCacheStoreFailures(op)
	c.metrics.RecordCacheOperation(tierStore, "error")
	c.logger.WithFields(logrus.Fields{
		"fingerprint": fingerprint,
		"store":       c.StoreName(),
		"operation":   op,
		"error":       err,
	}).Warn(apperrors.NewCacheStoreFailure(op, err).Error())
}
