package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"portfolio-analytics/internal/config"
	"portfolio-analytics/internal/repositories"
)

// Scheduler runs background maintenance jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	config  config.SchedulerConfig
	logger  *logrus.Logger
	mu      sync.Mutex
	running bool
}

func NewScheduler(cfg config.SchedulerConfig, logger *logrus.Logger) (*Scheduler, error) {
	location := time.UTC
	if cfg.TimeZone != "" {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.TimeZone, err)
		}
		location = loc
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		config: cfg,
		logger: logger,
	}, nil
}

// AddCachePurge schedules removal of store entries older than ttl
func (s *Scheduler) AddCachePurge(store repositories.Purger, ttl time.Duration) error {
	job := NewCachePurgeJob(store, ttl, s.config.JobTimeout, s.logger)
	if _, err := s.cron.AddJob(s.config.CachePurgeCron, job); err != nil {
		return fmt.Errorf("invalid cache purge schedule %q: %w", s.config.CachePurgeCron, err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule": s.config.CachePurgeCron,
		"ttl":      ttl,
	}).Info("Cache purge job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// CachePurgeJob deletes persisted results that outlived the result TTL
type CachePurgeJob struct {
	store   repositories.Purger
	ttl     time.Duration
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

func NewCachePurgeJob(store repositories.Purger, ttl, timeout time.Duration, logger *logrus.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		store:   store,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Run implements cron.Job
func (j *CachePurgeJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.Purge(ctx); err != nil {
		j.logger.WithError(err).Error("Cache purge failed")
	}
}

// Purge removes expired entries and returns how many were dropped
func (j *CachePurgeJob) Purge(ctx context.Context) (int64, error) {
	if j.ttl <= 0 {
		return 0, nil
	}

	start := time.Now()
	cutoff := j.now().Add(-j.ttl)

	removed, err := j.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	j.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"cutoff":   cutoff,
		"duration": time.Since(start),
	}).Info("Expired analysis results purged")
	return removed, nil
}
