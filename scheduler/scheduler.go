// Package scheduler runs the analyzer's background jobs: retrying failed
// generics cache writes and logging health changes.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Intervals configures how often each job runs
type Intervals struct {
	CacheFlush  time.Duration
	HealthCheck time.Duration
}

// DefaultIntervals flushes every minute and checks health every 5 minutes
var DefaultIntervals = Intervals{
	CacheFlush:  time.Minute,
	HealthCheck: 5 * time.Minute,
}

// Scheduler owns the gocron scheduler and the jobs' shared state
type Scheduler struct {
	cache     interfaces.GenericsCache
	health    interfaces.HealthChecker
	intervals Intervals
	scheduler *gocron.Scheduler

	mu         sync.Mutex
	lastStatus string
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(cache interfaces.GenericsCache, health interfaces.HealthChecker, intervals Intervals) *Scheduler {
	if intervals.CacheFlush <= 0 {
		intervals.CacheFlush = DefaultIntervals.CacheFlush
	}
	if intervals.HealthCheck <= 0 {
		intervals.HealthCheck = DefaultIntervals.HealthCheck
	}
	return &Scheduler{
		cache:     cache,
		health:    health,
		intervals: intervals,
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start registers the jobs and runs them asynchronously
func (s *Scheduler) Start() error {
	s.scheduler.SingletonModeAll()

	if _, err := s.scheduler.Every(s.intervals.CacheFlush).Do(s.flushCache); err != nil {
		logging.Error("Failed to schedule cache flush", "error", err)
		return fmt.Errorf("failed to schedule cache flush: %w", err)
	}

	if _, err := s.scheduler.Every(s.intervals.HealthCheck).Do(s.monitorHealth); err != nil {
		logging.Error("Failed to schedule health monitoring", "error", err)
		return fmt.Errorf("failed to schedule health monitoring: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started",
		"cache_flush_interval", s.intervals.CacheFlush.String(),
		"health_interval", s.intervals.HealthCheck.String(),
	)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// flushCache retries persisting the generics cache after a failed write
func (s *Scheduler) flushCache() {
	if s.cache == nil || !s.cache.Dirty() {
		return
	}
	if err := s.cache.Flush(); err != nil {
		logging.Error("Generics cache flush failed, will retry", "error", err)
		return
	}
	logging.Info("Generics cache flushed", "entries", s.cache.Len())
}

// monitorHealth logs health status transitions, and every non-healthy check
func (s *Scheduler) monitorHealth() {
	if s.health == nil {
		return
	}
	status, details, _ := s.health.HealthCheck()

	s.mu.Lock()
	previous := s.lastStatus
	s.lastStatus = status
	s.mu.Unlock()

	switch {
	case status != "healthy":
		logging.Warn("Service is not healthy", "status", status, "previous", previous, "providers", details["providers"])
	case previous != "" && previous != status:
		logging.Info("Service recovered", "previous", previous)
	}
}

// LastStatus returns the status seen by the most recent health job
func (s *Scheduler) LastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}
