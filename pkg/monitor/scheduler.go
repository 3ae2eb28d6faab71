package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"sitemap-watch/pkg/logger"
)

// CycleRunner is anything that can run one monitoring cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// Scheduler runs monitoring cycles on a fixed interval until its context is
// cancelled. It keeps the report of the most recent cycle.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	log        *logger.Logger

	mu         sync.RWMutex
	lastReport *CycleReport
	lastError  error
	lastRun    time.Time
}

func NewScheduler(runner CycleRunner, interval time.Duration, runOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		log:        logger.GetLogger().WithField("component", "scheduler"),
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("Scheduler started")

	if s.runOnStart {
		s.Trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger runs one cycle now and records its outcome. A cycle that is
// already running is not interrupted.
func (s *Scheduler) Trigger(ctx context.Context) (*CycleReport, error) {
	report, err := s.runner.RunCycle(ctx)
	if errors.Is(err, ErrCycleInProgress) {
		s.log.Warn("Skipping tick, previous cycle still running")
		return nil, err
	}

	s.mu.Lock()
	s.lastReport = report
	s.lastError = err
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Error("Monitoring cycle failed")
	}
	return report, err
}

// LastReport returns the most recent cycle report, if any.
func (s *Scheduler) LastReport() (*CycleReport, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport, s.lastRun, s.lastError
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
