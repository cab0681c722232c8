package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/usecase"
)

const lockKey = "scraper:schedule:lock"

type configSource interface {
	Get(ctx context.Context) (scraperjob.Config, error)
}

type jobHistory interface {
	LatestRequestedAt(ctx context.Context) (*time.Time, error)
}

type jobStarter interface {
	Start(ctx context.Context, in usecase.StartJobInput) (scraperjob.Job, error)
}

type scheduleLock interface {
	SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// AutoRunner starts a job from the stored ScraperConfig whenever auto-run is
// enabled and the last job is older than the configured interval.
type AutoRunner struct {
	configs configSource
	history jobHistory
	starter jobStarter
	lock    scheduleLock
	tick    time.Duration
	logger  *log.Logger
	now     func() time.Time
}

func NewAutoRunner(configs configSource, history jobHistory, starter jobStarter, lock scheduleLock, tick time.Duration, logger *log.Logger) *AutoRunner {
	if tick <= 0 {
		tick = time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AutoRunner{
		configs: configs,
		history: history,
		starter: starter,
		lock:    lock,
		tick:    tick,
		logger:  logger,
		now:     time.Now,
	}
}

// Run checks once per tick until ctx is done.
func (s *AutoRunner) Run(ctx context.Context) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Check starts a job if one is due and reports whether it did.
func (s *AutoRunner) Check(ctx context.Context) bool {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		s.logger.Printf("[Scheduler] config load error: %v", err)
		return false
	}
	if !cfg.IsActive || cfg.UpdateIntervalMinutes <= 0 {
		return false
	}

	interval := time.Duration(cfg.UpdateIntervalMinutes) * time.Minute
	latest, err := s.history.LatestRequestedAt(ctx)
	if err != nil {
		s.logger.Printf("[Scheduler] job history error: %v", err)
		return false
	}
	if latest != nil && s.now().Sub(*latest) < interval {
		return false
	}
	s.logger.Printf("[Scheduler] run due latest=%v interval=%s", latest, interval)

	// Another process may be checking on the same tick.
	if s.lock != nil {
		ok, err := s.lock.SetIfNotExists(ctx, lockKey, "1", s.tick)
		if err == nil && !ok {
			return false
		}
	}

	job, err := s.starter.Start(ctx, usecase.StartJobInput{})
	if err != nil {
		if errors.Is(err, usecase.ErrJobAlreadyRunning) {
			s.logger.Printf("[Scheduler] skipped: job already running")
			return false
		}
		s.logger.Printf("[Scheduler] start error: %v", err)
		return false
	}
	s.logger.Printf("[Scheduler] started job=%s keywords=%v", job.ID, job.Params.Keywords)
	return true
}
