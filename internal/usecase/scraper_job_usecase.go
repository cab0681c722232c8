package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"

	"github.com/google/uuid"
)

var (
	ErrJobAlreadyRunning = errors.New("a scraper job is already running")
	ErrJobNotRunning     = errors.New("scraper job is not running")
)

// StartJobInput fields left nil fall back to the stored ScraperConfig.
type StartJobInput struct {
	Keywords    []string
	Categories  []string
	City        *string
	PageLimit   *int
	Concurrency *int
}

type jobRunner interface {
	Start(ctx context.Context, params scraperjob.Params) (scraperjob.Job, error)
	Cancel(id uuid.UUID) error
}

type ScraperJobUsecase interface {
	Start(ctx context.Context, in StartJobInput) (scraperjob.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (scraperjob.Job, error)
	List(ctx context.Context, status string, page, perPage int) ([]scraperjob.Job, int, error)
	Snapshot(ctx context.Context, id uuid.UUID) (scraperjob.Progress, error)
}

type ScraperJobs struct {
	runner             jobRunner
	jobs               repository.ScraperJobRepository
	configs            repository.ScraperConfigRepository
	relay              *ProgressRelay
	defaultConcurrency int
	logger             *log.Logger
}

func NewScraperJobUsecase(runner jobRunner, jobs repository.ScraperJobRepository, configs repository.ScraperConfigRepository, relay *ProgressRelay, defaultConcurrency int, logger *log.Logger) *ScraperJobs {
	if logger == nil {
		logger = log.Default()
	}
	return &ScraperJobs{
		runner:             runner,
		jobs:               jobs,
		configs:            configs,
		relay:              relay,
		defaultConcurrency: defaultConcurrency,
		logger:             logger,
	}
}

func (u *ScraperJobs) Start(ctx context.Context, in StartJobInput) (scraperjob.Job, error) {
	cfg, err := u.configs.Get(ctx)
	if err != nil {
		u.logger.Printf("[ScraperJobs] config load error: %v", err)
		return scraperjob.Job{}, ErrInternal
	}

	params := scraperjob.Params{
		Keywords:    cfg.Keywords,
		Categories:  cfg.Categories,
		City:        cfg.City,
		PageLimit:   cfg.PageLimit,
		Concurrency: u.defaultConcurrency,
	}
	if len(in.Keywords) > 0 {
		params.Keywords = in.Keywords
	}
	if len(in.Categories) > 0 {
		params.Categories = in.Categories
	}
	if in.City != nil {
		params.City = *in.City
	}
	if in.PageLimit != nil {
		params.PageLimit = *in.PageLimit
	}
	if in.Concurrency != nil {
		if *in.Concurrency < 1 || *in.Concurrency > scraper.MaxConcurrency {
			return scraperjob.Job{}, ErrInvalidInput
		}
		params.Concurrency = *in.Concurrency
	}

	job, err := u.runner.Start(ctx, params)
	switch {
	case errors.Is(err, scraper.ErrAlreadyRunning):
		return scraperjob.Job{}, ErrJobAlreadyRunning
	case errors.Is(err, scraper.ErrInvalidParams):
		return scraperjob.Job{}, ErrInvalidInput
	case err != nil:
		u.logger.Printf("[ScraperJobs] start error: %v", err)
		return scraperjob.Job{}, ErrInternal
	}
	return job, nil
}

func (u *ScraperJobs) Cancel(ctx context.Context, id uuid.UUID) error {
	err := u.runner.Cancel(id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, scraper.ErrJobNotRunning) {
		return ErrInternal
	}
	if _, err := u.Get(ctx, id); err != nil {
		return err
	}
	return ErrJobNotRunning
}

func (u *ScraperJobs) Get(ctx context.Context, id uuid.UUID) (scraperjob.Job, error) {
	job, err := u.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrScraperJobNotFound) {
			return scraperjob.Job{}, ErrNotFound
		}
		u.logger.Printf("[ScraperJobs] get error id=%s err=%v", id, err)
		return scraperjob.Job{}, ErrInternal
	}
	return job, nil
}

func (u *ScraperJobs) List(ctx context.Context, status string, page, perPage int) ([]scraperjob.Job, int, error) {
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if page < 1 || perPage < 1 || perPage > maxPerPage {
		return nil, 0, ErrInvalidInput
	}

	st := scraperjob.Status(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", scraperjob.StatusPending, scraperjob.StatusRunning, scraperjob.StatusCompleted,
		scraperjob.StatusFailed, scraperjob.StatusCancelled:
	default:
		return nil, 0, ErrInvalidInput
	}

	jobs, total, err := u.jobs.List(ctx, st, perPage, (page-1)*perPage)
	if err != nil {
		u.logger.Printf("[ScraperJobs] list error: %v", err)
		return nil, 0, ErrInternal
	}
	return jobs, total, nil
}

// Snapshot returns the freshest known progress of a job: the cache while it
// runs, the stored row otherwise.
func (u *ScraperJobs) Snapshot(ctx context.Context, id uuid.UUID) (scraperjob.Progress, error) {
	if p, ok := u.relay.Latest(ctx, id); ok {
		return p, nil
	}
	job, err := u.Get(ctx, id)
	if err != nil {
		return scraperjob.Progress{}, err
	}
	return progressFromJob(job), nil
}

// FinishedSnapshot reports the final snapshot of a terminal job, encoded for
// subscribers.
func (u *ScraperJobs) FinishedSnapshot(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	job, err := u.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !job.Status.Terminal() {
		return nil, false, nil
	}
	b, err := json.Marshal(progressFromJob(job))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func progressFromJob(job scraperjob.Job) scraperjob.Progress {
	if job.Progress != nil {
		p := *job.Progress
		p.Status = job.Status
		p.Completed = job.Status.Terminal()
		return p
	}
	p := scraperjob.Progress{
		JobID:         job.ID,
		Status:        job.Status,
		TotalKeywords: len(job.Params.Keywords) * len(job.Params.Categories),
		ListingsFound: job.Counters.ListingsFound,
		Concurrency:   job.Params.Concurrency,
		PagesScraped:  job.Counters.PagesScraped,
		PagesFailed:   job.Counters.PagesFailed,
		NewCount:      job.Counters.ListingsNew,
		UpdatedCount:  job.Counters.ListingsUpdated,
		Completed:     job.Status.Terminal(),
		Timestamp:     job.RequestedAt,
	}
	if job.ErrorSummary != nil {
		p.Error = *job.ErrorSummary
		p.Message = *job.ErrorSummary
	}
	if job.CompletedAt != nil {
		p.Timestamp = *job.CompletedAt
		if job.StartedAt != nil {
			p.ElapsedSeconds = job.CompletedAt.Sub(*job.StartedAt).Seconds()
		}
	}
	return p
}
