package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"notebook-scout/internal/config"
	"notebook-scout/internal/database"
	dbpostgres "notebook-scout/internal/database/postgres"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/infrastructure/cache"
	"notebook-scout/internal/pkg/jwt"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scheduler"
	"notebook-scout/internal/scraper"
	"notebook-scout/internal/usecase"
	"notebook-scout/internal/ws"
)

// Container owns every long-lived dependency of a process. Both the API
// server and the one-shot scraper build one.
type Container struct {
	Config config.Config
	Logger *log.Logger

	DB    database.DB
	Cache *cache.Redis
	Hub   *ws.Hub

	Fetcher      scraper.PageFetcher
	Gate         *scraper.PolitenessGate
	Orchestrator *scraper.Orchestrator

	Jobs     repository.ScraperJobRepository
	Configs  repository.ScraperConfigRepository
	Listings usecase.ListingQueryUsecase

	ScraperJobs   *usecase.ScraperJobs
	ScraperConfig *usecase.ScraperConfigs
	AdminAuth     *usecase.AdminAuth
	JWT           jwt.Service
	Scheduler     *scheduler.AutoRunner
}

func NewContainer(ctx context.Context, cfg config.Config, logger *log.Logger) (*Container, error) {
	if logger == nil {
		logger = log.Default()
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(connCtx, cfg.Database, cfg.App.AppName)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, DB: db}
	c.Cache = cache.NewRedis(cfg.Redis, logger)
	c.Hub = ws.NewHub(logger)
	ws.SetDefaultHub(c.Hub)

	if err := c.buildScraper(); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.buildUsecases()
	return c, nil
}

func (c *Container) buildScraper() error {
	cfg := c.Config.Scraper
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("invalid SCRAPER_BASE_URL %q", cfg.BaseURL)
	}

	switch cfg.Fetcher {
	case config.FetcherHTTP:
		c.Fetcher = scraper.NewCollyFetcher(scraper.CollyFetcherOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.PageTimeout,
		}, c.Logger)
	default:
		c.Fetcher = scraper.NewChromeFetcher(scraper.ChromeFetcherOptions{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.PageTimeout,
			SettleDelay: cfg.SettleDelay,
			Headless:    true,
		}, c.Logger)
	}

	c.Gate = scraper.NewPolitenessGate(scraper.HTTPRobotsSource{
		Client:    &http.Client{Timeout: 15 * time.Second},
		Scheme:    base.Scheme,
		UserAgent: cfg.UserAgent,
	}, scraper.GateOptions{
		UserAgent:     cfg.UserAgent,
		Delay:         cfg.RequestDelay,
		FailOpenDelay: cfg.RobotsFailOpenWait,
		RobotsTTL:     cfg.RobotsTTL,
	}, c.Logger)

	policy := scraper.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.BaseDelay = cfg.BackoffBase
	policy.RateLimitFloor = cfg.RateLimitFloor
	loader := scraper.NewPageLoader(c.Fetcher, scraper.NewExtractor(), c.Gate, policy, c.Logger)

	c.Jobs = repository.NewPostgresScraperJobRepository(c.DB)
	c.Configs = repository.NewPostgresScraperConfigRepository(c.DB)
	var queryCache usecase.Cache
	if c.Cache.Available() {
		queryCache = c.Cache
	}
	c.Listings = usecase.NewListingQueryUsecase(repository.NewPostgresListingQueryRepository(c.DB), queryCache, c.Logger)

	relay := usecase.NewProgressRelay(c.Hub, c.Cache, c.Logger)
	c.Orchestrator = scraper.NewOrchestrator(scraper.OrchestratorDeps{
		Loader:     loader,
		Robots:     c.Gate,
		Reconciler: usecase.NewListingReconciler(repository.NewPostgresListingRepository(c.DB), c.Logger),
		Jobs:       c.Jobs,
		Publisher:  relay,
		Lock:       scraper.ChainLocks(scraper.NewMemoryRunLock(), cache.NewRunLock(c.Cache)),
		BaseURL:    cfg.BaseURL,
		Logger:     c.Logger,
		OnFinish:   c.onJobFinished,
	})

	c.ScraperJobs = usecase.NewScraperJobUsecase(c.Orchestrator, c.Jobs, c.Configs, relay, cfg.Concurrency, c.Logger)
	return nil
}

func (c *Container) buildUsecases() {
	c.ScraperConfig = usecase.NewScraperConfigUsecase(c.Configs, c.Logger)
	c.JWT = jwt.NewHMACService(c.Config.Admin.JWTSecret, c.Config.Admin.TokenTTL)
	c.AdminAuth = usecase.NewAdminAuthUsecase(c.Config.Admin.Username, c.Config.Admin.PasswordHash, c.JWT)

	var lock interface {
		SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	}
	if c.Cache.Available() {
		lock = c.Cache
	}
	c.Scheduler = scheduler.NewAutoRunner(c.Configs, c.Jobs, c.ScraperJobs, lock, c.Config.Scheduler.Tick, c.Logger)
}

// onJobFinished drops cached listing reads and tells listing subscribers
// that data changed.
func (c *Container) onJobFinished(ctx context.Context, job scraperjob.Job) {
	if job.Counters.ListingsNew == 0 && job.Counters.ListingsUpdated == 0 {
		return
	}
	if err := c.Listings.Invalidate(ctx); err != nil {
		c.Logger.Printf("[Container] listing cache invalidation failed job=%s: %v", job.ID, err)
	}
	ws.NotifyListingsUpdated(job.ID, job.Counters.ListingsNew, job.Counters.ListingsUpdated)
}

// Shutdown stops running jobs. It is separate from Close so the HTTP server
// can drain first.
func (c *Container) Shutdown(ctx context.Context) error {
	if c == nil || c.Orchestrator == nil {
		return nil
	}
	return c.Orchestrator.Shutdown(ctx)
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if closer, ok := c.Fetcher.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
