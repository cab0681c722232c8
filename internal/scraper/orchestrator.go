package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/domain/scraperjob"

	"github.com/google/uuid"
)

const (
	MaxPageLimit   = 50
	MaxConcurrency = 4

	// Pages in a row without a listing unseen in this job before a task stops.
	staleStreakLimit = 2
)

// Reconciler persists extracted candidates.
type Reconciler interface {
	Reconcile(ctx context.Context, c listing.Candidate, keyword string) (listing.Outcome, error)
	MergeKeywords(ctx context.Context, externalID string, keywords ...string) error
}

// JobStore records the ScraperJob lifecycle.
type JobStore interface {
	Create(ctx context.Context, job scraperjob.Job) error
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SaveProgress(ctx context.Context, id uuid.UUID, counters scraperjob.Counters, p scraperjob.Progress) error
	Finish(ctx context.Context, job scraperjob.Job) error
}

type ProgressPublisher interface {
	Publish(p scraperjob.Progress)
}

type RobotsChecker interface {
	IsAllowed(ctx context.Context, host, path string) bool
}

type OrchestratorDeps struct {
	Loader     *PageLoader
	Robots     RobotsChecker
	Reconciler Reconciler
	Jobs       JobStore
	Publisher  ProgressPublisher
	Lock       RunLock
	BaseURL    string
	Logger     *log.Logger
	// OnFinish runs after a job reached its terminal state.
	OnFinish func(ctx context.Context, job scraperjob.Job)
}

// Orchestrator expands job requests into keyword x category tasks and runs
// them on a bounded worker pool.
type Orchestrator struct {
	deps   OrchestratorDeps
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	running map[uuid.UUID]*jobRun
	wg      sync.WaitGroup
}

type jobRun struct {
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func (r *jobRun) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *jobRun) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Lock == nil {
		deps.Lock = NewMemoryRunLock()
	}
	return &Orchestrator{
		deps:    deps,
		logger:  deps.Logger,
		now:     time.Now,
		running: map[uuid.UUID]*jobRun{},
	}
}

// NormalizeParams dedupes keywords and categories and validates limits.
func NormalizeParams(p scraperjob.Params) (scraperjob.Params, error) {
	out := scraperjob.Params{
		City:        strings.ToLower(strings.TrimSpace(p.City)),
		PageLimit:   p.PageLimit,
		Concurrency: p.Concurrency,
	}
	seen := map[string]struct{}{}
	for _, k := range p.Keywords {
		k = listing.NormalizeKeyword(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.Keywords = append(out.Keywords, k)
	}
	seen = map[string]struct{}{}
	for _, c := range p.Categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out.Categories = append(out.Categories, c)
	}

	if len(out.Keywords) == 0 {
		return out, fmt.Errorf("%w: at least one keyword required", ErrInvalidParams)
	}
	if len(out.Categories) == 0 {
		return out, fmt.Errorf("%w: at least one category required", ErrInvalidParams)
	}
	if out.PageLimit < 1 || out.PageLimit > MaxPageLimit {
		return out, fmt.Errorf("%w: page_limit must be between 1 and %d", ErrInvalidParams, MaxPageLimit)
	}
	if out.Concurrency < 1 {
		out.Concurrency = 1
	}
	if out.Concurrency > MaxConcurrency {
		out.Concurrency = MaxConcurrency
	}
	return out, nil
}

func (o *Orchestrator) scope() string {
	if u, err := url.Parse(o.deps.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "default"
}

// Start claims the scraper scope, records a pending job and runs it in the
// background. A busy scope yields ErrAlreadyRunning and no job record.
func (o *Orchestrator) Start(ctx context.Context, params scraperjob.Params) (scraperjob.Job, error) {
	job, release, err := o.prepare(ctx, params)
	if err != nil {
		return scraperjob.Job{}, err
	}

	run := o.track(job.ID)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer release()
		o.execute(run, job)
	}()
	return job, nil
}

// RunSync runs a job on the calling goroutine and returns its terminal state.
func (o *Orchestrator) RunSync(ctx context.Context, params scraperjob.Params) (scraperjob.Job, error) {
	job, release, err := o.prepare(ctx, params)
	if err != nil {
		return scraperjob.Job{}, err
	}
	defer release()

	run := o.track(job.ID)
	stop := context.AfterFunc(ctx, run.requestStop)
	defer stop()
	return o.execute(run, job), nil
}

func (o *Orchestrator) prepare(ctx context.Context, params scraperjob.Params) (scraperjob.Job, func(), error) {
	params, err := NormalizeParams(params)
	if err != nil {
		return scraperjob.Job{}, nil, err
	}

	release, err := o.deps.Lock.Acquire(ctx, o.scope())
	if err != nil {
		return scraperjob.Job{}, nil, err
	}

	job := scraperjob.Job{
		ID:          uuid.New(),
		Status:      scraperjob.StatusPending,
		Params:      params,
		RequestedAt: o.now().UTC(),
	}
	if err := o.deps.Jobs.Create(ctx, job); err != nil {
		release()
		return scraperjob.Job{}, nil, fmt.Errorf("create scraper job: %w", err)
	}
	o.logger.Printf("scraper_job id=%s step=create status=pending keywords=%q categories=%q city=%q pages=%d concurrency=%d",
		job.ID, params.Keywords, params.Categories, params.City, params.PageLimit, params.Concurrency)
	return job, release, nil
}

func (o *Orchestrator) track(id uuid.UUID) *jobRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := &jobRun{stop: make(chan struct{})}
	o.running[id] = r
	return r
}

// Cancel asks a running job to stop after its in-flight pages finish.
func (o *Orchestrator) Cancel(id uuid.UUID) error {
	o.mu.Lock()
	r, ok := o.running[id]
	o.mu.Unlock()
	if !ok {
		return ErrJobNotRunning
	}
	r.requestStop()
	o.logger.Printf("scraper_job id=%s step=cancel status=requested", id)
	return nil
}

// Running lists job ids executing in this process.
func (o *Orchestrator) Running() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]uuid.UUID, 0, len(o.running))
	for id := range o.running {
		out = append(out, id)
	}
	return out
}

// Shutdown stops every job cooperatively and waits for them. When ctx ends
// first, in-flight fetches are aborted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	runs := make([]*jobRun, 0, len(o.running))
	for _, r := range o.running {
		runs = append(runs, r)
	}
	o.mu.Unlock()
	for _, r := range runs {
		r.requestStop()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.mu.Lock()
		for _, r := range o.running {
			if r.cancel != nil {
				r.cancel()
			}
		}
		o.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

type unit struct {
	key       string
	index     int
	keyword   string
	category  string
	searchURL string
}

func (o *Orchestrator) execute(run *jobRun, job scraperjob.Job) scraperjob.Job {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.mu.Lock()
	run.cancel = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, job.ID)
		o.mu.Unlock()
	}()

	started := o.now().UTC()
	job.Status = scraperjob.StatusRunning
	job.StartedAt = &started
	if err := o.deps.Jobs.MarkRunning(runCtx, job.ID, started); err != nil {
		return o.finish(job, newJobState(job, run, started, 0), fmt.Errorf("mark running: %w", err))
	}

	units := o.expand(job)
	st := newJobState(job, run, started, len(units))
	o.publish(st.snapshot(o.now(), "", "Starting scraper..."))

	pool := NewWorkerPool(job.Params.Concurrency, len(units))
	for _, u := range units {
		pool.Submit(Task{Key: u.key, Run: func(ctx context.Context) error {
			return o.runUnit(ctx, run, st, u)
		}})
	}
	pool.Close()

	for res := range pool.Run(runCtx) {
		st.unitDone()
		msg := "Finished " + res.Key
		if res.Err != nil && !errors.Is(res.Err, ErrJobCancelled) {
			msg = fmt.Sprintf("Task %s ended: %v", res.Key, res.Err)
		}
		p := st.snapshot(o.now(), "", msg)
		o.publish(p)
		o.saveProgress(runCtx, job.ID, st, p)
	}

	return o.finish(job, st, st.fatalErr())
}

func (o *Orchestrator) expand(job scraperjob.Job) []unit {
	units := make([]unit, 0, len(job.Params.Keywords)*len(job.Params.Categories))
	for _, kw := range job.Params.Keywords {
		for _, cat := range job.Params.Categories {
			key := kw + "@" + cat
			u, err := SearchURL(o.deps.BaseURL, kw, job.Params.City, cat)
			if err != nil {
				o.logger.Printf("scraper_job id=%s step=expand task=%q status=skipped err=%v", job.ID, key, err)
				continue
			}
			units = append(units, unit{key: key, index: len(units), keyword: kw, category: cat, searchURL: u})
		}
	}
	return units
}

func (o *Orchestrator) runUnit(ctx context.Context, run *jobRun, st *jobState, u unit) error {
	if parsed, err := url.Parse(u.searchURL); err == nil && o.deps.Robots != nil {
		if !o.deps.Robots.IsAllowed(ctx, parsed.Host, parsed.RequestURI()) {
			st.unitSkipped()
			o.logger.Printf("scraper_job id=%s task=%q status=skipped reason=robots", st.jobID, u.key)
			return fmt.Errorf("%s: %w", u.key, ErrDisallowed)
		}
	}

	expectResults := false
	staleStreak := 0
	for page := 1; page <= st.pageLimit; page++ {
		if run.stopped() || st.aborted() {
			return ErrJobCancelled
		}
		st.setCurrent(u.keyword)

		pageURL := PageURL(u.searchURL, page)
		res, err := o.deps.Loader.Load(ctx, pageURL, expectResults)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			st.pageFailed()
			o.logger.Printf("scraper_job id=%s task=%q page=%d status=page_failed attempts=%d err=%v", st.jobID, u.key, page, res.Attempts, err)
			continue
		}
		st.pageScraped()

		ex := res.Extraction
		if ex.Cards == 0 {
			o.logger.Printf("scraper_job id=%s task=%q page=%d status=end_of_results", st.jobID, u.key, page)
			break
		}

		fresh, err := o.persistPage(ctx, st, u, ex.Listings)
		if err != nil {
			st.abort(err)
			return err
		}
		o.logger.Printf("scraper_job id=%s task=%q page=%d status=ok cards=%d listings=%d skipped=%d degraded_fields=%d fresh=%d",
			st.jobID, u.key, page, ex.Cards, len(ex.Listings), len(ex.Issues), ex.DegradedFields, fresh)

		p := st.snapshot(o.now(), u.keyword, fmt.Sprintf("Scraped %s page %d", u.key, page))
		o.publish(p)
		o.saveProgress(ctx, st.jobID, st, p)

		expectResults = true
		if fresh == 0 {
			staleStreak++
			if staleStreak >= staleStreakLimit {
				o.logger.Printf("scraper_job id=%s task=%q page=%d status=stop reason=no_new_ids", st.jobID, u.key, page)
				break
			}
		} else {
			staleStreak = 0
		}
	}
	return nil
}

// persistPage reconciles a page's candidates. The first task to see an id in
// this job reconciles it; later tasks only add their keyword.
func (o *Orchestrator) persistPage(ctx context.Context, st *jobState, u unit, cands []listing.Candidate) (int, error) {
	fresh := 0
	for _, c := range cands {
		entry, first := st.claim(c.ExternalID, u.key)
		if first {
			fresh++
		}

		var outcome listing.Outcome
		var err error
		if !first && entry.owner != u.key && entry.persisted {
			err = o.deps.Reconciler.MergeKeywords(ctx, c.ExternalID, u.keyword)
		} else {
			outcome, err = o.deps.Reconciler.Reconcile(ctx, c, u.keyword)
			if err == nil {
				entry.persisted = true
			}
		}
		entry.mu.Unlock()

		if err != nil {
			return fresh, fmt.Errorf("persist listing %s: %w", c.ExternalID, err)
		}
		st.record(outcome, first)
	}
	return fresh, nil
}

func (o *Orchestrator) finish(job scraperjob.Job, st *jobState, fatal error) scraperjob.Job {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	completed := o.now().UTC()
	job.CompletedAt = &completed
	job.Counters = st.counters()

	var summary string
	switch {
	case fatal != nil:
		job.Status = scraperjob.StatusFailed
		summary = fatal.Error()
	case st.wasStopped():
		job.Status = scraperjob.StatusCancelled
		summary = "cancelled before completion"
	case job.Counters.PagesScraped == 0:
		job.Status = scraperjob.StatusFailed
		summary = fmt.Sprintf("no pages scraped (%d failed, %d tasks skipped)", job.Counters.PagesFailed, st.skippedUnits())
	default:
		job.Status = scraperjob.StatusCompleted
		if job.Counters.PagesFailed > 0 {
			summary = fmt.Sprintf("%d pages failed", job.Counters.PagesFailed)
		}
	}
	if summary != "" {
		job.ErrorSummary = &summary
	}

	msg := fmt.Sprintf("Completed: %d new, %d updated", job.Counters.ListingsNew, job.Counters.ListingsUpdated)
	if job.Status != scraperjob.StatusCompleted {
		msg = fmt.Sprintf("Job %s: %s", job.Status, summary)
	}
	p := st.snapshot(o.now(), "", msg)
	p.Status = job.Status
	p.Completed = true
	if job.Status != scraperjob.StatusCompleted {
		p.Error = summary
	}
	job.Progress = &p

	if err := o.deps.Jobs.Finish(ctx, job); err != nil {
		o.logger.Printf("scraper_job id=%s step=finish status=error err=%v", job.ID, err)
	}
	o.publish(p)
	o.logger.Printf("scraper_job id=%s step=finish status=%s pages=%d failed_pages=%d found=%d new=%d updated=%d",
		job.ID, job.Status, job.Counters.PagesScraped, job.Counters.PagesFailed, job.Counters.ListingsFound, job.Counters.ListingsNew, job.Counters.ListingsUpdated)

	if o.deps.OnFinish != nil {
		o.deps.OnFinish(ctx, job)
	}
	return job
}

func (o *Orchestrator) publish(p scraperjob.Progress) {
	if o.deps.Publisher != nil {
		o.deps.Publisher.Publish(p)
	}
}

func (o *Orchestrator) saveProgress(ctx context.Context, id uuid.UUID, st *jobState, p scraperjob.Progress) {
	if err := o.deps.Jobs.SaveProgress(ctx, id, st.counters(), p); err != nil {
		o.logger.Printf("scraper_job id=%s step=progress status=error err=%v", id, err)
	}
}
