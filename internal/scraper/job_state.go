package scraper

import (
	"sync"
	"time"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/domain/scraperjob"

	"github.com/google/uuid"
)

// seenEntry tracks one external id within a job. mu is held by whoever is
// persisting it.
type seenEntry struct {
	mu        sync.Mutex
	owner     string
	persisted bool
}

// jobState holds the counters and dedup set shared by a job's tasks.
type jobState struct {
	jobID       uuid.UUID
	run         *jobRun
	pageLimit   int
	concurrency int
	totalUnits  int
	started     time.Time

	mu        sync.Mutex
	tally     scraperjob.Counters
	unitsDone int
	skipped   int
	current   string
	seen      map[string]*seenEntry
	fatal     error
}

func newJobState(job scraperjob.Job, run *jobRun, started time.Time, totalUnits int) *jobState {
	return &jobState{
		jobID:       job.ID,
		run:         run,
		pageLimit:   job.Params.PageLimit,
		concurrency: job.Params.Concurrency,
		totalUnits:  totalUnits,
		started:     started,
		seen:        map[string]*seenEntry{},
	}
}

// claim returns the entry for id with its lock held. first is true when no
// task in this job has seen id before.
func (s *jobState) claim(id, owner string) (*seenEntry, bool) {
	s.mu.Lock()
	e, ok := s.seen[id]
	if !ok {
		e = &seenEntry{owner: owner}
		s.seen[id] = e
	}
	s.mu.Unlock()
	e.mu.Lock()
	return e, !ok
}

// record tallies one persisted candidate. ListingsFound counts distinct ids,
// so only the first sighting in the job increments it.
func (s *jobState) record(outcome listing.Outcome, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if first {
		s.tally.ListingsFound++
	}
	switch outcome {
	case listing.OutcomeInserted:
		s.tally.ListingsNew++
	case listing.OutcomeUpdated:
		s.tally.ListingsUpdated++
	}
}

func (s *jobState) pageScraped() {
	s.mu.Lock()
	s.tally.PagesScraped++
	s.mu.Unlock()
}

func (s *jobState) pageFailed() {
	s.mu.Lock()
	s.tally.PagesFailed++
	s.mu.Unlock()
}

func (s *jobState) unitDone() {
	s.mu.Lock()
	s.unitsDone++
	s.mu.Unlock()
}

func (s *jobState) unitSkipped() {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()
}

func (s *jobState) skippedUnits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

func (s *jobState) setCurrent(keyword string) {
	s.mu.Lock()
	s.current = keyword
	s.mu.Unlock()
}

// abort records the first fatal error. Other tasks stop at their next page.
func (s *jobState) abort(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.mu.Unlock()
}

func (s *jobState) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal != nil
}

func (s *jobState) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *jobState) wasStopped() bool {
	return s.run != nil && s.run.stopped()
}

func (s *jobState) counters() scraperjob.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tally
}

func (s *jobState) snapshot(now time.Time, keyword, message string) scraperjob.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keyword == "" {
		keyword = s.current
	}
	return scraperjob.Progress{
		JobID:          s.jobID,
		Status:         scraperjob.StatusRunning,
		CurrentKeyword: keyword,
		KeywordIndex:   s.unitsDone,
		TotalKeywords:  s.totalUnits,
		ListingsFound:  s.tally.ListingsFound,
		ElapsedSeconds: now.Sub(s.started).Seconds(),
		Message:        message,
		Concurrency:    s.concurrency,
		PagesScraped:   s.tally.PagesScraped,
		PagesFailed:    s.tally.PagesFailed,
		NewCount:       s.tally.ListingsNew,
		UpdatedCount:   s.tally.ListingsUpdated,
		Timestamp:      now.UTC(),
	}
}
