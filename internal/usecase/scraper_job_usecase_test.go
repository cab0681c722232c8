package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"

	"github.com/google/uuid"
)

type fakeRunner struct {
	got       scraperjob.Params
	err       error
	cancelErr error
}

func (f *fakeRunner) Start(_ context.Context, p scraperjob.Params) (scraperjob.Job, error) {
	if f.err != nil {
		return scraperjob.Job{}, f.err
	}
	f.got = p
	return scraperjob.Job{ID: uuid.New(), Status: scraperjob.StatusPending, Params: p}, nil
}

func (f *fakeRunner) Cancel(uuid.UUID) error { return f.cancelErr }

type fakeJobRepo struct {
	repository.ScraperJobRepository
	jobs map[uuid.UUID]scraperjob.Job
}

func (f *fakeJobRepo) Get(_ context.Context, id uuid.UUID) (scraperjob.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return scraperjob.Job{}, repository.ErrScraperJobNotFound
	}
	return j, nil
}

type fakeConfigRepo struct {
	cfg   scraperjob.Config
	saved *scraperjob.Config
}

func (f *fakeConfigRepo) Get(context.Context) (scraperjob.Config, error) { return f.cfg, nil }

func (f *fakeConfigRepo) Save(_ context.Context, c scraperjob.Config) (scraperjob.Config, error) {
	c.UpdatedAt = time.Now()
	f.saved = &c
	return c, nil
}

func newJobUsecase(runner *fakeRunner, jobs *fakeJobRepo, cache Cache) *ScraperJobs {
	cfg := &fakeConfigRepo{cfg: scraperjob.DefaultConfig()}
	return NewScraperJobUsecase(runner, jobs, cfg, NewProgressRelay(nil, cache, nil), 2, nil)
}

func TestScraperJobs_StartDefaultsFromConfig(t *testing.T) {
	runner := &fakeRunner{}
	uc := newJobUsecase(runner, &fakeJobRepo{}, nil)

	pages := 3
	if _, err := uc.Start(context.Background(), StartJobInput{Keywords: []string{"thinkpad"}, PageLimit: &pages}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(runner.got.Keywords) != 1 || runner.got.Keywords[0] != "thinkpad" {
		t.Fatalf("expected request keywords, got %v", runner.got.Keywords)
	}
	if len(runner.got.Categories) != 1 || runner.got.Categories[0] != "c278" {
		t.Fatalf("expected config categories, got %v", runner.got.Categories)
	}
	if runner.got.PageLimit != 3 || runner.got.Concurrency != 2 {
		t.Fatalf("unexpected params %+v", runner.got)
	}
}

func TestScraperJobs_StartMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{scraper.ErrAlreadyRunning, ErrJobAlreadyRunning},
		{scraper.ErrInvalidParams, ErrInvalidInput},
		{errors.New("db down"), ErrInternal},
	}
	for _, tc := range cases {
		uc := newJobUsecase(&fakeRunner{err: tc.err}, &fakeJobRepo{}, nil)
		if _, err := uc.Start(context.Background(), StartJobInput{}); !errors.Is(err, tc.want) {
			t.Fatalf("%v: expected %v, got %v", tc.err, tc.want, err)
		}
	}

	uc := newJobUsecase(&fakeRunner{}, &fakeJobRepo{}, nil)
	five := 5
	if _, err := uc.Start(context.Background(), StartJobInput{Concurrency: &five}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for concurrency 5, got %v", err)
	}
}

func TestScraperJobs_Cancel(t *testing.T) {
	done := uuid.New()
	jobs := &fakeJobRepo{jobs: map[uuid.UUID]scraperjob.Job{done: {ID: done, Status: scraperjob.StatusCompleted}}}

	uc := newJobUsecase(&fakeRunner{}, jobs, nil)
	if err := uc.Cancel(context.Background(), done); err != nil {
		t.Fatalf("expected running job cancel to succeed, got %v", err)
	}

	uc = newJobUsecase(&fakeRunner{cancelErr: scraper.ErrJobNotRunning}, jobs, nil)
	if err := uc.Cancel(context.Background(), done); !errors.Is(err, ErrJobNotRunning) {
		t.Fatalf("expected ErrJobNotRunning, got %v", err)
	}
	if err := uc.Cancel(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScraperJobs_ListValidatesStatus(t *testing.T) {
	uc := newJobUsecase(&fakeRunner{}, &fakeJobRepo{}, nil)
	if _, _, err := uc.List(context.Background(), "exploded", 1, 20); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScraperJobs_SnapshotPrefersCache(t *testing.T) {
	id := uuid.New()
	started := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	summary := "2 pages failed"
	jobs := &fakeJobRepo{jobs: map[uuid.UUID]scraperjob.Job{id: {
		ID:           id,
		Status:       scraperjob.StatusCompleted,
		Params:       scraperjob.Params{Keywords: []string{"a", "b"}, Categories: []string{"c278"}},
		Counters:     scraperjob.Counters{ListingsNew: 4, ListingsUpdated: 1},
		ErrorSummary: &summary,
		StartedAt:    &started,
		CompletedAt:  &completed,
	}}}
	cache := newMemCache()
	uc := newJobUsecase(&fakeRunner{}, jobs, cache)

	p, err := uc.Snapshot(context.Background(), id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !p.Completed || p.NewCount != 4 || p.TotalKeywords != 2 || p.ElapsedSeconds != 90 || p.Error != summary {
		t.Fatalf("unexpected snapshot from row %+v", p)
	}

	uc.relay.Publish(scraperjob.Progress{JobID: id, Status: scraperjob.StatusRunning, Message: "live"})
	p, err = uc.Snapshot(context.Background(), id)
	if err != nil || p.Message != "live" {
		t.Fatalf("expected cached snapshot, got %+v %v", p, err)
	}

	b, done, err := uc.FinishedSnapshot(context.Background(), id)
	if err != nil || !done {
		t.Fatalf("expected finished snapshot, got done=%t err=%v", done, err)
	}
	var decoded scraperjob.Progress
	if err := json.Unmarshal(b, &decoded); err != nil || decoded.UpdatedCount != 1 {
		t.Fatalf("unexpected finished payload %s %v", b, err)
	}
}
