package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/pkg/jwt"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"
	"notebook-scout/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

func newTestApp(register func(r fiber.Router)) *fiber.App {
	app := fiber.New()
	app.Use(middleware.NewErrorMiddleware(log.New(io.Discard, "", 0)).Middleware())
	register(app.Group("/api/v1"))
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string, header map[string]string) (int, envelope, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env, string(raw)
}

type fakeListings struct {
	lastQuery usecase.ListingQuery
	page      usecase.ListingPage
	err       error
	item      listing.Listing
}

func (f *fakeListings) List(_ context.Context, q usecase.ListingQuery) (usecase.ListingPage, error) {
	f.lastQuery = q
	return f.page, f.err
}

func (f *fakeListings) Get(_ context.Context, id uuid.UUID) (listing.Listing, error) {
	if id != f.item.ID {
		return listing.Listing{}, usecase.ErrNotFound
	}
	return f.item, nil
}

func (f *fakeListings) PriceHistory(context.Context, uuid.UUID) ([]listing.PriceHistoryEntry, error) {
	p := int64(49900)
	return []listing.PriceHistoryEntry{{PriceCents: &p, RecordedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}}, nil
}

func (f *fakeListings) Stats(context.Context) (repository.ListingStats, error) {
	avg := int64(45050)
	return repository.ListingStats{TotalListings: 3, AvgPriceCents: &avg}, nil
}

func (f *fakeListings) Tags(_ context.Context, category string) ([]repository.TagCount, error) {
	if category == "socket" {
		return nil, usecase.ErrInvalidInput
	}
	return []repository.TagCount{{Category: "gpu", Value: "RTX 4060", Count: 2}}, nil
}

func (f *fakeListings) PopularTags(_ context.Context, limit int) ([]repository.TagCount, error) {
	out := []repository.TagCount{{Category: "brand", Value: "Lenovo", Count: 7}, {Category: "ram", Value: "16GB RAM", Count: 5}}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeListings) TagCategories(context.Context) ([]repository.TagCategoryCount, error) {
	return []repository.TagCategoryCount{{Category: "brand", TagCount: 1, UsageCount: 7}}, nil
}

func (f *fakeListings) Invalidate(context.Context) error { return nil }

type fakeJobs struct {
	started  *usecase.StartJobInput
	startErr error
	job      scraperjob.Job
	snap     scraperjob.Progress
}

func (f *fakeJobs) Start(_ context.Context, in usecase.StartJobInput) (scraperjob.Job, error) {
	if f.startErr != nil {
		return scraperjob.Job{}, f.startErr
	}
	f.started = &in
	return f.job, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id uuid.UUID) error {
	if id != f.job.ID {
		return usecase.ErrNotFound
	}
	return nil
}

func (f *fakeJobs) Get(_ context.Context, id uuid.UUID) (scraperjob.Job, error) {
	if id != f.job.ID {
		return scraperjob.Job{}, usecase.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeJobs) List(_ context.Context, status string, page, perPage int) ([]scraperjob.Job, int, error) {
	if status == "exploded" {
		return nil, 0, usecase.ErrInvalidInput
	}
	return []scraperjob.Job{f.job}, 1, nil
}

func (f *fakeJobs) Snapshot(_ context.Context, id uuid.UUID) (scraperjob.Progress, error) {
	if id != f.job.ID {
		return scraperjob.Progress{}, usecase.ErrNotFound
	}
	return f.snap, nil
}

type fakeConfigs struct {
	cfg scraperjob.Config
}

func (f *fakeConfigs) Get(context.Context) (scraperjob.Config, error) { return f.cfg, nil }

func (f *fakeConfigs) Update(_ context.Context, c scraperjob.Config) (scraperjob.Config, error) {
	if c.PageLimit < 1 {
		return scraperjob.Config{}, usecase.ErrInvalidInput
	}
	f.cfg = c
	return c, nil
}

func (f *fakeConfigs) Categories() []scraper.Category { return scraper.Categories() }
func (f *fakeConfigs) Cities() []scraper.City         { return scraper.Cities() }

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, username, password string) (string, time.Time, error) {
	if username != "admin" || password != "correct horse" {
		return "", time.Time{}, usecase.ErrInvalidCredentials
	}
	return "good-token", time.Date(2024, 3, 12, 22, 0, 0, 0, time.UTC), nil
}

func (fakeAuth) Authorize(token string) (jwt.Claims, error) {
	if token != "good-token" {
		return jwt.Claims{}, usecase.ErrUnauthorized
	}
	return jwt.Claims{Admin: "admin", TokenType: jwt.TokenTypeAdmin}, nil
}

var bearer = map[string]string{"Authorization": "Bearer good-token"}

func guard() fiber.Handler {
	return middleware.NewAdminAuthMiddleware(fakeAuth{}).Middleware()
}

