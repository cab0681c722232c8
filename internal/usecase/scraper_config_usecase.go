package usecase

import (
	"context"
	"log"
	"strings"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"
)

type ScraperConfigUsecase interface {
	Get(ctx context.Context) (scraperjob.Config, error)
	Update(ctx context.Context, cfg scraperjob.Config) (scraperjob.Config, error)
	Categories() []scraper.Category
	Cities() []scraper.City
}

type ScraperConfigs struct {
	repo   repository.ScraperConfigRepository
	logger *log.Logger
}

func NewScraperConfigUsecase(repo repository.ScraperConfigRepository, logger *log.Logger) *ScraperConfigs {
	if logger == nil {
		logger = log.Default()
	}
	return &ScraperConfigs{repo: repo, logger: logger}
}

func (u *ScraperConfigs) Get(ctx context.Context) (scraperjob.Config, error) {
	cfg, err := u.repo.Get(ctx)
	if err != nil {
		u.logger.Printf("[Config] load error: %v", err)
		return scraperjob.Config{}, ErrInternal
	}
	return cfg, nil
}

func (u *ScraperConfigs) Update(ctx context.Context, cfg scraperjob.Config) (scraperjob.Config, error) {
	cfg, err := ValidateScraperConfig(cfg)
	if err != nil {
		return scraperjob.Config{}, err
	}
	saved, err := u.repo.Save(ctx, cfg)
	if err != nil {
		u.logger.Printf("[Config] save error: %v", err)
		return scraperjob.Config{}, ErrInternal
	}
	u.logger.Printf("[Config] updated keywords=%d categories=%d page_limit=%d interval=%dm active=%t",
		len(saved.Keywords), len(saved.Categories), saved.PageLimit, saved.UpdateIntervalMinutes, saved.IsActive)
	return saved, nil
}

func (u *ScraperConfigs) Categories() []scraper.Category {
	return scraper.Categories()
}

func (u *ScraperConfigs) Cities() []scraper.City {
	return scraper.Cities()
}

// ValidateScraperConfig normalizes keywords and categories and checks bounds.
func ValidateScraperConfig(cfg scraperjob.Config) (scraperjob.Config, error) {
	cfg.Keywords = dedupe(cfg.Keywords, listing.NormalizeKeyword)
	cfg.Categories = dedupe(cfg.Categories, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
	cfg.City = strings.ToLower(strings.TrimSpace(cfg.City))

	if len(cfg.Keywords) == 0 || len(cfg.Categories) == 0 {
		return cfg, ErrInvalidInput
	}
	if cfg.PageLimit < 1 || cfg.PageLimit > scraper.MaxPageLimit {
		return cfg, ErrInvalidInput
	}
	if cfg.UpdateIntervalMinutes < 0 {
		return cfg, ErrInvalidInput
	}
	return cfg, nil
}

func dedupe(in []string, norm func(string) string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = norm(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
