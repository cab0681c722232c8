package repository

import (
	"context"
	"fmt"
	"strings"

	"notebook-scout/internal/database"
	"notebook-scout/internal/domain/scraperjob"
)

// ScraperConfigColumns is the row layout of scraper_config, in insert order.
// The seeder checks the live table against it before writing defaults.
var ScraperConfigColumns = []string{
	"id", "keywords", "city", "categories", "page_limit", "update_interval_minutes", "is_active", "updated_at",
}

// ScraperConfigInsert is the insert prefix shared by Save and the seeder. The
// singleton row always has id 1 and updated_at now().
var ScraperConfigInsert = `INSERT INTO scraper_config (` + strings.Join(ScraperConfigColumns, ", ") + `)
		 VALUES (1, $1, $2, $3, $4, $5, $6, now())`

type ScraperConfigRepository interface {
	Get(ctx context.Context) (scraperjob.Config, error)
	Save(ctx context.Context, cfg scraperjob.Config) (scraperjob.Config, error)
}

type PostgresScraperConfigRepository struct {
	db database.DB
}

func NewPostgresScraperConfigRepository(db database.DB) *PostgresScraperConfigRepository {
	return &PostgresScraperConfigRepository{db: db}
}

// Get returns the stored configuration, or the defaults when the seeder has
// not run yet.
func (r *PostgresScraperConfigRepository) Get(ctx context.Context) (scraperjob.Config, error) {
	var c scraperjob.Config
	err := r.db.QueryRow(ctx,
		`SELECT keywords, city, categories, page_limit, update_interval_minutes, is_active, updated_at
		 FROM scraper_config WHERE id = 1`,
	).Scan(&c.Keywords, &c.City, &c.Categories, &c.PageLimit, &c.UpdateIntervalMinutes, &c.IsActive, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return scraperjob.DefaultConfig(), nil
		}
		return scraperjob.Config{}, fmt.Errorf("load scraper config: %w", err)
	}
	return c, nil
}

func (r *PostgresScraperConfigRepository) Save(ctx context.Context, cfg scraperjob.Config) (scraperjob.Config, error) {
	err := r.db.QueryRow(ctx,
		ScraperConfigInsert+`
		 ON CONFLICT (id) DO UPDATE SET
			keywords = EXCLUDED.keywords,
			city = EXCLUDED.city,
			categories = EXCLUDED.categories,
			page_limit = EXCLUDED.page_limit,
			update_interval_minutes = EXCLUDED.update_interval_minutes,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		keywordsOrEmpty(cfg.Keywords), cfg.City, keywordsOrEmpty(cfg.Categories),
		cfg.PageLimit, cfg.UpdateIntervalMinutes, cfg.IsActive,
	).Scan(&cfg.UpdatedAt)
	if err != nil {
		return scraperjob.Config{}, fmt.Errorf("save scraper config: %w", err)
	}
	return cfg, nil
}
