package seeder

import (
	"context"

	"notebook-scout/internal/database"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/repository"
)

// ScraperConfigSeeder inserts the default scraper configuration row. An
// existing row is left untouched so admin edits survive restarts.
type ScraperConfigSeeder struct{}

func (ScraperConfigSeeder) Name() string { return "scraper_config" }

func (ScraperConfigSeeder) Schema() TableSchema {
	return TableSchema{Table: "scraper_config", Columns: repository.ScraperConfigColumns}
}

func (ScraperConfigSeeder) Run(ctx context.Context, db database.DB) error {
	d := scraperjob.DefaultConfig()
	_, err := db.Exec(
		ctx,
		repository.ScraperConfigInsert+`
		 ON CONFLICT (id) DO NOTHING`,
		d.Keywords,
		d.City,
		d.Categories,
		d.PageLimit,
		d.UpdateIntervalMinutes,
		d.IsActive,
	)
	return err
}
