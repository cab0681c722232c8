package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notebook-scout/internal/app"
	"notebook-scout/internal/config"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/pkg/jwt"
	"notebook-scout/internal/usecase"
)

func main() {
	keywords := flag.String("keywords", "", "comma separated search keywords (default: stored config)")
	categories := flag.String("categories", "", "comma separated category codes (default: stored config)")
	city := flag.String("city", "", "city slug, empty for nationwide")
	pages := flag.Int("pages", 0, "pages per keyword and category, 1..50 (default: stored config)")
	concurrency := flag.Int("concurrency", 0, "parallel tasks, 1..4 (default: SCRAPER_CONCURRENCY)")
	adminToken := flag.Bool("admin-token", false, "print an admin bearer token and exit")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		h, err := usecase.HashAdminPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *adminToken {
		tok, exp, err := jwt.NewHMACService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).GenerateAdminToken(cfg.Admin.Username)
		if err != nil {
			log.Fatalf("mint admin token: %v", err)
		}
		log.Printf("admin token expires_at=%s", exp.UTC().Format(time.RFC3339))
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer func() {
		_ = c.Close()
	}()

	go c.Hub.Run(ctx)

	if err := app.Prepare(ctx, c); err != nil {
		log.Fatalf("prepare failed: %v", err)
	}

	stored, err := c.ScraperConfig.Get(ctx)
	if err != nil {
		log.Fatalf("load scraper config: %v", err)
	}
	params := scraperjob.Params{
		Keywords:    splitList(*keywords, stored.Keywords),
		Categories:  splitList(*categories, stored.Categories),
		City:        strings.TrimSpace(*city),
		PageLimit:   *pages,
		Concurrency: *concurrency,
	}
	if params.PageLimit == 0 {
		params.PageLimit = stored.PageLimit
	}
	if params.Concurrency == 0 {
		params.Concurrency = cfg.Scraper.Concurrency
	}

	job, err := c.Orchestrator.RunSync(ctx, params)
	if err != nil {
		log.Fatalf("scrape failed: %v", err)
	}

	summary := ""
	if job.ErrorSummary != nil {
		summary = *job.ErrorSummary
	}
	log.Printf(
		"scrape finished job=%s status=%s pages=%d failed=%d found=%d new=%d updated=%d errors=%q",
		job.ID, job.Status, job.Counters.PagesScraped, job.Counters.PagesFailed,
		job.Counters.ListingsFound, job.Counters.ListingsNew, job.Counters.ListingsUpdated, summary,
	)
	if job.Status == scraperjob.StatusFailed {
		log.Fatalf("job failed")
	}
}

func splitList(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
