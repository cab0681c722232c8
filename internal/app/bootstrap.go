package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notebook-scout/internal/config"
	"notebook-scout/internal/database/migration"
	"notebook-scout/internal/database/seeder"
	"notebook-scout/internal/delivery/http/handler"
	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/delivery/http/routes"
	"notebook-scout/internal/ws"
	"notebook-scout/migrations"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName: c.Config.App.AppName,
	})

	registerGlobalMiddleware(f, c)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

// Bootstrap builds the container, prepares the database and the HTTP app.
// The returned cleanup closes every connection.
func Bootstrap(ctx context.Context, cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := Prepare(ctx, c); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

// Prepare applies migrations, seeds defaults and fails jobs orphaned by a
// previous process.
func Prepare(ctx context.Context, c *Container) error {
	migCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r := migration.Runner{Dir: c.Config.Scraper.MigrationsDir, FS: migrations.FS, Logger: c.Logger}
	if err := r.Run(migCtx, c.DB.SQLDB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := (seeder.Runner{Seeders: seeder.Defaults(), Logger: c.Logger}).Run(migCtx, c.DB); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	n, err := c.Jobs.MarkStaleRunning(migCtx, "interrupted by restart", time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if n > 0 {
		c.Logger.Printf("[Bootstrap] marked stale jobs failed count=%d", n)
	}
	return nil
}

func registerGlobalMiddleware(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	accessMw := middleware.NewAccessLogMiddleware(c.Logger)
	errMw := middleware.NewErrorMiddleware(c.Logger)
	app.Use(accessMw.Middleware())
	app.Use(errMw.Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	reg := routes.Registry{
		Health:      handler.NewHealthHandler(c.DB, c.Cache),
		Listings:    handler.NewListingsHandler(c.Listings),
		ScraperJobs: handler.NewScraperJobsHandler(c.ScraperJobs, c.Hub, c.Logger),
		Admin:       handler.NewAdminHandler(c.ScraperConfig, c.AdminAuth),
		WS:          ws.NewHandler(c.Hub, c.ScraperJobs, c.Logger),
		AdminAuth:   middleware.NewAdminAuthMiddleware(c.AdminAuth),
	}
	reg.Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
