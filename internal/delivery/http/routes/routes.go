package routes

import (
	"notebook-scout/internal/delivery/http/handler"
	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health      *handler.HealthHandler
	Listings    *handler.ListingsHandler
	ScraperJobs *handler.ScraperJobsHandler
	Admin       *handler.AdminHandler
	WS          *ws.Handler
	AdminAuth   *middleware.AdminAuthMiddleware
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
	r.registerWS(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")

	var guard fiber.Handler
	if r.AdminAuth != nil {
		guard = r.AdminAuth.Middleware()
	}

	if r.Listings != nil {
		r.Listings.RegisterRoutes(v1)
	}
	if r.ScraperJobs != nil {
		r.ScraperJobs.RegisterRoutes(v1, guard)
	}
	if r.Admin != nil {
		r.Admin.RegisterRoutes(v1, guard)
	}
}

func (r *Registry) registerWS(app *fiber.App) {
	if r.WS != nil {
		r.WS.RegisterRoutes(app.Group("/ws"))
	}
}
