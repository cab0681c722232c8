package handler

import (
	"errors"
	"time"

	"notebook-scout/internal/delivery/http/dto"
	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/pkg/response"
	"notebook-scout/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type AdminHandler struct {
	configs usecase.ScraperConfigUsecase
	auth    usecase.AdminAuthUsecase
}

func NewAdminHandler(configs usecase.ScraperConfigUsecase, auth usecase.AdminAuthUsecase) *AdminHandler {
	return &AdminHandler{configs: configs, auth: auth}
}

// RegisterRoutes mounts the admin routes on r. Config writes run behind guard.
func (h *AdminHandler) RegisterRoutes(r fiber.Router, guard fiber.Handler) {
	if r == nil {
		return
	}
	r.Post("/auth/admin/login", h.Login)

	r.Get("/admin/config", h.GetConfig)
	r.Get("/admin/categories", h.Categories)
	r.Get("/admin/cities", h.Cities)
	r.Put("/admin/config", orPassThrough(guard), h.UpdateConfig)
}

func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(err)
	}

	token, exp, err := h.auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return mapAdminUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp.UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) GetConfig(c fiber.Ctx) error {
	cfg, err := h.configs.Get(c.Context())
	if err != nil {
		return mapAdminUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", dto.NewScraperConfigResponse(cfg))
}

func (h *AdminHandler) UpdateConfig(c fiber.Ctx) error {
	var req dto.ScraperConfigRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(err)
	}
	saved, err := h.configs.Update(c.Context(), req.ToDomain())
	if err != nil {
		return mapAdminUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "Config updated", dto.NewScraperConfigResponse(saved))
}

func (h *AdminHandler) Categories(c fiber.Ctx) error {
	return response.Success(c, fiber.StatusOK, "success", h.configs.Categories())
}

func (h *AdminHandler) Cities(c fiber.Ctx) error {
	return response.Success(c, fiber.StatusOK, "success", h.configs.Cities())
}

func mapAdminUsecaseError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	case errors.Is(err, usecase.ErrInvalidCredentials), errors.Is(err, usecase.ErrUnauthorized):
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
