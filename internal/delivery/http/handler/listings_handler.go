package handler

import (
	"errors"

	"notebook-scout/internal/delivery/http/dto"
	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/pkg/response"
	"notebook-scout/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type ListingsHandler struct {
	uc usecase.ListingQueryUsecase
}

func NewListingsHandler(uc usecase.ListingQueryUsecase) *ListingsHandler {
	return &ListingsHandler{uc: uc}
}

func (h *ListingsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/listings", h.HandleList)
	r.Get("/listings/:id", h.HandleGet)
	r.Get("/listings/:id/price-history", h.HandlePriceHistory)
	r.Get("/stats", h.HandleStats)
	r.Get("/tags", h.HandleTags)
	r.Get("/tags/popular", h.HandlePopularTags)
	r.Get("/tags/categories", h.HandleTagCategories)
}

func (h *ListingsHandler) HandleList(c fiber.Ctx) error {
	page, err := parseQueryIntStrict(c, "page", 1)
	if err != nil {
		return badRequest(err)
	}
	perPage, err := parseQueryIntStrict(c, "per_page", 20)
	if err != nil {
		return badRequest(err)
	}
	minPrice, err := parseQueryFloat(c, "min_price")
	if err != nil {
		return badRequest(err)
	}
	maxPrice, err := parseQueryFloat(c, "max_price")
	if err != nil {
		return badRequest(err)
	}

	res, err := h.uc.List(c.Context(), usecase.ListingQuery{
		Query:     c.Query("q"),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Location:  c.Query("location"),
		Condition: c.Query("condition"),
		Keyword:   c.Query("keyword"),
		ItemType:  c.Query("item_type"),
		Tags:      parseQueryList(c, "tags"),
		Brands:    parseQueryList(c, "brand"),
		Sort:      c.Query("sort"),
		Order:     c.Query("order"),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		return mapListingUsecaseError(err)
	}

	return response.Paginated(c, "success", dto.NewListingResponses(res.Items), res.Page, res.PerPage, res.Total)
}

func (h *ListingsHandler) HandleGet(c fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	l, err := h.uc.Get(c.Context(), id)
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", dto.NewListingResponse(l))
}

func (h *ListingsHandler) HandlePriceHistory(c fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	entries, err := h.uc.PriceHistory(c.Context(), id)
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", dto.NewPriceHistoryResponses(entries))
}

func (h *ListingsHandler) HandleStats(c fiber.Ctx) error {
	stats, err := h.uc.Stats(c.Context())
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", dto.NewStatsResponse(stats))
}

func (h *ListingsHandler) HandleTags(c fiber.Ctx) error {
	tags, err := h.uc.Tags(c.Context(), c.Query("category"))
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", tags)
}

func (h *ListingsHandler) HandlePopularTags(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", 0)
	if err != nil {
		return badRequest(err)
	}
	tags, err := h.uc.PopularTags(c.Context(), limit)
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", tags)
}

func (h *ListingsHandler) HandleTagCategories(c fiber.Ctx) error {
	cats, err := h.uc.TagCategories(c.Context())
	if err != nil {
		return mapListingUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", cats)
}

func mapListingUsecaseError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	case errors.Is(err, usecase.ErrNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "Listing not found", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
