package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"notebook-scout/internal/delivery/http/dto"
	"notebook-scout/internal/delivery/http/middleware"
	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/pkg/response"
	"notebook-scout/internal/usecase"
	"notebook-scout/internal/ws"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const ssePingInterval = 30 * time.Second

type ScraperJobsHandler struct {
	uc     usecase.ScraperJobUsecase
	hub    *ws.Hub
	logger *log.Logger
}

func NewScraperJobsHandler(uc usecase.ScraperJobUsecase, hub *ws.Hub, logger *log.Logger) *ScraperJobsHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ScraperJobsHandler{uc: uc, hub: hub, logger: logger}
}

// RegisterRoutes mounts the job routes on r. Start and cancel run behind
// guard.
func (h *ScraperJobsHandler) RegisterRoutes(r fiber.Router, guard fiber.Handler) {
	if r == nil {
		return
	}
	guard = orPassThrough(guard)
	r.Post("/scraper/jobs", guard, h.HandleStart)
	r.Post("/scraper/jobs/:id/cancel", guard, h.HandleCancel)

	r.Get("/scraper/jobs", h.HandleList)
	r.Get("/scraper/jobs/:id", h.HandleGet)
	r.Get("/scraper/jobs/:id/progress", h.HandleProgressStream)
}

func (h *ScraperJobsHandler) HandleStart(c fiber.Ctx) error {
	var req dto.StartJobRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return badRequest(err)
		}
	}

	job, err := h.uc.Start(c.Context(), usecase.StartJobInput{
		Keywords:    req.Keywords,
		Categories:  req.Categories,
		City:        req.City,
		PageLimit:   req.PageLimit,
		Concurrency: req.Concurrency,
	})
	if err != nil {
		return mapScraperJobUsecaseError(err)
	}
	return response.Success(c, fiber.StatusAccepted, "Scraper job started", dto.NewScraperJobResponse(job))
}

func (h *ScraperJobsHandler) HandleCancel(c fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	if err := h.uc.Cancel(c.Context(), id); err != nil {
		return mapScraperJobUsecaseError(err)
	}
	return response.Success(c, fiber.StatusAccepted, "Cancellation requested", fiber.Map{"id": id})
}

func (h *ScraperJobsHandler) HandleList(c fiber.Ctx) error {
	page, err := parseQueryIntStrict(c, "page", 1)
	if err != nil {
		return badRequest(err)
	}
	perPage, err := parseQueryIntStrict(c, "per_page", 20)
	if err != nil {
		return badRequest(err)
	}

	jobs, total, err := h.uc.List(c.Context(), c.Query("status"), page, perPage)
	if err != nil {
		return mapScraperJobUsecaseError(err)
	}
	return response.Paginated(c, "success", dto.NewScraperJobResponses(jobs), page, perPage, total)
}

func (h *ScraperJobsHandler) HandleGet(c fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	job, err := h.uc.Get(c.Context(), id)
	if err != nil {
		return mapScraperJobUsecaseError(err)
	}
	return response.Success(c, fiber.StatusOK, "success", dto.NewScraperJobResponse(job))
}

// HandleProgressStream serves job progress as server sent events. A finished
// job gets its final snapshot and the stream ends.
func (h *ScraperJobsHandler) HandleProgressStream(c fiber.Ctx) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	snap, err := h.uc.Snapshot(c.Context(), id)
	if err != nil {
		return mapScraperJobUsecaseError(err)
	}
	initial, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	var sub *ws.Client
	if !snap.Completed && h.hub != nil {
		sub = ws.Subscribe(h.hub, ws.JobTopic(id))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		if sub != nil {
			defer sub.Close()
		}
		if err := writeSSE(w, "connected", []byte(fmt.Sprintf(`{"job_id":%q}`, id))); err != nil {
			return
		}
		if snap.Completed {
			_ = writeSSE(w, "complete", initial)
			return
		}
		if err := writeSSE(w, "progress", initial); err != nil {
			return
		}
		if sub == nil {
			return
		}
		h.pumpSSE(w, id, sub)
	})
}

func (h *ScraperJobsHandler) pumpSSE(w *bufio.Writer, id uuid.UUID, sub *ws.Client) {
	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			var p scraperjob.Progress
			if err := json.Unmarshal(msg, &p); err == nil && p.Completed {
				_ = writeSSE(w, "complete", msg)
				return
			}
			if err := writeSSE(w, "progress", msg); err != nil {
				h.logger.Printf("[SSE] client gone job=%s: %v", id, err)
				return
			}
			ping.Reset(ssePingInterval)
		case <-ping.C:
			// A job that finished before the subscription was registered
			// never reaches this client through the hub.
			if final, done := h.finalSnapshot(id); done {
				_ = writeSSE(w, "complete", final)
				return
			}
			if err := writeSSE(w, "ping", []byte(`{}`)); err != nil {
				return
			}
		}
	}
}

func (h *ScraperJobsHandler) finalSnapshot(id uuid.UUID) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := h.uc.Snapshot(ctx, id)
	if err != nil || !snap.Completed {
		return nil, false
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, false
	}
	return b, true
}

func writeSSE(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func mapScraperJobUsecaseError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	case errors.Is(err, usecase.ErrNotFound):
		return middleware.NewAppError(fiber.StatusNotFound, "Scraper job not found", nil, err)
	case errors.Is(err, usecase.ErrJobAlreadyRunning):
		return middleware.NewAppError(fiber.StatusConflict, "A scraper job is already running", nil, err)
	case errors.Is(err, usecase.ErrJobNotRunning):
		return middleware.NewAppError(fiber.StatusConflict, "Scraper job is not running", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
