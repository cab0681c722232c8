package ws

import (
	"context"
	"log"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const ListingsTopic = "listings"

func JobTopic(id uuid.UUID) string {
	return "job:" + id.String()
}

// FinishedJobs answers for jobs that no longer publish: it returns the final
// snapshot of a terminal job.
type FinishedJobs interface {
	FinishedSnapshot(ctx context.Context, id uuid.UUID) ([]byte, bool, error)
}

type Handler struct {
	hub      *Hub
	finished FinishedJobs
	logger   *log.Logger
}

func NewHandler(hub *Hub, finished FinishedJobs, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{hub: hub, finished: finished, logger: logger}
}

func (h *Handler) RegisterRoutes(r fiber.Router) {
	r.Get("/scraper/jobs/:id", h.HandleJobProgressWS)
	r.Get("/listings", h.HandleListingsWS)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) HandleJobProgressWS(c fiber.Ctx) error {
	if h == nil || h.hub == nil {
		return fiber.ErrServiceUnavailable
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.ErrBadRequest
	}

	var final []byte
	if h.finished != nil {
		snap, done, err := h.finished.FinishedSnapshot(c.Context(), id)
		if err != nil {
			return err
		}
		if done {
			final = snap
		}
	}

	return adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("WS upgrade error | error=%v", err)
			return
		}
		if final != nil {
			_ = conn.WriteMessage(websocket.TextMessage, final)
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
			_ = conn.Close()
			return
		}
		h.serve(conn, JobTopic(id))
	})(c)
}

func (h *Handler) HandleListingsWS(c fiber.Ctx) error {
	if h == nil || h.hub == nil {
		return fiber.ErrServiceUnavailable
	}
	return adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("WS upgrade error | error=%v", err)
			return
		}
		h.serve(conn, ListingsTopic)
	})(c)
}

func (h *Handler) serve(conn *websocket.Conn, topic string) {
	client := NewClient(h.hub, conn, topic)
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
}
