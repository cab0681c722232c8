package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ListingsUpdatedEvent struct {
	Type            string `json:"type"`
	JobID           string `json:"job_id"`
	ListingsNew     int    `json:"listings_new"`
	ListingsUpdated int    `json:"listings_updated"`
	Timestamp       string `json:"timestamp"`
}

var defaultHub atomic.Pointer[Hub]

func SetDefaultHub(h *Hub) {
	defaultHub.Store(h)
}

// NotifyListingsUpdated tells listings subscribers that a job changed data.
// Jobs that inserted and updated nothing stay silent.
func NotifyListingsUpdated(jobID uuid.UUID, inserted, updated int) {
	h := defaultHub.Load()
	if h == nil {
		return
	}
	if inserted == 0 && updated == 0 {
		return
	}

	evt := ListingsUpdatedEvent{
		Type:            "listings_updated",
		JobID:           jobID.String(),
		ListingsNew:     inserted,
		ListingsUpdated: updated,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.Broadcast(ListingsTopic, b)
}
