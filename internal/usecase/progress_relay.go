package usecase

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"notebook-scout/internal/domain/scraperjob"
	"notebook-scout/internal/ws"

	"github.com/google/uuid"
)

const progressTTL = 24 * time.Hour

type progressHub interface {
	Broadcast(topic string, message []byte)
	BroadcastFinal(topic string, message []byte)
}

// ProgressRelay forwards orchestrator snapshots to job subscribers and keeps
// the latest one in the cache for readers on other processes.
type ProgressRelay struct {
	hub    progressHub
	cache  Cache
	logger *log.Logger
}

func NewProgressRelay(hub progressHub, cache Cache, logger *log.Logger) *ProgressRelay {
	if logger == nil {
		logger = log.Default()
	}
	return &ProgressRelay{hub: hub, cache: cache, logger: logger}
}

func (r *ProgressRelay) Publish(p scraperjob.Progress) {
	b, err := json.Marshal(p)
	if err != nil {
		r.logger.Printf("[Progress] encode error job=%s err=%v", p.JobID, err)
		return
	}
	if r.hub != nil {
		topic := ws.JobTopic(p.JobID)
		if p.Completed {
			r.hub.BroadcastFinal(topic, b)
		} else {
			r.hub.Broadcast(topic, b)
		}
	}
	if r.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.cache.SetJSON(ctx, ProgressCacheKey(p.JobID), p, progressTTL)
	}
}

// Latest returns the most recent cached snapshot of a job.
func (r *ProgressRelay) Latest(ctx context.Context, id uuid.UUID) (scraperjob.Progress, bool) {
	if r == nil || r.cache == nil {
		return scraperjob.Progress{}, false
	}
	var p scraperjob.Progress
	hit, err := r.cache.GetJSON(ctx, ProgressCacheKey(id), &p)
	if err != nil || !hit {
		return scraperjob.Progress{}, false
	}
	return p, true
}
