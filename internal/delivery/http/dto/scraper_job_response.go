package dto

import (
	"notebook-scout/internal/domain/scraperjob"

	"github.com/google/uuid"
)

type StartJobRequest struct {
	Keywords    []string `json:"keywords"`
	Categories  []string `json:"categories"`
	City        *string  `json:"city"`
	PageLimit   *int     `json:"page_limit"`
	Concurrency *int     `json:"concurrency"`
}

type ScraperJobResponse struct {
	ID           uuid.UUID            `json:"id"`
	Status       scraperjob.Status    `json:"status"`
	Parameters   scraperjob.Params    `json:"parameters"`
	Counters     scraperjob.Counters  `json:"counters"`
	ErrorSummary *string              `json:"error_summary"`
	Progress     *scraperjob.Progress `json:"progress,omitempty"`
	RequestedAt  string               `json:"requested_at"`
	StartedAt    string               `json:"started_at,omitempty"`
	CompletedAt  string               `json:"completed_at,omitempty"`
}

func NewScraperJobResponse(j scraperjob.Job) ScraperJobResponse {
	return ScraperJobResponse{
		ID:           j.ID,
		Status:       j.Status,
		Parameters:   j.Params,
		Counters:     j.Counters,
		ErrorSummary: j.ErrorSummary,
		Progress:     j.Progress,
		RequestedAt:  formatTime(j.RequestedAt),
		StartedAt:    formatTimePtr(j.StartedAt),
		CompletedAt:  formatTimePtr(j.CompletedAt),
	}
}

func NewScraperJobResponses(jobs []scraperjob.Job) []ScraperJobResponse {
	out := make([]ScraperJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewScraperJobResponse(j))
	}
	return out
}
