package scraperjob

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Params struct {
	Keywords    []string `json:"keywords"`
	Categories  []string `json:"categories"`
	City        string   `json:"city"`
	PageLimit   int      `json:"page_limit"`
	Concurrency int      `json:"concurrency"`
}

type Counters struct {
	PagesScraped    int `json:"pages_scraped"`
	PagesFailed     int `json:"pages_failed"`
	ListingsFound   int `json:"listings_found"`
	ListingsNew     int `json:"listings_new"`
	ListingsUpdated int `json:"listings_updated"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	Status       Status     `json:"status"`
	Params       Params     `json:"parameters"`
	Counters     Counters   `json:"counters"`
	ErrorSummary *string    `json:"error_summary"`
	Progress     *Progress  `json:"progress,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// Progress is one snapshot pushed to subscribers and persisted as the latest
// state of a job.
type Progress struct {
	JobID          uuid.UUID `json:"job_id"`
	Status         Status    `json:"status"`
	CurrentKeyword string    `json:"current_keyword"`
	KeywordIndex   int       `json:"keyword_index"`
	TotalKeywords  int       `json:"total_keywords"`
	ListingsFound  int       `json:"listings_found"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Message        string    `json:"message"`
	Concurrency    int       `json:"concurrency"`
	PagesScraped   int       `json:"pages_scraped"`
	PagesFailed    int       `json:"pages_failed"`
	NewCount       int       `json:"new_count"`
	UpdatedCount   int       `json:"updated_count"`
	Error          string    `json:"error,omitempty"`
	Completed      bool      `json:"completed"`
	Timestamp      time.Time `json:"timestamp"`
}

// Config is the process-wide scraper configuration edited by the admin API.
type Config struct {
	Keywords              []string  `json:"keywords"`
	City                  string    `json:"city"`
	Categories            []string  `json:"categories"`
	PageLimit             int       `json:"page_limit"`
	UpdateIntervalMinutes int       `json:"update_interval_minutes"`
	IsActive              bool      `json:"is_active"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func DefaultConfig() Config {
	return Config{
		Keywords:              []string{"notebook", "laptop"},
		City:                  "",
		Categories:            []string{"c278"},
		PageLimit:             5,
		UpdateIntervalMinutes: 60,
		IsActive:              false,
	}
}
