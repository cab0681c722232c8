package dto

import "notebook-scout/internal/domain/scraperjob"

type ScraperConfigRequest struct {
	Keywords              []string `json:"keywords"`
	City                  string   `json:"city"`
	Categories            []string `json:"categories"`
	PageLimit             int      `json:"page_limit"`
	UpdateIntervalMinutes int      `json:"update_interval_minutes"`
	IsActive              bool     `json:"is_active"`
}

func (r ScraperConfigRequest) ToDomain() scraperjob.Config {
	return scraperjob.Config{
		Keywords:              r.Keywords,
		City:                  r.City,
		Categories:            r.Categories,
		PageLimit:             r.PageLimit,
		UpdateIntervalMinutes: r.UpdateIntervalMinutes,
		IsActive:              r.IsActive,
	}
}

type ScraperConfigResponse struct {
	Keywords              []string `json:"keywords"`
	City                  string   `json:"city"`
	Categories            []string `json:"categories"`
	PageLimit             int      `json:"page_limit"`
	UpdateIntervalMinutes int      `json:"update_interval_minutes"`
	IsActive              bool     `json:"is_active"`
	UpdatedAt             string   `json:"updated_at,omitempty"`
}

func NewScraperConfigResponse(c scraperjob.Config) ScraperConfigResponse {
	return ScraperConfigResponse{
		Keywords:              c.Keywords,
		City:                  c.City,
		Categories:            c.Categories,
		PageLimit:             c.PageLimit,
		UpdateIntervalMinutes: c.UpdateIntervalMinutes,
		IsActive:              c.IsActive,
		UpdatedAt:             formatTime(c.UpdatedAt),
	}
}

type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}
