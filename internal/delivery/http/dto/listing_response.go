package dto

import (
	"time"

	"notebook-scout/internal/domain/listing"

	"github.com/google/uuid"
)

type ListingResponse struct {
	ID              uuid.UUID     `json:"id"`
	ExternalID      string        `json:"external_id"`
	Title           string        `json:"title"`
	URL             string        `json:"url"`
	Price           *float64      `json:"price"`
	PriceNegotiable bool          `json:"price_negotiable"`
	LocationCity    *string       `json:"location_city"`
	LocationRegion  *string       `json:"location_region"`
	Condition       *string       `json:"condition"`
	Description     *string       `json:"description"`
	PostedAt        string        `json:"posted_at,omitempty"`
	ImageURL        *string       `json:"image_url"`
	ItemType        string        `json:"item_type"`
	Tags            []listing.Tag `json:"tags"`
	MatchedKeywords []string      `json:"matched_keywords"`
	FirstSeenAt     string        `json:"first_seen_at"`
	LastSeenAt      string        `json:"last_seen_at"`
}

type PriceHistoryResponse struct {
	Price      *float64 `json:"price"`
	RecordedAt string   `json:"recorded_at"`
}

func NewListingResponse(l listing.Listing) ListingResponse {
	keywords := l.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return ListingResponse{
		ID:              l.ID,
		ExternalID:      l.ExternalID,
		Title:           l.Title,
		URL:             l.URL,
		Price:           CentsToEUR(l.PriceCents),
		PriceNegotiable: l.PriceNegotiable,
		LocationCity:    l.LocationCity,
		LocationRegion:  l.LocationRegion,
		Condition:       l.Condition,
		Description:     l.Description,
		PostedAt:        formatTimePtr(l.PostedAt),
		ImageURL:        l.ImageURL,
		ItemType:        l.ItemType,
		Tags:            listing.ParseTags(l.Tags),
		MatchedKeywords: keywords,
		FirstSeenAt:     formatTime(l.FirstSeenAt),
		LastSeenAt:      formatTime(l.LastSeenAt),
	}
}

func NewListingResponses(items []listing.Listing) []ListingResponse {
	out := make([]ListingResponse, 0, len(items))
	for _, it := range items {
		out = append(out, NewListingResponse(it))
	}
	return out
}

func NewPriceHistoryResponses(entries []listing.PriceHistoryEntry) []PriceHistoryResponse {
	out := make([]PriceHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, PriceHistoryResponse{Price: CentsToEUR(e.PriceCents), RecordedAt: formatTime(e.RecordedAt)})
	}
	return out
}

func CentsToEUR(cents *int64) *float64 {
	if cents == nil {
		return nil
	}
	v := float64(*cents) / 100
	return &v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
