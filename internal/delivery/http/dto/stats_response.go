package dto

import "notebook-scout/internal/repository"

type StatsResponse struct {
	TotalListings     int            `json:"total_listings"`
	WithPrice         int            `json:"with_price"`
	AvgPrice          *float64       `json:"avg_price"`
	MinPrice          *float64       `json:"min_price"`
	MaxPrice          *float64       `json:"max_price"`
	ByItemType        map[string]int `json:"by_item_type"`
	PriceChanges      int            `json:"price_changes"`
	ListingsLast24h   int            `json:"listings_last_24h"`
	DistinctLocations int            `json:"distinct_locations"`
	LastSeenAt        string         `json:"last_seen_at,omitempty"`
}

func NewStatsResponse(s repository.ListingStats) StatsResponse {
	byType := s.ByItemType
	if byType == nil {
		byType = map[string]int{}
	}
	return StatsResponse{
		TotalListings:     s.TotalListings,
		WithPrice:         s.WithPrice,
		AvgPrice:          CentsToEUR(s.AvgPriceCents),
		MinPrice:          CentsToEUR(s.MinPriceCents),
		MaxPrice:          CentsToEUR(s.MaxPriceCents),
		ByItemType:        byType,
		PriceChanges:      s.PriceChanges,
		ListingsLast24h:   s.ListingsLast24h,
		DistinctLocations: s.DistinctLocations,
		LastSeenAt:        formatTimePtr(s.LastSeenAt),
	}
}
