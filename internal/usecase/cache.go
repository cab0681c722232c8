package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	SetIfNotExists(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

const (
	listingsQueryPrefix = "listings:query:"
	listingsLockPrefix  = "listings:lock:"
	listingsStatsKey    = "listings:stats"
)

type listingsCacheKeyInput struct {
	Query     string   `json:"q"`
	MinPrice  *int64   `json:"min_price"`
	MaxPrice  *int64   `json:"max_price"`
	Location  string   `json:"location"`
	Condition string   `json:"condition"`
	Keyword   string   `json:"keyword"`
	ItemType  string   `json:"item_type"`
	Tags      []string `json:"tags"`
	Brands    []string `json:"brands"`
	Sort      string   `json:"sort"`
	Desc      bool     `json:"desc"`
	Page      int      `json:"page"`
	PerPage   int      `json:"per_page"`
}

func normalizeSearchValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// normalizeSearchList lowercases and sorts so filter order does not split the
// cache.
func normalizeSearchList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, normalizeSearchValue(v))
	}
	sort.Strings(out)
	return out
}

// TagsCacheKey lives under the listings query prefix so Invalidate drops it
// together with the listing pages.
func TagsCacheKey(category string, limit int) string {
	return listingsQueryPrefix + "tags:" + category + ":" + strconv.Itoa(limit)
}

// ListingsQueryCacheKey is stable across spelling variations that yield the
// same query.
func ListingsQueryCacheKey(q ListingQuery) string {
	in := listingsCacheKeyInput{
		Query:     normalizeSearchValue(q.Query),
		MinPrice:  q.minCents,
		MaxPrice:  q.maxCents,
		Location:  normalizeSearchValue(q.Location),
		Condition: normalizeSearchValue(q.Condition),
		Keyword:   normalizeSearchValue(q.Keyword),
		ItemType:  normalizeSearchValue(q.ItemType),
		Tags:      normalizeSearchList(q.Tags),
		Brands:    normalizeSearchList(q.Brands),
		Sort:      q.Sort,
		Desc:      q.Order == "desc",
		Page:      q.Page,
		PerPage:   q.PerPage,
	}

	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return listingsQueryPrefix + hex.EncodeToString(sum[:])
}

func ListingsLockKey(queryKey string) string {
	return listingsLockPrefix + strings.TrimPrefix(queryKey, listingsQueryPrefix)
}

func ProgressCacheKey(jobID uuid.UUID) string {
	return "scraper:progress:" + jobID.String()
}
