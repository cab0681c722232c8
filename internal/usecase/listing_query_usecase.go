package usecase

import (
	"context"
	"errors"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"

	"github.com/google/uuid"
)

// ListingQuery holds the listings read API parameters. Prices are EUR.
type ListingQuery struct {
	Query     string
	MinPrice  *float64
	MaxPrice  *float64
	Location  string
	Condition string
	Keyword   string
	ItemType  string
	Tags      []string
	Brands    []string
	Sort      string
	Order     string
	Page      int
	PerPage   int

	minCents *int64
	maxCents *int64
}

type ListingPage struct {
	Items   []listing.Listing `json:"items"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

type ListingQueryUsecase interface {
	List(ctx context.Context, q ListingQuery) (ListingPage, error)
	Get(ctx context.Context, id uuid.UUID) (listing.Listing, error)
	PriceHistory(ctx context.Context, id uuid.UUID) ([]listing.PriceHistoryEntry, error)
	Stats(ctx context.Context) (repository.ListingStats, error)
	Tags(ctx context.Context, category string) ([]repository.TagCount, error)
	PopularTags(ctx context.Context, limit int) ([]repository.TagCount, error)
	TagCategories(ctx context.Context) ([]repository.TagCategoryCount, error)
	Invalidate(ctx context.Context) error
}

type ListingQueries struct {
	repo   repository.ListingQueryRepository
	cache  Cache
	logger *log.Logger
}

func NewListingQueryUsecase(repo repository.ListingQueryRepository, cache Cache, logger *log.Logger) *ListingQueries {
	if logger == nil {
		logger = log.Default()
	}
	return &ListingQueries{repo: repo, cache: cache, logger: logger}
}

const (
	defaultPerPage     = 20
	maxPerPage         = 100
	statsTTL           = 5 * time.Minute
	defaultPopularTags = 20
	maxPopularTags     = 50
	maxTagFilters      = 10
)

var validSorts = map[string]bool{"price": true, "posted_at": true, "last_seen_at": true, "title": true}

func normalizeListingQuery(q ListingQuery) (ListingQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}
	if q.Page < 1 || q.PerPage < 1 || q.PerPage > maxPerPage {
		return q, ErrInvalidInput
	}

	q.Sort = strings.ToLower(strings.TrimSpace(q.Sort))
	if q.Sort == "" {
		q.Sort = "last_seen_at"
	}
	if !validSorts[q.Sort] {
		return q, ErrInvalidInput
	}
	q.Order = strings.ToLower(strings.TrimSpace(q.Order))
	switch q.Order {
	case "":
		q.Order = "desc"
	case "asc", "desc":
	default:
		return q, ErrInvalidInput
	}

	q.ItemType = strings.ToLower(strings.TrimSpace(q.ItemType))
	switch q.ItemType {
	case "", listing.ItemTypeLaptop, listing.ItemTypeAccessory, listing.ItemTypeOther:
	default:
		return q, ErrInvalidInput
	}

	q.Tags = cleanList(q.Tags)
	q.Brands = cleanList(q.Brands)
	if len(q.Tags) > maxTagFilters || len(q.Brands) > maxTagFilters {
		return q, ErrInvalidInput
	}

	var err error
	if q.minCents, err = eurToCents(q.MinPrice); err != nil {
		return q, err
	}
	if q.maxCents, err = eurToCents(q.MaxPrice); err != nil {
		return q, err
	}
	if q.minCents != nil && q.maxCents != nil && *q.minCents > *q.maxCents {
		return q, ErrInvalidInput
	}
	return q, nil
}

// cleanList trims, drops empties and dedups case-insensitively, keeping the
// first spelling.
func cleanList(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range in {
		v = strings.Join(strings.Fields(v), " ")
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func eurToCents(v *float64) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil, ErrInvalidInput
	}
	c := int64(math.Round(*v * 100))
	return &c, nil
}

func (u *ListingQueries) List(ctx context.Context, q ListingQuery) (ListingPage, error) {
	q, err := normalizeListingQuery(q)
	if err != nil {
		return ListingPage{}, err
	}

	cacheKey := ListingsQueryCacheKey(q)
	lockKey := ListingsLockKey(cacheKey)

	if u.cache != nil {
		var cached ListingPage
		if hit, err := u.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			u.logger.Printf("[Listings] Cache HIT: %s", cacheKey)
			return cached, nil
		}
		u.logger.Printf("[Listings] Cache MISS: %s", cacheKey)
	}

	lockAcquired := false
	if u.cache != nil {
		ok, err := u.cache.SetIfNotExists(ctx, lockKey, "1", 30*time.Second)
		if err == nil && ok {
			lockAcquired = true
		} else if err == nil && !ok {
			// Someone else is filling this key; give them a moment.
			jitter := time.Duration(time.Now().UnixNano()%201) * time.Millisecond
			select {
			case <-ctx.Done():
				return ListingPage{}, ctx.Err()
			case <-time.After(300*time.Millisecond + jitter):
			}
			var cached ListingPage
			if hit, err := u.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
				return cached, nil
			}
			u.logger.Printf("[Listings] Lock wait fallback: %s", lockKey)
		}
	}

	items, total, err := u.repo.List(ctx, repository.ListingFilter{
		Query:     q.Query,
		MinPrice:  q.minCents,
		MaxPrice:  q.maxCents,
		Location:  q.Location,
		Condition: q.Condition,
		Keyword:   q.Keyword,
		ItemType:  q.ItemType,
		Tags:      q.Tags,
		Brands:    q.Brands,
		Sort:      q.Sort,
		Desc:      q.Order == "desc",
		Limit:     q.PerPage,
		Offset:    (q.Page - 1) * q.PerPage,
	})
	if err != nil {
		u.logger.Printf("[Listings] list error: %v", err)
		return ListingPage{}, ErrInternal
	}

	page := ListingPage{Items: items, Total: total, Page: q.Page, PerPage: q.PerPage}
	if u.cache != nil {
		_ = u.cache.SetJSON(ctx, cacheKey, page, 0)
		if lockAcquired {
			_ = u.cache.Delete(ctx, lockKey)
		}
	}
	return page, nil
}

func (u *ListingQueries) Get(ctx context.Context, id uuid.UUID) (listing.Listing, error) {
	l, err := u.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return listing.Listing{}, ErrNotFound
		}
		return listing.Listing{}, ErrInternal
	}
	return l, nil
}

func (u *ListingQueries) PriceHistory(ctx context.Context, id uuid.UUID) ([]listing.PriceHistoryEntry, error) {
	if _, err := u.Get(ctx, id); err != nil {
		return nil, err
	}
	h, err := u.repo.PriceHistory(ctx, id)
	if err != nil {
		return nil, ErrInternal
	}
	return h, nil
}

func (u *ListingQueries) Stats(ctx context.Context) (repository.ListingStats, error) {
	if u.cache != nil {
		var cached repository.ListingStats
		if hit, err := u.cache.GetJSON(ctx, listingsStatsKey, &cached); err == nil && hit {
			return cached, nil
		}
	}
	s, err := u.repo.Stats(ctx, time.Now().UTC())
	if err != nil {
		u.logger.Printf("[Listings] stats error: %v", err)
		return repository.ListingStats{}, ErrInternal
	}
	if u.cache != nil {
		_ = u.cache.SetJSON(ctx, listingsStatsKey, s, statsTTL)
	}
	return s, nil
}

// Tags lists tag usage, optionally for one category.
func (u *ListingQueries) Tags(ctx context.Context, category string) ([]repository.TagCount, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && !slices.Contains(scraper.TagCategories, category) {
		return nil, ErrInvalidInput
	}
	return u.cachedTagCounts(ctx, TagsCacheKey(category, 0), category, 0)
}

// PopularTags returns the most used tags across all categories.
func (u *ListingQueries) PopularTags(ctx context.Context, limit int) ([]repository.TagCount, error) {
	if limit == 0 {
		limit = defaultPopularTags
	}
	if limit < 1 {
		return nil, ErrInvalidInput
	}
	limit = min(limit, maxPopularTags)
	return u.cachedTagCounts(ctx, TagsCacheKey("", limit), "", limit)
}

func (u *ListingQueries) cachedTagCounts(ctx context.Context, key, category string, limit int) ([]repository.TagCount, error) {
	if u.cache != nil {
		var cached []repository.TagCount
		if hit, err := u.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}
	tags, err := u.repo.TagCounts(ctx, category, limit)
	if err != nil {
		u.logger.Printf("[Listings] tag counts error: %v", err)
		return nil, ErrInternal
	}
	if u.cache != nil {
		_ = u.cache.SetJSON(ctx, key, tags, statsTTL)
	}
	return tags, nil
}

// TagCategories reports usage per category. Categories nothing is tagged
// with yet are listed with zero counts.
func (u *ListingQueries) TagCategories(ctx context.Context) ([]repository.TagCategoryCount, error) {
	counts, err := u.repo.TagCategoryCounts(ctx)
	if err != nil {
		u.logger.Printf("[Listings] tag categories error: %v", err)
		return nil, ErrInternal
	}
	seen := make(map[string]bool, len(counts))
	for _, c := range counts {
		seen[c.Category] = true
	}
	for _, cat := range scraper.TagCategories {
		if !seen[cat] {
			counts = append(counts, repository.TagCategoryCount{Category: cat})
		}
	}
	return counts, nil
}

// Invalidate drops every cached listings response. It runs after each job.
func (u *ListingQueries) Invalidate(ctx context.Context) error {
	if u.cache == nil {
		return nil
	}
	err := u.cache.DeleteByPattern(ctx, listingsQueryPrefix+"*")
	if derr := u.cache.Delete(ctx, listingsStatsKey); err == nil {
		err = derr
	}
	if err != nil {
		return err
	}
	u.logger.Printf("[Listings] Cache invalidated")
	return nil
}
