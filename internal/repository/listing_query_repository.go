package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notebook-scout/internal/database"
	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/search"

	"github.com/google/uuid"
)

// ListingFilter narrows the listings read API. Prices are in cents.
type ListingFilter struct {
	Query     string
	MinPrice  *int64
	MaxPrice  *int64
	Location  string
	Condition string
	Keyword   string
	ItemType  string
	Tags      []string // each must match a stored tag value as a substring
	Brands    []string // any brand tag may match
	Sort      string
	Desc      bool
	Limit     int
	Offset    int
}

// TagCount is one distinct tag with the number of listings carrying it.
type TagCount struct {
	Category string `json:"category"`
	Value    string `json:"value"`
	Count    int    `json:"count"`
}

type TagCategoryCount struct {
	Category   string `json:"category"`
	TagCount   int    `json:"tag_count"`
	UsageCount int    `json:"usage_count"`
}

type ListingStats struct {
	TotalListings     int            `json:"total_listings"`
	WithPrice         int            `json:"with_price"`
	AvgPriceCents     *int64         `json:"avg_price_cents"`
	MinPriceCents     *int64         `json:"min_price_cents"`
	MaxPriceCents     *int64         `json:"max_price_cents"`
	ByItemType        map[string]int `json:"by_item_type"`
	PriceChanges      int            `json:"price_changes"`
	LastSeenAt        *time.Time     `json:"last_seen_at"`
	ListingsLast24h   int            `json:"listings_last_24h"`
	DistinctLocations int            `json:"distinct_locations"`
}

type ListingQueryRepository interface {
	List(ctx context.Context, f ListingFilter) ([]listing.Listing, int, error)
	FindByID(ctx context.Context, id uuid.UUID) (listing.Listing, error)
	PriceHistory(ctx context.Context, listingID uuid.UUID) ([]listing.PriceHistoryEntry, error)
	Stats(ctx context.Context, now time.Time) (ListingStats, error)
	TagCounts(ctx context.Context, category string, limit int) ([]TagCount, error)
	TagCategoryCounts(ctx context.Context) ([]TagCategoryCount, error)
}

type PostgresListingQueryRepository struct {
	db database.DB
}

func NewPostgresListingQueryRepository(db database.DB) *PostgresListingQueryRepository {
	return &PostgresListingQueryRepository{db: db}
}

var listingSortColumns = map[string]string{
	"price":        "price_cents",
	"posted_at":    "posted_at",
	"last_seen_at": "last_seen_at",
	"title":        "title",
}

func buildListingWhere(f ListingFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if terms := search.Expand(f.Query); len(terms) > 0 {
		patterns := make([]string, 0, len(terms))
		for _, t := range terms {
			patterns = append(patterns, "%"+t+"%")
		}
		args = append(args, patterns)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE ANY($%d) OR COALESCE(description, '') ILIKE ANY($%d))", n, n))
	}
	if f.MinPrice != nil {
		add("price_cents >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price_cents <= $%d", *f.MaxPrice)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		args = append(args, "%"+loc+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(location_city ILIKE $%d OR location_region ILIKE $%d)", n, n))
	}
	if c := strings.TrimSpace(f.Condition); c != "" {
		add("LOWER(condition) = LOWER($%d)", c)
	}
	if k := listing.NormalizeKeyword(f.Keyword); k != "" {
		add("$%d = ANY(matched_keywords)", k)
	}
	if t := strings.TrimSpace(f.ItemType); t != "" {
		add("item_type = $%d", t)
	}
	for _, tag := range f.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			add("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE substr(t, strpos(t, ':') + 1) ILIKE $%d)", "%"+tag+"%")
		}
	}
	var brands []string
	for _, b := range f.Brands {
		if b = strings.TrimSpace(b); b != "" {
			brands = append(brands, "brand:%"+b+"%")
		}
	}
	if len(brands) > 0 {
		add("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE ANY($%d))", brands)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresListingQueryRepository) List(ctx context.Context, f ListingFilter) ([]listing.Listing, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where, args := buildListingWhere(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM listings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	col, ok := listingSortColumns[f.Sort]
	if !ok {
		col = "last_seen_at"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM listings%s ORDER BY %s %s NULLS LAST, id ASC LIMIT $%d OFFSET $%d`,
		listingColumns, where, col, dir, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	out := make([]listing.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresListingQueryRepository) FindByID(ctx context.Context, id uuid.UUID) (listing.Listing, error) {
	l, err := scanListing(r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return listing.Listing{}, ErrListingNotFound
		}
		return listing.Listing{}, err
	}
	return l, nil
}

func (r *PostgresListingQueryRepository) PriceHistory(ctx context.Context, listingID uuid.UUID) ([]listing.PriceHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, listing_id, price_cents, recorded_at
		 FROM price_history
		 WHERE listing_id = $1
		 ORDER BY recorded_at ASC, id ASC`,
		listingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]listing.PriceHistoryEntry, 0)
	for rows.Next() {
		var e listing.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ListingID, &e.PriceCents, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresListingQueryRepository) Stats(ctx context.Context, now time.Time) (ListingStats, error) {
	var s ListingStats
	var avg *float64
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(1),
		        COUNT(price_cents),
		        AVG(price_cents)::float8,
		        MIN(price_cents),
		        MAX(price_cents),
		        MAX(last_seen_at),
		        COUNT(1) FILTER (WHERE first_seen_at >= $1),
		        COUNT(DISTINCT location_city)
		 FROM listings`,
		now.Add(-24*time.Hour),
	)
	if err := row.Scan(&s.TotalListings, &s.WithPrice, &avg, &s.MinPriceCents, &s.MaxPriceCents,
		&s.LastSeenAt, &s.ListingsLast24h, &s.DistinctLocations); err != nil {
		return ListingStats{}, fmt.Errorf("listing stats: %w", err)
	}
	if avg != nil {
		v := int64(*avg + 0.5)
		s.AvgPriceCents = &v
	}

	// Every listing has exactly one initial entry; the rest are changes.
	row = r.db.QueryRow(ctx, `SELECT GREATEST(COUNT(1) - (SELECT COUNT(1) FROM listings), 0) FROM price_history`)
	if err := row.Scan(&s.PriceChanges); err != nil {
		return ListingStats{}, fmt.Errorf("price change count: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT item_type, COUNT(1) FROM listings GROUP BY item_type`)
	if err != nil {
		return ListingStats{}, err
	}
	defer rows.Close()

	s.ByItemType = map[string]int{}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return ListingStats{}, err
		}
		s.ByItemType[t] = c
	}
	if err := rows.Err(); err != nil {
		return ListingStats{}, err
	}
	return s, nil
}

// TagCounts lists distinct tags by usage, optionally within one category.
// limit <= 0 returns all of them.
func (r *PostgresListingQueryRepository) TagCounts(ctx context.Context, category string, limit int) ([]TagCount, error) {
	query := `SELECT split_part(t, ':', 1) AS category, substr(t, strpos(t, ':') + 1) AS value, COUNT(1)
		 FROM listings, unnest(tags) AS t
		 WHERE ($1 = '' OR split_part(t, ':', 1) = $1)
		 GROUP BY 1, 2
		 ORDER BY 3 DESC, 1, 2`
	args := []any{strings.TrimSpace(category)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tag counts: %w", err)
	}
	defer rows.Close()

	out := make([]TagCount, 0)
	for rows.Next() {
		var c TagCount
		if err := rows.Scan(&c.Category, &c.Value, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresListingQueryRepository) TagCategoryCounts(ctx context.Context) ([]TagCategoryCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT split_part(t, ':', 1), COUNT(DISTINCT t), COUNT(1)
		 FROM listings, unnest(tags) AS t
		 GROUP BY 1
		 ORDER BY 3 DESC, 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("tag categories: %w", err)
	}
	defer rows.Close()

	out := make([]TagCategoryCount, 0)
	for rows.Next() {
		var c TagCategoryCount
		if err := rows.Scan(&c.Category, &c.TagCount, &c.UsageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
