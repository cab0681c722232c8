package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notebook-scout/internal/database"
	"notebook-scout/internal/database/postgres"
	"notebook-scout/internal/domain/listing"

	"github.com/jackc/pgx/v5"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingExists is returned by Insert when another writer inserted the
	// same external id first.
	ErrListingExists = errors.New("listing already exists")
)

// ListingRepository is the write side used by the reconciler. Insert and
// Update are atomic per listing: the row and its price history entry commit
// together.
type ListingRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (listing.Listing, error)
	Insert(ctx context.Context, l listing.Listing, initial listing.PriceHistoryEntry) error
	Update(ctx context.Context, l listing.Listing, change *listing.PriceHistoryEntry) error
	MergeKeywords(ctx context.Context, externalID string, keywords []string) error
}

type PostgresListingRepository struct {
	db database.DB
}

func NewPostgresListingRepository(db database.DB) *PostgresListingRepository {
	return &PostgresListingRepository{db: db}
}

const listingColumns = `id, external_id, title, url, price_cents, price_negotiable,
	location_city, location_region, condition, description, posted_at, image_url,
	item_type, matched_keywords, raw_source_hash, first_seen_at, last_seen_at, tags`

func scanListing(row database.Row) (listing.Listing, error) {
	var l listing.Listing
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Title, &l.URL, &l.PriceCents, &l.PriceNegotiable,
		&l.LocationCity, &l.LocationRegion, &l.Condition, &l.Description, &l.PostedAt, &l.ImageURL,
		&l.ItemType, &l.MatchedKeywords, &l.RawSourceHash, &l.FirstSeenAt, &l.LastSeenAt, &l.Tags,
	)
	return l, err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func (r *PostgresListingRepository) FindByExternalID(ctx context.Context, externalID string) (listing.Listing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID)
	l, err := scanListing(row)
	if err != nil {
		if isNoRows(err) {
			return listing.Listing{}, ErrListingNotFound
		}
		return listing.Listing{}, err
	}
	return l, nil
}

func (r *PostgresListingRepository) Insert(ctx context.Context, l listing.Listing, initial listing.PriceHistoryEntry) error {
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO listings (`+listingColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			l.ID, l.ExternalID, l.Title, l.URL, l.PriceCents, l.PriceNegotiable,
			l.LocationCity, l.LocationRegion, l.Condition, l.Description, l.PostedAt, l.ImageURL,
			l.ItemType, keywordsOrEmpty(l.MatchedKeywords), l.RawSourceHash, l.FirstSeenAt, l.LastSeenAt,
			keywordsOrEmpty(l.Tags),
		)
		if err != nil {
			return err
		}
		return appendPriceHistory(ctx, tx, initial)
	})
	if postgres.IsUniqueViolation(err) {
		return ErrListingExists
	}
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", l.ExternalID, err)
	}
	return nil
}

// Update rewrites the mutable fields. last_seen_at never moves backwards and
// matched_keywords is unioned with what is stored. tags are replaced.
func (r *PostgresListingRepository) Update(ctx context.Context, l listing.Listing, change *listing.PriceHistoryEntry) error {
	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		n, err := tx.Exec(ctx,
			`UPDATE listings SET
				title = $2,
				url = $3,
				price_cents = $4,
				price_negotiable = $5,
				location_city = $6,
				location_region = $7,
				condition = $8,
				description = $9,
				posted_at = COALESCE(posted_at, $10),
				image_url = $11,
				item_type = $12,
				matched_keywords = ARRAY(SELECT DISTINCT k FROM unnest(matched_keywords || $13::text[]) AS k ORDER BY k),
				raw_source_hash = $14,
				last_seen_at = GREATEST(last_seen_at, $15),
				tags = $16
			 WHERE id = $1`,
			l.ID, l.Title, l.URL, l.PriceCents, l.PriceNegotiable,
			l.LocationCity, l.LocationRegion, l.Condition, l.Description, l.PostedAt,
			l.ImageURL, l.ItemType, keywordsOrEmpty(l.MatchedKeywords), l.RawSourceHash, l.LastSeenAt,
			keywordsOrEmpty(l.Tags),
		)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrListingNotFound
		}
		if change == nil {
			return nil
		}
		return appendPriceHistory(ctx, tx, *change)
	})
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return fmt.Errorf("update listing %s: %w", l.ExternalID, err)
	}
	return err
}

func (r *PostgresListingRepository) MergeKeywords(ctx context.Context, externalID string, keywords []string) error {
	n, err := r.db.Exec(ctx,
		`UPDATE listings
		 SET matched_keywords = ARRAY(SELECT DISTINCT k FROM unnest(matched_keywords || $2::text[]) AS k ORDER BY k)
		 WHERE external_id = $1`,
		externalID, keywordsOrEmpty(keywords),
	)
	if err != nil {
		return fmt.Errorf("merge keywords %s: %w", externalID, err)
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

func appendPriceHistory(ctx context.Context, q database.Querier, e listing.PriceHistoryEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO price_history (id, listing_id, price_cents, recorded_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.ListingID, e.PriceCents, e.RecordedAt,
	)
	return err
}

func keywordsOrEmpty(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
