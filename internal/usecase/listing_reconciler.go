package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"

	"github.com/google/uuid"
)

// ListingReconciler is the upsert and price history engine. Calls for
// different external ids run in parallel; calls for the same id are
// serialized.
type ListingReconciler struct {
	repo   repository.ListingRepository
	locks  *keyedMutex
	now    func() time.Time
	logger *log.Logger
}

func NewListingReconciler(repo repository.ListingRepository, logger *log.Logger) *ListingReconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &ListingReconciler{repo: repo, locks: newKeyedMutex(), now: time.Now, logger: logger}
}

func (u *ListingReconciler) Reconcile(ctx context.Context, c listing.Candidate, keyword string) (listing.Outcome, error) {
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	if c.ExternalID == "" || strings.TrimSpace(c.URL) == "" {
		return "", ErrInvalidInput
	}

	unlock := u.locks.Lock(c.ExternalID)
	defer unlock()

	now := u.now().UTC()
	existing, err := u.repo.FindByExternalID(ctx, c.ExternalID)
	switch {
	case errors.Is(err, repository.ErrListingNotFound):
		err = u.insert(ctx, c, keyword, now)
		if !errors.Is(err, repository.ErrListingExists) {
			if err != nil {
				return "", err
			}
			return listing.OutcomeInserted, nil
		}
		// Another process inserted it between our read and write.
		u.logger.Printf("[Listings] concurrent insert external_id=%s, retrying as update", c.ExternalID)
		existing, err = u.repo.FindByExternalID(ctx, c.ExternalID)
		if err != nil {
			return "", fmt.Errorf("reload listing %s: %w", c.ExternalID, err)
		}
	case err != nil:
		return "", fmt.Errorf("find listing %s: %w", c.ExternalID, err)
	}

	return u.update(ctx, existing, c, keyword, now)
}

func (u *ListingReconciler) insert(ctx context.Context, c listing.Candidate, keyword string, now time.Time) error {
	keywords, _ := listing.UnionKeywords(nil, keyword)
	l := listing.Listing{
		ID:              uuid.New(),
		ExternalID:      c.ExternalID,
		Title:           c.Title,
		URL:             c.URL,
		PriceCents:      c.PriceCents,
		PriceNegotiable: c.PriceNegotiable,
		LocationCity:    c.LocationCity,
		LocationRegion:  c.LocationRegion,
		Condition:       c.Condition,
		Description:     c.Description,
		PostedAt:        c.PostedAt,
		ImageURL:        c.ImageURL,
		ItemType:        itemTypeOrDefault(c.ItemType),
		Tags:            c.Tags,
		MatchedKeywords: keywords,
		RawSourceHash:   c.SourceHash(),
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
	initial := listing.PriceHistoryEntry{
		ID:         uuid.New(),
		ListingID:  l.ID,
		PriceCents: c.PriceCents,
		RecordedAt: now,
	}
	return u.repo.Insert(ctx, l, initial)
}

// update fills fields the candidate could not extract from the stored row so
// a degraded page does not erase data. Price is the exception: a missing
// price means "on request" and is recorded as a change.
func (u *ListingReconciler) update(ctx context.Context, existing listing.Listing, c listing.Candidate, keyword string, now time.Time) (listing.Outcome, error) {
	merged := mergeCandidate(existing, c)
	hash := merged.SourceHash()
	keywords, grew := listing.UnionKeywords(existing.MatchedKeywords, keyword)
	priceChanged := !listing.SamePrice(existing.PriceCents, merged.PriceCents)

	next := existing
	next.Title = merged.Title
	next.URL = merged.URL
	next.PriceCents = merged.PriceCents
	next.PriceNegotiable = merged.PriceNegotiable
	next.LocationCity = merged.LocationCity
	next.LocationRegion = merged.LocationRegion
	next.Condition = merged.Condition
	next.Description = merged.Description
	next.ImageURL = merged.ImageURL
	next.ItemType = merged.ItemType
	next.Tags = merged.Tags
	if next.PostedAt == nil {
		next.PostedAt = merged.PostedAt
	}
	next.MatchedKeywords = keywords
	next.RawSourceHash = hash
	if now.After(existing.LastSeenAt) {
		next.LastSeenAt = now
	}

	var change *listing.PriceHistoryEntry
	if priceChanged {
		change = &listing.PriceHistoryEntry{
			ID:         uuid.New(),
			ListingID:  existing.ID,
			PriceCents: merged.PriceCents,
			RecordedAt: now,
		}
	}

	if err := u.repo.Update(ctx, next, change); err != nil {
		return "", err
	}

	if priceChanged || grew || hash != existing.RawSourceHash {
		return listing.OutcomeUpdated, nil
	}
	return listing.OutcomeUnchanged, nil
}

// MergeKeywords records that keywords also found externalID without touching
// any other field.
func (u *ListingReconciler) MergeKeywords(ctx context.Context, externalID string, keywords ...string) error {
	norm, _ := listing.UnionKeywords(nil, keywords...)
	if len(norm) == 0 {
		return nil
	}
	unlock := u.locks.Lock(externalID)
	defer unlock()
	return u.repo.MergeKeywords(ctx, externalID, norm)
}

func mergeCandidate(existing listing.Listing, c listing.Candidate) listing.Candidate {
	if strings.TrimSpace(c.Title) == "" {
		c.Title = existing.Title
	}
	if c.LocationCity == nil {
		c.LocationCity = existing.LocationCity
	}
	if c.LocationRegion == nil {
		c.LocationRegion = existing.LocationRegion
	}
	if c.Condition == nil {
		c.Condition = existing.Condition
	}
	if c.Description == nil && existing.Description != nil {
		// Tags came from the title alone; read them again with the stored text.
		c.Description = existing.Description
		c.Tags = scraper.ExtractTags(c.Title, *c.Description)
	}
	if c.ImageURL == nil {
		c.ImageURL = existing.ImageURL
	}
	if c.ItemType == "" {
		c.ItemType = existing.ItemType
	}
	c.ItemType = itemTypeOrDefault(c.ItemType)
	return c
}

func itemTypeOrDefault(t string) string {
	switch t {
	case listing.ItemTypeLaptop, listing.ItemTypeAccessory, listing.ItemTypeOther:
		return t
	}
	return listing.ItemTypeOther
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
