package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"notebook-scout/internal/domain/listing"
	"notebook-scout/internal/repository"
	"notebook-scout/internal/scraper"
)

type memListingRepo struct {
	mu      sync.Mutex
	rows    map[string]listing.Listing
	history map[string][]listing.PriceHistoryEntry
	inserts int
	findErr error
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{rows: map[string]listing.Listing{}, history: map[string][]listing.PriceHistoryEntry{}}
}

func (m *memListingRepo) FindByExternalID(_ context.Context, id string) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return listing.Listing{}, m.findErr
	}
	l, ok := m.rows[id]
	if !ok {
		return listing.Listing{}, repository.ErrListingNotFound
	}
	return l, nil
}

func (m *memListingRepo) Insert(_ context.Context, l listing.Listing, initial listing.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[l.ExternalID]; ok {
		return repository.ErrListingExists
	}
	m.inserts++
	m.rows[l.ExternalID] = l
	m.history[l.ExternalID] = append(m.history[l.ExternalID], initial)
	return nil
}

func (m *memListingRepo) Update(_ context.Context, l listing.Listing, change *listing.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[l.ExternalID]; !ok {
		return repository.ErrListingNotFound
	}
	m.rows[l.ExternalID] = l
	if change != nil {
		m.history[l.ExternalID] = append(m.history[l.ExternalID], *change)
	}
	return nil
}

func (m *memListingRepo) MergeKeywords(_ context.Context, id string, keywords []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return repository.ErrListingNotFound
	}
	l.MatchedKeywords, _ = listing.UnionKeywords(l.MatchedKeywords, keywords...)
	m.rows[id] = l
	return nil
}

func price(v int64) *int64 { return &v }

func strp(s string) *string { return &s }

func newTestReconciler(repo repository.ListingRepository) *ListingReconciler {
	clock := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	u := NewListingReconciler(repo, nil)
	u.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return u
}

func thinkpad(p *int64) listing.Candidate {
	return listing.Candidate{
		ExternalID: "2891234567",
		URL:        "https://www.kleinanzeigen.de/s-anzeige/thinkpad/2891234567-278-3331",
		Title:      "Lenovo ThinkPad T14",
		PriceCents: p,
		Condition:  strp("Gebraucht"),
		ItemType:   listing.ItemTypeLaptop,
	}
}

func TestListingReconciler_InsertThenUnchanged(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	ctx := context.Background()

	out, err := uc.Reconcile(ctx, thinkpad(price(100000)), "thinkpad")
	if err != nil || out != listing.OutcomeInserted {
		t.Fatalf("expected inserted, got %s %v", out, err)
	}
	first := repo.rows["2891234567"]
	if !first.FirstSeenAt.Equal(first.LastSeenAt) {
		t.Fatalf("first_seen_at and last_seen_at must match on insert")
	}

	out, err = uc.Reconcile(ctx, thinkpad(price(100000)), "thinkpad")
	if err != nil || out != listing.OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %s %v", out, err)
	}
	if got := len(repo.history["2891234567"]); got != 1 {
		t.Fatalf("expected 1 history entry, got %d", got)
	}
	if !repo.rows["2891234567"].LastSeenAt.After(first.LastSeenAt) {
		t.Fatalf("last_seen_at must advance")
	}
}

func TestListingReconciler_PriceHistoryAppendsOnlyOnChange(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	ctx := context.Background()

	prices := []*int64{price(100000), price(100000), price(95000), nil, price(95000)}
	for i, p := range prices {
		if _, err := uc.Reconcile(ctx, thinkpad(p), "thinkpad"); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	h := repo.history["2891234567"]
	if len(h) != 4 {
		t.Fatalf("expected initial entry plus 3 changes, got %d", len(h))
	}
	if h[2].PriceCents != nil {
		t.Fatalf("expected null price entry, got %v", *h[2].PriceCents)
	}
	if h[3].PriceCents == nil || *h[3].PriceCents != 95000 {
		t.Fatalf("expected last entry 95000, got %v", h[3].PriceCents)
	}
}

func TestListingReconciler_KeywordUnion(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	ctx := context.Background()

	if _, err := uc.Reconcile(ctx, thinkpad(price(100000)), "thinkpad"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	out, err := uc.Reconcile(ctx, thinkpad(price(100000)), "Business Laptop")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out != listing.OutcomeUpdated {
		t.Fatalf("new keyword must count as an update, got %s", out)
	}

	kw := repo.rows["2891234567"].MatchedKeywords
	if len(kw) != 2 || kw[0] != "business laptop" || kw[1] != "thinkpad" {
		t.Fatalf("unexpected keywords %v", kw)
	}

	if err := uc.MergeKeywords(ctx, "2891234567", "thinkpad"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := repo.rows["2891234567"].MatchedKeywords; len(got) != 2 {
		t.Fatalf("keywords must never shrink or duplicate, got %v", got)
	}
}

func TestListingReconciler_DegradedCandidateKeepsStoredFields(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	ctx := context.Background()

	full := thinkpad(price(100000))
	full.Description = strp("16GB RAM, 512GB SSD")
	full.Tags = scraper.ExtractTags(full.Title, *full.Description)
	if _, err := uc.Reconcile(ctx, full, "thinkpad"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	degraded := thinkpad(price(100000))
	degraded.Condition = nil
	degraded.Tags = scraper.ExtractTags(degraded.Title, "")
	out, err := uc.Reconcile(ctx, degraded, "thinkpad")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out != listing.OutcomeUnchanged {
		t.Fatalf("missing fields must not count as a change, got %s", out)
	}
	got := repo.rows["2891234567"]
	if got.Condition == nil || *got.Condition != "Gebraucht" || got.Description == nil {
		t.Fatalf("stored fields were erased: %+v", got)
	}
	want := []string{"ram:16GB RAM", "storage:512GB SSD", "brand:Lenovo"}
	if !reflect.DeepEqual(got.Tags, want) {
		t.Fatalf("expected tags read from the stored description %q, got %q", want, got.Tags)
	}
}

func TestListingReconciler_RetagsOnNewText(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	ctx := context.Background()

	c := thinkpad(price(90000))
	c.Tags = scraper.ExtractTags(c.Title, "")
	if _, err := uc.Reconcile(ctx, c, "thinkpad"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	c.Title = "Lenovo ThinkPad T14 i7-8650U 32GB"
	c.Tags = scraper.ExtractTags(c.Title, "")
	out, err := uc.Reconcile(ctx, c, "thinkpad")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out != listing.OutcomeUpdated {
		t.Fatalf("expected updated, got %s", out)
	}
	want := []string{"cpu_model:I7-8650U", "ram:32GB RAM", "brand:Lenovo"}
	if got := repo.rows["2891234567"].Tags; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if n := len(repo.history["2891234567"]); n != 1 {
		t.Fatalf("a text change must not add price history, got %d entries", n)
	}
}

func TestListingReconciler_SerializesSameExternalID(t *testing.T) {
	repo := newMemListingRepo()
	uc := newTestReconciler(repo)
	uc.now = time.Now

	var wg sync.WaitGroup
	outcomes := make(chan listing.Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := uc.Reconcile(context.Background(), thinkpad(price(100000)), "thinkpad")
			if err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
			outcomes <- out
		}()
	}
	wg.Wait()
	close(outcomes)

	inserted := 0
	for out := range outcomes {
		if out == listing.OutcomeInserted {
			inserted++
		}
	}
	if inserted != 1 || repo.inserts != 1 {
		t.Fatalf("expected exactly one insert, got outcomes=%d repo=%d", inserted, repo.inserts)
	}
	if len(uc.locks.locks) != 0 {
		t.Fatalf("expected keyed locks to be released, got %d", len(uc.locks.locks))
	}
}

func TestListingReconciler_RejectsMissingIdentity(t *testing.T) {
	uc := newTestReconciler(newMemListingRepo())
	_, err := uc.Reconcile(context.Background(), listing.Candidate{URL: "https://x"}, "k")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListingReconciler_StorageErrorPropagates(t *testing.T) {
	repo := newMemListingRepo()
	repo.findErr = errors.New("connection refused")
	uc := newTestReconciler(repo)
	if _, err := uc.Reconcile(context.Background(), thinkpad(nil), "k"); err == nil {
		t.Fatalf("expected error")
	}
}
