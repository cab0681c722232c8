package scraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"notebook-scout/internal/domain/listing"
)

const fixturePageURL = "https://www.kleinanzeigen.de/s-notebooks/c278?keywords=notebook"

func readFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return string(b)
}

func fixedExtractor(now time.Time) *Extractor {
	return &Extractor{now: func() time.Time { return now }}
}

func TestExtractor_ResultsPage(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, berlin)
	ex, err := fixedExtractor(now).Extract(readFixture(t, "results_page.html"), fixturePageURL)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if ex.Blocked {
		t.Fatalf("results page must not be flagged as blocked")
	}
	if ex.Cards != 4 {
		t.Fatalf("expected 4 cards, got %d", ex.Cards)
	}
	if len(ex.Listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(ex.Listings))
	}
	if len(ex.Issues) != 1 || ex.Issues[0].Card != 2 || ex.Issues[0].Reason != "missing listing url" {
		t.Fatalf("expected card 2 skipped for missing url, got %+v", ex.Issues)
	}
	if ex.DegradedFields != 1 {
		t.Fatalf("expected 1 degraded field, got %d", ex.DegradedFields)
	}

	thinkpad := ex.Listings[0]
	if thinkpad.ExternalID != "2891234567" {
		t.Fatalf("unexpected external id %q", thinkpad.ExternalID)
	}
	if thinkpad.URL != "https://www.kleinanzeigen.de/s-anzeige/thinkpad-t14-gen-2/2891234567-278-3331" {
		t.Fatalf("unexpected url %q", thinkpad.URL)
	}
	if thinkpad.PriceCents == nil || *thinkpad.PriceCents != 125000 || !thinkpad.PriceNegotiable {
		t.Fatalf("expected 125000 cents negotiable, got %v %v", thinkpad.PriceCents, thinkpad.PriceNegotiable)
	}
	if thinkpad.LocationCity == nil || *thinkpad.LocationCity != "Berlin" {
		t.Fatalf("unexpected city %v", thinkpad.LocationCity)
	}
	if thinkpad.LocationRegion == nil || *thinkpad.LocationRegion != "Mitte" {
		t.Fatalf("unexpected region %v", thinkpad.LocationRegion)
	}
	if thinkpad.Condition == nil || *thinkpad.Condition != "Gebraucht" {
		t.Fatalf("unexpected condition %v", thinkpad.Condition)
	}
	wantPosted := time.Date(2024, 3, 12, 0, 0, 0, 0, berlin)
	if thinkpad.PostedAt == nil || !thinkpad.PostedAt.Equal(wantPosted) {
		t.Fatalf("expected posted %s, got %v", wantPosted, thinkpad.PostedAt)
	}
	if thinkpad.ItemType != listing.ItemTypeLaptop {
		t.Fatalf("expected laptop, got %s", thinkpad.ItemType)
	}

	macbook := ex.Listings[1]
	if macbook.PriceCents != nil {
		t.Fatalf("expected missing price, got %d", *macbook.PriceCents)
	}
	if macbook.Title != "MacBook Air M1 8GB" {
		t.Fatalf("unexpected title %q", macbook.Title)
	}
	if macbook.ImageURL == nil || *macbook.ImageURL != "https://www.kleinanzeigen.de/img/macbook.jpg" {
		t.Fatalf("expected lazy image url, got %v", macbook.ImageURL)
	}
	if macbook.Condition != nil {
		t.Fatalf("expected no condition, got %q", *macbook.Condition)
	}
	wantToday := time.Date(2024, 3, 15, 14, 30, 0, 0, berlin)
	if macbook.PostedAt == nil || !macbook.PostedAt.Equal(wantToday) {
		t.Fatalf("expected posted %s, got %v", wantToday, macbook.PostedAt)
	}

	sleeve := ex.Listings[2]
	if sleeve.ExternalID != "2891234570" {
		t.Fatalf("expected id from url, got %q", sleeve.ExternalID)
	}
	if sleeve.PriceCents == nil || *sleeve.PriceCents != 0 {
		t.Fatalf("expected free item at 0 cents, got %v", sleeve.PriceCents)
	}
	if sleeve.ItemType != listing.ItemTypeAccessory {
		t.Fatalf("expected accessory, got %s", sleeve.ItemType)
	}
}

func TestExtractor_BlockedPage(t *testing.T) {
	ex, err := NewExtractor().Extract(readFixture(t, "blocked_page.html"), fixturePageURL)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if !ex.Blocked || ex.Cards != 0 {
		t.Fatalf("expected blocked page with no cards, got %+v", ex)
	}
}

func TestExtractor_EmptyPageIsNotBlocked(t *testing.T) {
	ex, err := NewExtractor().Extract(readFixture(t, "empty_page.html"), fixturePageURL)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if ex.Blocked || ex.Cards != 0 || len(ex.Listings) != 0 {
		t.Fatalf("expected plain empty page, got %+v", ex)
	}
}

func TestExtractor_BlockMarkersAreAnchored(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		blocked bool
	}{
		{name: "empty results mentioning a robot vacuum", body: `<p>Keine Ergebnisse für "Saugroboter Notebook" gefunden.</p>`, blocked: false},
		{name: "empty results mentioning robotics", body: `<p>Leider nichts zu "Robotik Laptop".</p>`, blocked: false},
		{name: "german robot check", body: `<p>Bitte bestätige: Ich bin kein Roboter</p>`, blocked: true},
		{name: "english robot check", body: `<h1>Are you a robot?</h1>`, blocked: true},
		{name: "captcha", body: `<div id="captcha-box">Captcha</div>`, blocked: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, err := NewExtractor().Extract("<html><body>"+tc.body+"</body></html>", fixturePageURL)
			if err != nil {
				t.Fatalf("expected nil err, got %v", err)
			}
			if ex.Blocked != tc.blocked {
				t.Fatalf("expected blocked=%v, got %v", tc.blocked, ex.Blocked)
			}
		})
	}
}
