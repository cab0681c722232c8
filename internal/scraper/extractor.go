package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"notebook-scout/internal/domain/listing"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionIssue describes a card that was skipped.
type ExtractionIssue struct {
	Card   int
	Reason string
}

type Extraction struct {
	Listings []listing.Candidate
	Issues   []ExtractionIssue
	// Cards is the number of listing cards found, including skipped ones.
	Cards int
	// DegradedFields counts optional fields that were missing or unparsable.
	DegradedFields int
	// Blocked is set when the page has no cards and reads like a block page.
	Blocked bool
}

type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract parses a results page. Fields degrade one by one; a card is only
// skipped when it has no link to identify it.
func (e *Extractor) Extract(html string, pageURL string) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)
	now := time.Now()
	if e != nil && e.now != nil {
		now = e.now()
	}

	var out Extraction
	cards := doc.Find(selListingCard)
	out.Cards = cards.Length()
	out.Listings = make([]listing.Candidate, 0, out.Cards)

	cards.Each(func(i int, card *goquery.Selection) {
		c, degraded, reason := extractCard(card, base, now)
		if reason != "" {
			out.Issues = append(out.Issues, ExtractionIssue{Card: i, Reason: reason})
			return
		}
		out.DegradedFields += degraded
		out.Listings = append(out.Listings, c)
	})

	if out.Cards == 0 {
		out.Blocked = looksBlocked(doc.Find("body").Text())
	}
	return out, nil
}

func extractCard(card *goquery.Selection, base *url.URL, now time.Time) (listing.Candidate, int, string) {
	link := card.Find(selTitleLink).First()
	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		href, _ = card.Attr(attrHref)
	}
	abs := absoluteURL(base, href)
	if abs == "" {
		return listing.Candidate{}, 0, "missing listing url"
	}
	adID, _ := card.Attr(attrAdID)
	externalID := resolveExternalID(adID, abs)
	if externalID == "" {
		return listing.Candidate{}, 0, "missing external id"
	}

	degraded := 0
	c := listing.Candidate{
		ExternalID: externalID,
		URL:        abs,
		Title:      cleanText(link.Text()),
	}
	if c.Title == "" {
		degraded++
	}

	priceText := cleanText(card.Find(selPrice).First().Text())
	c.PriceCents, c.PriceNegotiable = parsePrice(priceText)
	if c.PriceCents == nil {
		degraded++
	}

	c.LocationCity, c.LocationRegion = parseLocation(card.Find(selLocation).First().Text())
	if c.LocationCity == nil {
		degraded++
	}

	c.Description = nullableString(cleanText(card.Find(selDescription).First().Text()))

	if img := card.Find(selImage).First(); img.Length() > 0 {
		src, _ := img.Attr("src")
		if strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
			src, _ = img.Attr("data-src")
		}
		c.ImageURL = nullableString(absoluteURL(base, src))
	}

	c.PostedAt = parsePostedAt(cleanText(card.Find(selPostedDate).First().Text()), now)
	if c.PostedAt == nil {
		degraded++
	}

	card.Find(selConditionTag).EachWithBreak(func(_ int, tag *goquery.Selection) bool {
		text := cleanText(tag.Text())
		lower := strings.ToLower(text)
		if strings.Contains(lower, "neu") || strings.Contains(lower, "gebraucht") {
			c.Condition = &text
			return false
		}
		return true
	})

	c.ItemType = classifyItemType(c.Title, c.Description)
	desc := ""
	if c.Description != nil {
		desc = *c.Description
	}
	c.Tags = ExtractTags(c.Title, desc)
	return c, degraded, ""
}

func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if !ref.IsAbs() {
			return ""
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func looksBlocked(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range blockedPageMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
