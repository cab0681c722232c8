package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

var (
	reNegotiable  = regexp.MustCompile(`\bVB\b`)
	rePriceNumber = regexp.MustCompile(`(\d[\d.,\s]*)`)
	reAdIDInURL   = regexp.MustCompile(`/(\d{9,})(?:-[\d-]+)?(?:/|$|\?)`)
	reAdIDAttr    = regexp.MustCompile(`^\d{6,}$`)
	rePostalCode  = regexp.MustCompile(`^\d{5}\s*`)
	reLocationSep = regexp.MustCompile(`[,\-]`)
	reClock       = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reRelative    = regexp.MustCompile(`vor\s+(\d+)\s+(minute|minuten|min|stunde|stunden|std|tag|tagen)\b`)
	reFullDate    = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	reShortDate   = regexp.MustCompile(`(\d{2})\.(\d{2})\.`)
)

var berlin = loadBerlin()

func loadBerlin() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.UTC
	}
	return loc
}

// parsePrice converts marketplace price text to cents. The negotiable marker
// is detected independently of the number.
func parsePrice(text string) (*int64, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
	if text == "" {
		return nil, false
	}
	upper := strings.ToUpper(text)
	negotiable := reNegotiable.MatchString(upper) || strings.Contains(upper, "VERHANDLUNGSBASIS")

	if strings.Contains(upper, "ZU VERSCHENKEN") || strings.Contains(upper, "VERSCHENKE") {
		zero := int64(0)
		return &zero, negotiable
	}

	m := rePriceNumber.FindStringSubmatch(upper)
	if m == nil {
		return nil, negotiable
	}
	num := strings.Join(strings.Fields(m[1]), "")
	num = strings.ReplaceAll(num, ".", "")
	num = strings.ReplaceAll(num, ",", ".")
	num = strings.TrimRight(num, ".")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f < 0 {
		return nil, negotiable
	}
	cents := int64(math.Round(f * 100))
	return &cents, negotiable
}

// parsePostedAt resolves German relative and absolute date text against now.
// Unresolvable text yields nil.
func parsePostedAt(text string, now time.Time) *time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	now = now.In(berlin)

	hour, minute := -1, -1
	if m := reClock.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		if h < 24 && mi < 60 {
			hour, minute = h, mi
		}
	}

	at := func(day time.Time, fallback time.Time) *time.Time {
		if hour < 0 {
			return &fallback
		}
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, berlin)
		return &t
	}

	switch {
	case strings.Contains(text, "heute"):
		return at(now, now)
	case strings.Contains(text, "gestern"):
		y := now.AddDate(0, 0, -1)
		return at(y, time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, berlin))
	}

	if m := reRelative.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			var t time.Time
			switch m[2] {
			case "minute", "minuten", "min":
				t = now.Add(-time.Duration(n) * time.Minute)
			case "stunde", "stunden", "std":
				t = now.Add(-time.Duration(n) * time.Hour)
			default:
				t = now.AddDate(0, 0, -n)
			}
			return &t
		}
	}

	if m := reFullDate.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if t, ok := validDate(y, mo, d); ok {
			return &t
		}
	}
	if m := reShortDate.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if t, ok := validDate(now.Year(), mo, d); ok {
			return &t
		}
	}
	return nil
}

func validDate(y, mo, d int) (time.Time, bool) {
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, berlin)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// parseLocation strips the postal code and splits "City - Region".
func parseLocation(text string) (*string, *string) {
	text = strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if text == "" {
		return nil, nil
	}
	cleaned := rePostalCode.ReplaceAllString(text, "")
	parts := reLocationSep.Split(cleaned, 2)
	city := nullableString(parts[0])
	var region *string
	if len(parts) > 1 {
		region = nullableString(parts[1])
	}
	return city, region
}

// resolveExternalID prefers the card's ad id attribute, then the numeric id in
// the URL, then a stable hash of the URL.
func resolveExternalID(adID, listingURL string) string {
	adID = strings.TrimSpace(adID)
	if reAdIDAttr.MatchString(adID) {
		return adID
	}
	if m := reAdIDInURL.FindStringSubmatch(listingURL); m != nil {
		return m[1]
	}
	listingURL = strings.TrimSpace(listingURL)
	if listingURL == "" {
		return ""
	}
	h := sha256.Sum256([]byte(listingURL))
	return hex.EncodeToString(h[:])[:32]
}

func nullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
