package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ItemTypeLaptop    = "laptop"
	ItemTypeAccessory = "accessory"
	ItemTypeOther     = "other"
)

// Listing is one marketplace ad. ExternalID is the identity across re-scrapes.
type Listing struct {
	ID              uuid.UUID
	ExternalID      string
	Title           string
	URL             string
	PriceCents      *int64
	PriceNegotiable bool
	LocationCity    *string
	LocationRegion  *string
	Condition       *string
	Description     *string
	PostedAt        *time.Time
	ImageURL        *string
	ItemType        string
	Tags            []string
	MatchedKeywords []string
	RawSourceHash   string
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}

// PriceHistoryEntry is append-only and owned by exactly one listing.
type PriceHistoryEntry struct {
	ID         uuid.UUID
	ListingID  uuid.UUID
	PriceCents *int64
	RecordedAt time.Time
}

// Candidate is what the extractor produces for one listing card. Every field
// except ExternalID and URL may be missing.
type Candidate struct {
	ExternalID      string
	URL             string
	Title           string
	PriceCents      *int64
	PriceNegotiable bool
	LocationCity    *string
	LocationRegion  *string
	Condition       *string
	Description     *string
	PostedAt        *time.Time
	ImageURL        *string
	ItemType        string
	Tags            []string // "category:value", read from title and description
}

// SourceHash fingerprints the observable fields of a candidate. Matched
// keywords and the posted date are left out: the first records how an ad was
// found, the second drifts when it is derived from relative text.
func (c Candidate) SourceHash() string {
	parts := []string{
		c.ExternalID,
		c.URL,
		c.Title,
		optInt(c.PriceCents),
		strconv.FormatBool(c.PriceNegotiable),
		optString(c.LocationCity),
		optString(c.LocationRegion),
		optString(c.Condition),
		optString(c.Description),
		optString(c.ImageURL),
		c.ItemType,
		strings.Join(c.Tags, ","),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(v *int64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatInt(*v, 10)
}

// Tag is one extracted hardware attribute, e.g. {gpu, RTX 4060}.
type Tag struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

func (t Tag) String() string {
	return t.Category + ":" + t.Value
}

// ParseTag splits a stored "category:value" string.
func ParseTag(s string) (Tag, bool) {
	cat, val, ok := strings.Cut(s, ":")
	if !ok || cat == "" || val == "" {
		return Tag{}, false
	}
	return Tag{Category: cat, Value: val}, true
}

// ParseTags drops malformed entries.
func ParseTags(stored []string) []Tag {
	out := make([]Tag, 0, len(stored))
	for _, s := range stored {
		if t, ok := ParseTag(s); ok {
			out = append(out, t)
		}
	}
	return out
}

type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// SamePrice treats two nil prices as equal and nil vs. a value as a change.
func SamePrice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// UnionKeywords merges add into base, returning a sorted set and whether it grew.
func UnionKeywords(base []string, add ...string) ([]string, bool) {
	set := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, k := range base {
		k = NormalizeKeyword(k)
		if k == "" {
			continue
		}
		if _, ok := set[k]; ok {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	grew := false
	for _, k := range add {
		k = NormalizeKeyword(k)
		if k == "" {
			continue
		}
		if _, ok := set[k]; ok {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
		grew = true
	}
	sort.Strings(out)
	return out, grew
}

func NormalizeKeyword(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}
